// Package version provides the build version of the toolbox binaries.
package version

// Version is set at build time via -ldflags.
var Version = "dev"

// GetVersion returns the build version.
func GetVersion() string {
	return Version
}
