// Package cloud provides a thin adapter over a cloud provider API to create,
// query and delete the compute hosts backing Toolboxes. It knows nothing
// about tools.
package cloud

import (
	"context"
	"errors"
)

// ErrHostNotFound is returned when the provider no longer knows the host.
// Deprovisioning treats it as success.
var ErrHostNotFound = errors.New("host not found at provider")

// HostRequest describes the host to create.
type HostRequest struct {
	Name   string
	Region string
	Size   string
	Image  string

	// UserData is the startup payload injected into the new host. It carries
	// the host agent's configuration, including its bearer secret.
	UserData string
}

// Host is the provider's view of a compute host.
type Host struct {
	// ProviderID is the provider-assigned identifier.
	ProviderID string

	// Address is the host's public network address. Empty until the provider
	// assigns one.
	Address string
}

// Provisioner is the cloud provisioning adapter.
type Provisioner interface {
	// CreateHost asks the provider to create a new host. The returned Host
	// usually has no address yet; callers poll GetHost until one appears.
	CreateHost(ctx context.Context, req HostRequest) (*Host, error)

	// GetHost returns the provider's current view of the host.
	GetHost(ctx context.Context, providerID string) (*Host, error)

	// DeleteHost releases the host. Deleting a host the provider no longer
	// knows returns ErrHostNotFound.
	DeleteHost(ctx context.Context, providerID string) error
}
