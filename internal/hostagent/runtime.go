package hostagent

import (
	"context"
	"errors"
)

// ErrContainerNotFound is returned by runtime operations on containers the
// runtime does not know about.
var ErrContainerNotFound = errors.New("container not found")

// ExecRequest is one command execution inside a running tool container.
// Env carries the per-execution environment, including the injected
// credential; it exists only for the lifetime of this exec.
type ExecRequest struct {
	ContainerName string
	Cmd           []string
	Env           []string
}

// ExecResult carries the combined output and exit code of one exec.
type ExecResult struct {
	Output   string
	ExitCode int
}

// ContainerRuntime is the pluggable container backend for the host agent.
// The production implementation uses the Docker Engine API; tests use an
// in-memory fake.
type ContainerRuntime interface {
	// PullImage fetches the image, blocking until the pull completes.
	PullImage(ctx context.Context, image string) error

	// CreateContainer creates a stopped container for the image.
	CreateContainer(ctx context.Context, name, image string) error

	StartContainer(ctx context.Context, name string) error
	StopContainer(ctx context.Context, name string) error

	// RemoveContainer force-removes the container. Removing an unknown
	// container returns ErrContainerNotFound.
	RemoveContainer(ctx context.Context, name string) error

	// IsRunning reports whether the named container is currently running.
	IsRunning(ctx context.Context, name string) (bool, error)

	// Exec runs a command inside a running container and waits for it.
	Exec(ctx context.Context, req ExecRequest) (*ExecResult, error)
}
