// Package apperr defines the error taxonomy shared by the control plane and
// the host agent. Handlers map these to HTTP status codes at the API boundary.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrProvisioning indicates a cloud adapter failure. It is surfaced to the
	// caller and never retried automatically.
	ErrProvisioning = errors.New("provisioning error")

	// ErrCommunication indicates the host agent was unreachable after bounded
	// retries.
	ErrCommunication = errors.New("host agent unreachable")

	// ErrAuthorization indicates a missing link in the agent/toolbox/instance
	// authorization chain. It deliberately carries no detail about which link
	// failed, to avoid enumeration.
	ErrAuthorization = errors.New("not authorized")

	// ErrCredential indicates a missing, revoked or unresolvable credential.
	// Unlike ErrAuthorization this is user-actionable: the agent owner must
	// reconnect the tool.
	ErrCredential = errors.New("credential unavailable, reconnect the tool")

	// ErrConflict indicates a uniqueness violation, eg- a duplicate instance
	// name on a host or a duplicate access grant.
	ErrConflict = errors.New("resource conflict")

	// ErrTimeout indicates an execution exceeded its bound. The container is
	// left running for the next heartbeat to reconcile.
	ErrTimeout = errors.New("execution timed out")

	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// HTTPStatus maps a domain error to the HTTP status code the API returns for it.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrCredential):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrProvisioning), errors.Is(err, ErrCommunication):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
