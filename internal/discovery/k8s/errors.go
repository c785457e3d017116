package k8s

import (
	"errors"
	"fmt"

	k8serrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/vitaliisemenov/remoteconfig/internal/remoteconfig"
)

// DiscoveryError reports a Kubernetes API failure encountered while
// resolving replica endpoints. It carries the same remoteconfig.ErrorKind
// taxonomy a RemoteConfigError does, so a caller watching both replica I/O
// and discovery I/O branches on one vocabulary instead of two parallel
// error hierarchies.
type DiscoveryError struct {
	Op   string
	Kind remoteconfig.ErrorKind
	Err  error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("k8s %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("k8s %s: %s", e.Op, e.Kind)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// NewConnectionError reports a failure to reach or stand up a client
// against the K8s API server itself.
func NewConnectionError(message string, err error) *DiscoveryError {
	return &DiscoveryError{Op: "connection", Kind: remoteconfig.KindTransient, Err: annotate(message, err)}
}

// NewAuthError reports a 401/403 from the K8s API.
func NewAuthError(message string, err error) *DiscoveryError {
	return &DiscoveryError{Op: "authentication", Kind: remoteconfig.KindAuth, Err: annotate(message, err)}
}

// NewNotFoundError reports a Service whose Endpoints resource does not
// exist or carries no ready addresses.
func NewNotFoundError(message string) *DiscoveryError {
	return &DiscoveryError{Op: "lookup", Kind: remoteconfig.KindNotFound, Err: errors.New(message)}
}

// NewTimeoutError reports a request that exceeded its deadline.
func NewTimeoutError(message string, err error) *DiscoveryError {
	return &DiscoveryError{Op: "timeout", Kind: remoteconfig.KindTimeout, Err: annotate(message, err)}
}

func annotate(message string, err error) error {
	if err == nil {
		return errors.New(message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

// wrapK8sError classifies a raw k8s.io/apimachinery API error into a
// DiscoveryError, reusing the ErrorKind taxonomy the rest of the module
// already branches replica failover decisions on. An error that is already a
// DiscoveryError (e.g. the timeout retryWithBackoff returns on a cancelled
// context) is returned unchanged.
func wrapK8sError(operation string, err error) error {
	var de *DiscoveryError
	if errors.As(err, &de) {
		return err
	}
	switch {
	case k8serrors.IsUnauthorized(err), k8serrors.IsForbidden(err):
		return &DiscoveryError{Op: operation, Kind: remoteconfig.KindAuth, Err: err}
	case k8serrors.IsNotFound(err):
		return &DiscoveryError{Op: operation, Kind: remoteconfig.KindNotFound, Err: err}
	case k8serrors.IsTimeout(err), k8serrors.IsServerTimeout(err):
		return &DiscoveryError{Op: operation, Kind: remoteconfig.KindTimeout, Err: err}
	default:
		return &DiscoveryError{Op: operation, Kind: remoteconfig.KindTransient, Err: err}
	}
}

// isRetryableError reports whether err should drive another ListEndpoints
// attempt rather than being returned to the caller. Auth and not-found
// failures (and, for a raw k8s error, invalid-request failures) won't
// resolve themselves on retry; everything else, including
// an error this package has never classified before, is assumed transient.
func isRetryableError(err error) bool {
	if err == nil {
		return true
	}

	var de *DiscoveryError
	if errors.As(err, &de) {
		switch de.Kind {
		case remoteconfig.KindAuth, remoteconfig.KindNotFound:
			return false
		default:
			return true
		}
	}

	if k8serrors.IsUnauthorized(err) || k8serrors.IsForbidden(err) {
		return false
	}
	if k8serrors.IsNotFound(err) || k8serrors.IsInvalid(err) {
		return false
	}
	return true
}
