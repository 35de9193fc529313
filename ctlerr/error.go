// Package ctlerr defines the controller's error taxonomy, shared by every
// domain package so that callers can branch on failure kind instead of
// matching error strings.
package ctlerr

import "github.com/pkg/errors"

// Kind classifies a controller error.
type Kind int

const (
	// TransientNetwork covers send failures and missing replies; it is
	// absorbed locally by the component that hit it.
	TransientNetwork Kind = iota
	// MissingTopologyData covers unknown hosts and missing port-pairs.
	MissingTopologyData
	// InvalidMeasurement covers non-monotonic counters and Δt=0 samples.
	InvalidMeasurement
	// PlanningFailure covers empty or disconnected paths.
	PlanningFailure
	// ConfigError covers malformed or invalid configuration; it aborts
	// startup.
	ConfigError
)

func (k Kind) String() string {
	switch k {
	case TransientNetwork:
		return "transient-network"
	case MissingTopologyData:
		return "missing-topology-data"
	case InvalidMeasurement:
		return "invalid-measurement"
	case PlanningFailure:
		return "planning-failure"
	case ConfigError:
		return "config-error"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged controller error wrapping an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	err  error
}

func New(k Kind, op string, cause error) *Error {
	return &Error{Kind: k, Op: op, err: errors.Wrap(cause, op)}
}

func (e *Error) Error() string {
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether err is a controller error of kind k.
func Is(err error, k Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == k
	}
	return false
}
