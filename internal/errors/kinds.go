// Package errors provides structured error handling for the host.
// It defines the failure taxonomy shared by the plugin and catalog modules,
// sentinel errors, and helpers for mapping failures onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the stage that produced it.
type Kind string

const (
	// KindDiscovery indicates module enumeration was unavailable or a manifest was unusable.
	KindDiscovery Kind = "discovery"
	// KindBridge indicates a proxy could not be built or a foreign call failed in transport.
	KindBridge Kind = "bridge"
	// KindIngestion indicates a malformed plugin response or a failed catalog fetch.
	KindIngestion Kind = "ingestion"
	// KindResolution indicates an item could not be resolved to a playable locator.
	KindResolution Kind = "resolution"
	// KindContract indicates a plugin invoked a callback with an unsupported value shape.
	KindContract Kind = "contract"
	// KindValidation indicates invalid input from a caller.
	KindValidation Kind = "validation"
	// KindStorage indicates a storage collaborator failure.
	KindStorage Kind = "storage"
	// KindInternal indicates an unexpected internal failure.
	KindInternal Kind = "internal"
)

// Sentinel errors for common scenarios
var (
	ErrPluginNotFound    = errors.New("plugin not found")
	ErrNoOwningPlugin    = errors.New("no plugin owns category")
	ErrItemNotFound      = errors.New("media item not found")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrStaleResult       = errors.New("result belongs to a discarded generation")
	ErrMalformedPayload  = errors.New("malformed plugin payload")
	ErrPluginReported    = errors.New("plugin reported failure")
	ErrUnsupportedValue  = errors.New("unsupported callback value shape")
	ErrCallbackTimeout   = errors.New("plugin callback did not fire")
	ErrHandshakeMismatch = errors.New("plugin contract mismatch")
	ErrInvalidInput      = errors.New("invalid input")
	ErrShutdown          = errors.New("host is shutting down")
)

// Error carries a failure with its classification and context.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "bridge", "ensure_loaded"
	Subject string // plugin name, category key or item id when known
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s failure in %s for %s: %v", e.Kind, e.Op, e.Subject, e.Err)
	}
	return fmt.Sprintf("%s failure in %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sentinel errors
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New creates a new Error
func New(kind Kind, op string, err error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithSubject records the plugin, category or item the failure relates to.
func (e *Error) WithSubject(subject string) *Error {
	e.Subject = subject
	return e
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// DiscoveryFailure creates a discovery error.
func DiscoveryFailure(op string, err error) *Error {
	return New(KindDiscovery, op, err)
}

// BridgeFailure creates a bridge error.
func BridgeFailure(op string, err error) *Error {
	return New(KindBridge, op, err)
}

// IngestionFailure creates an ingestion error.
func IngestionFailure(op string, err error) *Error {
	return New(KindIngestion, op, err)
}

// ResolutionFailure creates a resolution error.
func ResolutionFailure(op string, err error) *Error {
	return New(KindResolution, op, err)
}

// ContractViolation creates a contract error.
func ContractViolation(op string, err error) *Error {
	return New(KindContract, op, err)
}

// ValidationError creates a validation error.
func ValidationError(op string, err error) *Error {
	return New(KindValidation, op, err)
}

// StorageError creates a storage error.
func StorageError(op string, err error) *Error {
	return New(KindStorage, op, err)
}

// Wrap wraps an error with operation context if it's not already an *Error
func Wrap(err error, kind Kind, op string) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return New(kind, op, err)
}

// KindOf extracts the failure kind from an error, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// OperationOf extracts the failed operation from an error
func OperationOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
