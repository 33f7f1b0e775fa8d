package resolver

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind int

const (
	ErrParse ErrorKind = iota
	ErrNotFound
	ErrProvider
	ErrRateLimit
	ErrProcessing
	ErrCache
	ErrValidation
	ErrStorage
	ErrUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case ErrParse:
		return "Parse"
	case ErrNotFound:
		return "NotFound"
	case ErrProvider:
		return "Provider"
	case ErrRateLimit:
		return "RateLimit"
	case ErrProcessing:
		return "Processing"
	case ErrCache:
		return "Cache"
	case ErrValidation:
		return "Validation"
	case ErrStorage:
		return "Storage"
	default:
		return "Unknown"
	}
}

// Error is the typed failure value crossing the orchestrator boundary.
// Context carries details such as the file and pipeline stage involved.
type Error struct {
	Kind    ErrorKind
	Message string
	Context map[string]any
	Cause   error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func WrapError(err error, kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
		Cause:   err,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Kind.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// IsKind reports whether err is a resolver Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var resolverErr *Error
	if errors.As(err, &resolverErr) {
		return resolverErr.Kind == kind
	}
	return false
}
