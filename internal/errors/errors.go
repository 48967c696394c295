package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error per the failure taxonomy handled by the controller.
type Kind int

const (
	KindValidation Kind = iota
	KindProbeUnavailable
	KindGateway
	KindAuthorizationDenied
	KindConfigLoad
	KindImportValidation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProbeUnavailable:
		return "probe_unavailable"
	case KindGateway:
		return "gateway"
	case KindAuthorizationDenied:
		return "authorization_denied"
	case KindConfigLoad:
		return "config_load"
	case KindImportValidation:
		return "import_validation"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error wraps an underlying error with a failure kind and optional context.
type Error struct {
	Kind    Kind
	Err     error
	Context ErrorContext
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	ctxMap := e.Context.ToMap()
	if len(ctxMap) == 0 {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("[%s] %v (context=%v)", e.Kind, e.Err, ctxMap)
}

// Unwrap exposes the wrapped root cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New constructs an Error with the provided kind, cause, and context.
func New(kind Kind, err error, context ErrorContext) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Err:     err,
		Context: context,
	}
}

// Wrap wraps an existing error under the given kind while merging context maps.
func Wrap(kind Kind, err error, operation string, contexts ...ErrorContext) *Error {
	if err == nil {
		return nil
	}
	ctx := ErrorContext{Operation: operation}
	for _, c := range contexts {
		ctx = ctx.Merge(c)
	}
	return New(kind, err, ctx)
}

// Validation annotates an error as a local validation failure.
func Validation(err error, operation string, contexts ...ErrorContext) *Error {
	return Wrap(KindValidation, err, operation, contexts...)
}

// Gateway annotates an error as an enforcement-tool failure.
func Gateway(err error, operation string, contexts ...ErrorContext) *Error {
	return Wrap(KindGateway, err, operation, contexts...)
}

// KindOf reports the kind carried by err, or KindGateway when err carries none.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Kind
	}
	return KindGateway
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Kind == kind
	}
	return false
}
