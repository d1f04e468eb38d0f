package sqlgen

import (
	"errors"
	"fmt"

	"github.com/mirajehossain/relmigrate/internal/operation"
)

var (
	ErrOperationNotSupported = errors.New("operation not supported by provider")
	ErrInvalidOperation      = errors.New("invalid schema operation")
	ErrUnknownOperation      = operation.ErrUnknownOperation
)

// NotSupportedError reports an operation kind a provider cannot render.
type NotSupportedError struct {
	Provider string
	Kind     string
	Reason   string
}

func (e *NotSupportedError) Error() string {
	msg := fmt.Sprintf("%s: %s operation is not supported", e.Provider, e.Kind)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *NotSupportedError) Unwrap() error { return ErrOperationNotSupported }

// NotSupported builds a NotSupportedError for op.
func NotSupported(provider string, op operation.Operation, reason string) error {
	kind, err := operation.Kind(op)
	if err != nil {
		return err
	}
	return &NotSupportedError{Provider: provider, Kind: kind, Reason: reason}
}
