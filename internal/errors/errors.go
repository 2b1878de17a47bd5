package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a skumate error code.
type ErrorCode string

const (
	ErrValidation     ErrorCode = "VALIDATION"      // 400
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"  // 404
	ErrDuplicateSKU   ErrorCode = "DUPLICATE_SKU"   // 409
	ErrBusy           ErrorCode = "BUSY"            // 409
	ErrNotAvailable   ErrorCode = "NOT_AVAILABLE"   // 409
	ErrCancelled      ErrorCode = "CANCELLED"       // 499
	ErrPersistence    ErrorCode = "PERSISTENCE"     // 500, non-fatal
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrUpstream       ErrorCode = "UPSTREAM"        // 502
)

// SkuError represents a structured error with code, status, and details.
type SkuError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *SkuError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *SkuError) Unwrap() error {
	return e.cause
}

// NewValidation creates a 400 error for a record that fails required-field checks.
// It is raised before any network call is made.
func NewValidation(field, msg string) *SkuError {
	return &SkuError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
		Details: map[string]any{"field": field},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *SkuError {
	return &SkuError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a SKU missing from the current view.
func NewNotFound(sku string) *SkuError {
	return &SkuError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("product not found: %s", sku),
		Details: map[string]any{"sku": sku},
	}
}

// NewFileNotFound creates a 404 error for import files that do not exist.
func NewFileNotFound(path string) *SkuError {
	return &SkuError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewDuplicateSKU creates a 409 error when a SKU is already staged in the cart.
func NewDuplicateSKU(sku string) *SkuError {
	return &SkuError{
		Code:    ErrDuplicateSKU,
		Status:  409,
		Message: fmt.Sprintf("product %s is already in the cart", sku),
		Details: map[string]any{"sku": sku},
	}
}

// NewBusy creates a 409 error when a request is issued while another is in flight.
func NewBusy(pending string) *SkuError {
	return &SkuError{
		Code:    ErrBusy,
		Status:  409,
		Message: fmt.Sprintf("another request is in progress: %s", pending),
		Details: map[string]any{"pending": pending},
	}
}

// NewNotAvailable creates a 409 error when every variant suffix A-Z is taken.
func NewNotAvailable(root string) *SkuError {
	return &SkuError{
		Code:    ErrNotAvailable,
		Status:  409,
		Message: fmt.Sprintf("no variant SKU available for %s: suffixes A-Z are all used", root),
		Details: map[string]any{"root": root},
	}
}

// NewCancelled creates a 499 error for operations cancelled by the caller.
func NewCancelled(operation string) *SkuError {
	return &SkuError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewPersistence creates a 500 error for a failed storage read or write.
// In-memory state remains authoritative when this is returned.
func NewPersistence(op string, err error) *SkuError {
	msg := op + " failed"
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", op, err)
	}
	return &SkuError{
		Code:    ErrPersistence,
		Status:  500,
		Message: msg,
		Details: map[string]any{"op": op},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *SkuError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SkuError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// NewUpstream creates a 502 error for a failed collaborator call.
// The upstream message is passed through unchanged so it can be shown to the user.
func NewUpstream(call, msg string) *SkuError {
	return &SkuError{
		Code:    ErrUpstream,
		Status:  502,
		Message: msg,
		Details: map[string]any{"call": call},
	}
}

// Is checks if an error is a SkuError with the given code.
// Wrapped errors are unwrapped.
func Is(err error, code ErrorCode) bool {
	var sErr *SkuError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// CodeOf returns the code of a SkuError, or ErrInternal for any other error.
func CodeOf(err error) ErrorCode {
	var sErr *SkuError
	if stderrors.As(err, &sErr) {
		return sErr.Code
	}
	return ErrInternal
}

// MessageOf returns the user-facing message of err: the Message of a
// SkuError, otherwise err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var sErr *SkuError
	if stderrors.As(err, &sErr) {
		return sErr.Message
	}
	return err.Error()
}
