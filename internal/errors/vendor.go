package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a vendor has no record for an identifier.
	ErrNotFound = stdErrors.New("not found at vendor")

	// ErrInvalidIdentifier is returned when a vendor rejects an identifier as malformed.
	ErrInvalidIdentifier = stdErrors.New("invalid identifier")
)

// VendorError represents a non-success HTTP response from a vendor API
type VendorError struct {
	Vendor     string
	StatusCode int
	Message    string
}

func (e *VendorError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API error (HTTP %d): %s", e.Vendor, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error (HTTP %d)", e.Vendor, e.StatusCode)
}

// Unwrap maps well-known status codes onto the package sentinels so callers
// can use errors.Is(err, ErrNotFound).
func (e *VendorError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrInvalidIdentifier
	}
	return nil
}

// NewVendorError creates a new VendorError
func NewVendorError(vendor string, statusCode int, message string) *VendorError {
	return &VendorError{Vendor: vendor, StatusCode: statusCode, Message: message}
}

// IsVendorError checks if error is a VendorError
func IsVendorError(err error) bool {
	var vendorErr *VendorError
	return stdErrors.As(err, &vendorErr)
}

// IsTransient reports whether a vendor failure is expected to go away on retry.
// Rate limits, server errors and network failures are transient. Missing or
// malformed identifiers and other client errors are persistent, as are
// errors that stop processing altogether.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimitError(err) {
		return true
	}
	if IsStopProcessingError(err) {
		return false
	}
	if stdErrors.Is(err, ErrNotFound) || stdErrors.Is(err, ErrInvalidIdentifier) {
		return false
	}
	var vendorErr *VendorError
	if stdErrors.As(err, &vendorErr) {
		return vendorErr.StatusCode >= 500 || vendorErr.StatusCode == http.StatusTooManyRequests
	}
	// Network failures and anything unclassified get another chance.
	return true
}
