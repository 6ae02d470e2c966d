package domain

import "errors"

var (
	// ErrAuthentication means the vendor rejected the account credentials or session.
	ErrAuthentication = errors.New("vendor authentication failed")
	// ErrUnauthorized means the caller did not present the configured bearer token.
	ErrUnauthorized = errors.New("invalid or missing authorization token")

	ErrInvalidBrightness  = errors.New("brightness must be between 0 and 100")
	ErrInvalidColorFormat = errors.New("color must be in hex format #RRGGBB")
	ErrInvalidAction      = errors.New("action must be 'ON' or 'OFF'")
	ErrNoControlFields    = errors.New("at least one control parameter must be specified")

	ErrDeviceOperation = errors.New("device operation failed")
	ErrDeviceTimeout   = errors.New("device operation timed out")
)

// IsValidation reports whether err is a request validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidBrightness) ||
		errors.Is(err, ErrInvalidColorFormat) ||
		errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrNoControlFields)
}
