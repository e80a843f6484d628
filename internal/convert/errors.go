package convert

import "errors"

var (
	// ErrLookup indicates the domain could not be found.
	ErrLookup = errors.New("domain lookup failed")

	// ErrState indicates the domain is running (or its state is unknown).
	ErrState = errors.New("domain is not shut off")

	// ErrValidation indicates a missing or unsupported driver, format or
	// source, an unsupported target format, or nothing to convert.
	ErrValidation = errors.New("validation failed")

	// ErrAccess indicates an image file could not be probed, chowned or chmodded.
	ErrAccess = errors.New("file access failed")

	// ErrToolUnavailable indicates the converter cannot be invoked.
	ErrToolUnavailable = errors.New("converter unavailable")

	// ErrConversionFailed indicates the converter exited non-zero.
	ErrConversionFailed = errors.New("conversion failed")

	// ErrPersistence indicates the updated configuration could not be defined.
	ErrPersistence = errors.New("failed to persist domain configuration")

	// ErrCleanup indicates a superseded image could not be removed. It is
	// reported per file and never fatal.
	ErrCleanup = errors.New("failed to remove old image")
)
