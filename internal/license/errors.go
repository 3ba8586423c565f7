package license

import "errors"

var (
	// ErrNotFound is returned when no record has the requested key.
	ErrNotFound = errors.New("license not found")
	// ErrInvalidRecord is returned for records without a license key.
	ErrInvalidRecord = errors.New("license key is required")
	// ErrInvalidCollection is returned for collection ids that cannot name a file.
	ErrInvalidCollection = errors.New("invalid collection id")
)
