package format

import "errors"

var (
	// ErrVersionMismatch indicates an unsupported manifest version.
	ErrVersionMismatch = errors.New("unsupported manifest version")
	// ErrSizeMismatch indicates a file whose size differs from the manifest.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrChecksumMismatch indicates a file whose content differs from the manifest.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)
