package hosts

import "errors"

var (
	// ErrNotFound is returned when a host does not carry a package.
	ErrNotFound = errors.New("package not found")
	// ErrChecksum is returned when downloaded content does not match its
	// descriptor.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrTooLarge is returned when a download exceeds max_download_size.
	ErrTooLarge = errors.New("download too large")
	// ErrNotFetched is returned by Install for content that was never
	// committed.
	ErrNotFetched = errors.New("package content not present")
)
