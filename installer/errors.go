package installer

import "errors"

var (
	// ErrAlreadyDone is returned by AddPackage after DonePackages.
	ErrAlreadyDone = errors.New("package list already closed")
	// ErrDestroyed is returned once the Installer has been destroyed.
	ErrDestroyed = errors.New("installer destroyed")
	// ErrUnknownHost is returned when no HostResolver can serve a ref.
	ErrUnknownHost = errors.New("unknown host")
)
