package vault

import "errors"

// ErrNotFound is returned by Get when no entry exists for a source.
var ErrNotFound = errors.New("vault: credential not found")

// ErrCorrupt is returned when an entry file fails to decode or decrypt.
// cmd/blacklist exits with code 2 when startup fails with this error.
var ErrCorrupt = errors.New("vault: entry corrupt")

// ErrLocked is returned by Probe when the source is under an auth lockout.
var ErrLocked = errors.New("vault: source locked out after too many failed attempts")
