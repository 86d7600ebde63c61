package syncclient

import "errors"

// Sync client error types.
var (
	ErrNoIdentity     = errors.New("sync client requires a participant identity")
	ErrNotReady       = errors.New("session state has not loaded yet")
	ErrAlreadyStarted = errors.New("sync client is already started")
	ErrNotStarted     = errors.New("sync client is not started")
)
