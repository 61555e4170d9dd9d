package model

import "errors"

// Failure classes. Call sites wrap these with fmt.Errorf("%w: ...") and
// callers classify with errors.Is. Only ErrInput is fatal to a run.
var (
	ErrInput          = errors.New("input error")
	ErrTransientFetch = errors.New("fetch failed")
	ErrAuth           = errors.New("authentication failed")
	ErrPersistence    = errors.New("persistence failed")
)
