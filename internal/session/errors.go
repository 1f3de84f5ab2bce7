package session

import "errors"

var (
	// ErrNoSession is returned by Store.Load when nothing is persisted.
	ErrNoSession = errors.New("session: no stored session")
	// ErrInvalidRecord indicates a record violating the session invariants.
	ErrInvalidRecord = errors.New("session: invalid record")
)
