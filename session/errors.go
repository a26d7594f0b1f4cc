package session

import "errors"

var (
	ErrTimeout             = errors.New("session: timed out waiting for reply")
	ErrConnectionLost      = errors.New("session: connection lost")
	ErrIncompatibleVersion = errors.New("session: no common protocol version")
	ErrXidInUse            = errors.New("session: xid in use")
	ErrNotEstablished      = errors.New("session: not established")

	errMalformedError = errors.New("session: error reply without body")
)
