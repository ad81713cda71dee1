package conversation

import "errors"

var (
	// ErrUnknownSession is returned for messages addressed to a session that
	// does not exist (never connected, or already disconnected).
	ErrUnknownSession = errors.New("unknown session")
	// ErrSessionExists is returned when a connection id is reused.
	ErrSessionExists = errors.New("session already exists")
	// ErrUnmatchedOption marks a reply that matched no option. It is only
	// reported through events and logs; the visitor is re-prompted.
	ErrUnmatchedOption = errors.New("reply matched no option")
	// ErrNotification wraps completion notifier failures.
	ErrNotification = errors.New("lead notification failed")
)
