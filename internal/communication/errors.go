package communication

import "errors"

var (
	// ErrDuplicate reports a unique-key conflict in storage.
	ErrDuplicate = errors.New("communication: duplicate key")
	// ErrNotFound reports a missing row on a lookup that requires one.
	ErrNotFound = errors.New("communication: not found")
	// ErrUnknownCommand reports a command outside the supported set.
	ErrUnknownCommand = errors.New("communication: unknown command")
	// ErrUnknownEvent reports an event type outside the supported set.
	ErrUnknownEvent = errors.New("communication: unknown event")
	// ErrInvalidCommand reports a command missing required fields.
	ErrInvalidCommand = errors.New("communication: invalid command")
)
