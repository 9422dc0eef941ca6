package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for the event and registration caches. Callers match with
// errors.Is; the wrapped message carries the entity identifier involved.
var (
	ErrEventNotFound   = errors.New("event not found")
	ErrEventExists     = errors.New("event already exists")
	ErrEventArchived   = errors.New("event is archived")
	ErrAlreadyOpen     = errors.New("event is already open")
	ErrAlreadyClosed   = errors.New("event is already closed")
	ErrAlreadyArchived = errors.New("event is already archived")
	ErrNoChanges       = errors.New("no changes to apply")

	ErrDuplicateResponse = errors.New("user already responded to event")
	ErrResponseNotFound  = errors.New("response not found")
	ErrWaitlistNotFound  = errors.New("waitlist entry not found")

	ErrInvalidCapacity      = errors.New("capacity must be a positive integer")
	ErrCapacityBelowCurrent = errors.New("new capacity is below current attendance")
	ErrCapacityWithWaitlist = errors.New("cannot change capacity while waitlist is not empty")

	ErrInvalidDateTime    = errors.New("invalid date/time")
	ErrDateTimeInPast     = errors.New("event date/time is in the past")
	ErrDeadlineInPast     = errors.New("deadline is in the past")
	ErrDeadlineAfterEvent = errors.New("deadline must be before the event start")
)

func eventErr(sentinel error, name string) error {
	return fmt.Errorf("%w: %q", sentinel, name)
}

func responseErr(sentinel error, event string, userID int64) error {
	return fmt.Errorf("%w: event %q, user %d", sentinel, event, userID)
}
