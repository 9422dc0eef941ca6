package store

import (
	"slices"
	"strings"
	"time"
)

// Event is the unit of the offkai calendar. Names are unique under
// case-insensitive comparison; the canonical spelling is preserved as given
// by the creator.
type Event struct {
	Name           string
	Venue          string
	Address        string
	GoogleMapsLink string

	// StartTime is the event instant, always UTC in memory and on disk.
	StartTime time.Time
	// Deadline, if set, is the registration cutoff. Must be strictly before
	// StartTime.
	Deadline *time.Time

	// Message is the announcement text posted when the event was created.
	Message *string

	ChannelID *int64
	ThreadID  *int64
	MessageID *int64

	Open     bool
	Archived bool

	Drinks []string

	// MaxCapacity bounds the confirmed head count. Nil means unlimited.
	MaxCapacity *int

	CreatorID *int64

	// ClosedAttendanceCount is the head count snapshotted when the event was
	// closed via the normal close path. Cleared on reopen. It caps
	// re-promotion while the event stays closed.
	ClosedAttendanceCount *int

	PingRoleID *int64
	RoleID     *int64
}

// HasDrinks reports whether the event collects drink choices.
func (e *Event) HasDrinks() bool {
	return len(e.Drinks) > 0
}

// IsPastDeadline reports whether the registration deadline has passed.
func (e *Event) IsPastDeadline(now time.Time) bool {
	return e.Deadline != nil && now.After(*e.Deadline)
}

// Clone returns a deep copy so callers can hold event snapshots outside the
// store lock.
func (e *Event) Clone() *Event {
	c := *e
	c.Deadline = clonePtr(e.Deadline)
	c.Message = clonePtr(e.Message)
	c.ChannelID = clonePtr(e.ChannelID)
	c.ThreadID = clonePtr(e.ThreadID)
	c.MessageID = clonePtr(e.MessageID)
	c.MaxCapacity = clonePtr(e.MaxCapacity)
	c.CreatorID = clonePtr(e.CreatorID)
	c.ClosedAttendanceCount = clonePtr(e.ClosedAttendanceCount)
	c.PingRoleID = clonePtr(e.PingRoleID)
	c.RoleID = clonePtr(e.RoleID)
	c.Drinks = slices.Clone(e.Drinks)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// foldName is the canonical lookup key for event names.
func foldName(name string) string {
	return strings.ToLower(name)
}

// UpdateEvent is the patch applied by Tx.UpdateEvent. Nil fields are left
// untouched. SetDeadline distinguishes "leave the deadline alone" from
// "clear it"; SetMaxCapacity does the same for capacity.
type UpdateEvent struct {
	Venue          *string
	Address        *string
	GoogleMapsLink *string
	StartTime      *time.Time
	Deadline       *time.Time
	SetDeadline    bool
	Drinks         []string
	MaxCapacity    *int
	SetMaxCapacity bool
}

// isNoop reports whether applying the patch to e would change nothing.
// Drinks are compared as sets; an order change alone is not a modification.
func (u *UpdateEvent) isNoop(e *Event) bool {
	if u.Venue != nil && *u.Venue != e.Venue {
		return false
	}
	if u.Address != nil && *u.Address != e.Address {
		return false
	}
	if u.GoogleMapsLink != nil && *u.GoogleMapsLink != e.GoogleMapsLink {
		return false
	}
	if u.StartTime != nil && !u.StartTime.Equal(e.StartTime) {
		return false
	}
	if u.SetDeadline && !timePtrEqual(u.Deadline, e.Deadline) {
		return false
	}
	if u.Drinks != nil && !sameDrinkSet(u.Drinks, e.Drinks) {
		return false
	}
	if u.SetMaxCapacity && !intPtrEqual(u.MaxCapacity, e.MaxCapacity) {
		return false
	}
	return true
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameDrinkSet(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(a))
	for _, d := range a {
		set[strings.ToLower(d)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(b))
	for _, d := range b {
		k := strings.ToLower(d)
		if _, ok := set[k]; !ok {
			return false
		}
		seen[k] = struct{}{}
	}
	return len(set) == len(seen)
}
