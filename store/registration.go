package store

import (
	"slices"
	"time"
)

// Registration is a user's answer to an event: either a confirmed attendance
// or a waitlist entry, depending on which bucket it sits in.
type Registration struct {
	UserID      int64
	Username    string
	DisplayName *string

	// ExtraPeople is the number of companions (0-5). ExtrasNames must have
	// exactly that many entries.
	ExtraPeople int
	ExtrasNames []string

	BehaviorConfirmed bool
	ArrivalConfirmed  bool

	EventName string

	// Timestamp is the UTC instant of admission. Preserved across promotion.
	Timestamp time.Time

	// Drinks has 1+ExtraPeople entries when the event collects drinks,
	// otherwise none.
	Drinks []string
}

// PartySize is the number of seats the registration occupies.
func (r *Registration) PartySize() int {
	return 1 + r.ExtraPeople
}

// Clone returns a deep copy of the registration.
func (r *Registration) Clone() *Registration {
	c := *r
	c.DisplayName = clonePtr(r.DisplayName)
	c.ExtrasNames = slices.Clone(r.ExtrasNames)
	c.Drinks = slices.Clone(r.Drinks)
	return &c
}

// EventBucket holds the two ordered response lists of one event. Waitlist
// order is FIFO and significant; attendee order is insertion order.
type EventBucket struct {
	Attendees []*Registration
	Waitlist  []*Registration
}

// Clone returns a deep copy of the bucket.
func (b *EventBucket) Clone() *EventBucket {
	c := &EventBucket{
		Attendees: make([]*Registration, 0, len(b.Attendees)),
		Waitlist:  make([]*Registration, 0, len(b.Waitlist)),
	}
	for _, r := range b.Attendees {
		c.Attendees = append(c.Attendees, r.Clone())
	}
	for _, r := range b.Waitlist {
		c.Waitlist = append(c.Waitlist, r.Clone())
	}
	return c
}

// HeadCount is the number of seats taken by confirmed attendees.
func (b *EventBucket) HeadCount() int {
	total := 0
	for _, r := range b.Attendees {
		total += r.PartySize()
	}
	return total
}

func (b *EventBucket) contains(userID int64) bool {
	for _, r := range b.Attendees {
		if r.UserID == userID {
			return true
		}
	}
	for _, r := range b.Waitlist {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
