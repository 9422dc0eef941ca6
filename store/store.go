// Package store owns the in-memory event and response caches that back the
// offkai bot. The caches are the authoritative working copy during a process
// lifetime; a Driver persists them to disk after every mutating transaction.
package store

import (
	"log/slog"
	"sync"
	"time"
)

// Driver abstracts the persistence layer. Implementations load the full
// dataset once at startup and rewrite it completely on every save.
type Driver interface {
	LoadEvents() ([]*Event, error)
	SaveEvents(events []*Event) error
	LoadResponses() (map[string]*EventBucket, error)
	SaveResponses(responses map[string]*EventBucket) error
	Close() error
}

// Store guards the two caches with a single coarse lock. Every mutating
// operation (and the save that follows it) runs inside one critical section
// via Update; reads go through View.
type Store struct {
	driver Driver
	clock  func() time.Time

	mu        sync.RWMutex
	events    []*Event
	index     map[string]*Event // folded name -> event
	responses map[string]*EventBucket
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source. Tests use this to advance time
// deterministically; everything that needs "now" inside a transaction must
// go through Tx.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New creates a Store over the given driver. Call Load before first use.
func New(driver Driver, opts ...Option) *Store {
	s := &Store{
		driver:    driver,
		clock:     time.Now,
		index:     make(map[string]*Event),
		responses: make(map[string]*EventBucket),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load populates the caches from the driver. It is called exactly once at
// startup, before any transaction runs.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.driver.LoadEvents()
	if err != nil {
		return err
	}
	responses, err := s.driver.LoadResponses()
	if err != nil {
		return err
	}

	s.events = events
	s.index = make(map[string]*Event, len(events))
	for _, e := range events {
		s.index[foldName(e.Name)] = e
	}
	s.responses = responses
	slog.Info("store: loaded caches", "events", len(events), "responses", len(responses))
	return nil
}

// Close releases the driver.
func (s *Store) Close() error {
	return s.driver.Close()
}

// Update runs fn inside the write lock. If fn succeeds, dirty caches are
// persisted before the lock is released, so cache mutation and save form one
// atomic step with respect to concurrent commands.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{store: s, writable: true}
	if err := fn(tx); err != nil {
		return err
	}
	return s.persist(tx)
}

// View runs fn inside the read lock. Mutating Tx methods panic in a View.
func (s *Store) View(fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&Tx{store: s})
}

func (s *Store) persist(tx *Tx) error {
	if tx.eventsDirty {
		if err := s.driver.SaveEvents(s.events); err != nil {
			slog.Error("store: failed to save events", "error", err)
			return err
		}
	}
	if tx.responsesDirty {
		if err := s.driver.SaveResponses(s.responses); err != nil {
			slog.Error("store: failed to save responses", "error", err)
			return err
		}
	}
	return nil
}

// Tx is a view over the caches valid for the duration of one Update or View
// closure. Pointers returned by Tx methods must not escape the closure;
// callers clone what they need to keep.
type Tx struct {
	store          *Store
	writable       bool
	eventsDirty    bool
	responsesDirty bool
}

// Now returns the store clock's current time in UTC.
func (tx *Tx) Now() time.Time {
	return tx.store.clock().UTC()
}

func (tx *Tx) markEventsDirty() {
	if !tx.writable {
		panic("store: write inside read-only transaction")
	}
	tx.eventsDirty = true
}

func (tx *Tx) markResponsesDirty() {
	if !tx.writable {
		panic("store: write inside read-only transaction")
	}
	tx.responsesDirty = true
}

// Events returns all cached events in insertion order.
func (tx *Tx) Events() []*Event {
	return tx.store.events
}

// GetEvent looks an event up by name, case-insensitively.
func (tx *Tx) GetEvent(name string) (*Event, error) {
	e, ok := tx.store.index[foldName(name)]
	if !ok {
		return nil, eventErr(ErrEventNotFound, name)
	}
	return e, nil
}

// AddEvent appends a new event to the cache. Fails if a name collision
// exists under case-insensitive comparison.
func (tx *Tx) AddEvent(e *Event) error {
	key := foldName(e.Name)
	if _, ok := tx.store.index[key]; ok {
		return eventErr(ErrEventExists, e.Name)
	}
	if e.MaxCapacity != nil && *e.MaxCapacity <= 0 {
		return eventErr(ErrInvalidCapacity, e.Name)
	}
	tx.store.events = append(tx.store.events, e)
	tx.store.index[key] = e
	tx.markEventsDirty()
	return nil
}

// UpdateEvent applies a patch to an existing event. All validation completes
// before any field is mutated.
func (tx *Tx) UpdateEvent(name string, patch *UpdateEvent) (*Event, error) {
	e, err := tx.GetEvent(name)
	if err != nil {
		return nil, err
	}
	if e.Archived {
		return nil, eventErr(ErrEventArchived, e.Name)
	}
	if patch.isNoop(e) {
		return nil, eventErr(ErrNoChanges, e.Name)
	}

	now := tx.Now()
	newStart := e.StartTime
	if patch.StartTime != nil {
		if !patch.StartTime.After(now) {
			return nil, eventErr(ErrDateTimeInPast, e.Name)
		}
		newStart = *patch.StartTime
	}
	newDeadline := e.Deadline
	if patch.SetDeadline {
		newDeadline = patch.Deadline
	}
	if newDeadline != nil {
		if patch.SetDeadline && patch.Deadline != nil && !patch.Deadline.After(now) {
			return nil, eventErr(ErrDeadlineInPast, e.Name)
		}
		if !newDeadline.Before(newStart) {
			return nil, eventErr(ErrDeadlineAfterEvent, e.Name)
		}
	}

	if patch.SetMaxCapacity && patch.MaxCapacity != nil {
		if *patch.MaxCapacity <= 0 {
			return nil, eventErr(ErrInvalidCapacity, e.Name)
		}
		if old := e.MaxCapacity; old == nil || *patch.MaxCapacity < *old {
			if *patch.MaxCapacity < tx.HeadCount(e.Name) {
				return nil, eventErr(ErrCapacityBelowCurrent, e.Name)
			}
			if len(tx.GetWaitlist(e.Name)) > 0 {
				return nil, eventErr(ErrCapacityWithWaitlist, e.Name)
			}
		}
	}

	if patch.Venue != nil {
		e.Venue = *patch.Venue
	}
	if patch.Address != nil {
		e.Address = *patch.Address
	}
	if patch.GoogleMapsLink != nil {
		e.GoogleMapsLink = *patch.GoogleMapsLink
	}
	if patch.StartTime != nil {
		e.StartTime = newStart
	}
	if patch.SetDeadline {
		e.Deadline = newDeadline
	}
	if patch.Drinks != nil {
		e.Drinks = patch.Drinks
	}
	if patch.SetMaxCapacity {
		e.MaxCapacity = patch.MaxCapacity
	}
	tx.markEventsDirty()
	return e, nil
}

// SetOpenStatus opens or closes an event. Closing records the head count as
// the closed attendance count; reopening clears it.
func (tx *Tx) SetOpenStatus(name string, open bool) (*Event, error) {
	e, err := tx.GetEvent(name)
	if err != nil {
		return nil, err
	}
	if e.Archived {
		return nil, eventErr(ErrEventArchived, e.Name)
	}
	if e.Open == open {
		if open {
			return nil, eventErr(ErrAlreadyOpen, e.Name)
		}
		return nil, eventErr(ErrAlreadyClosed, e.Name)
	}
	e.Open = open
	if open {
		e.ClosedAttendanceCount = nil
	} else {
		count := tx.HeadCount(e.Name)
		e.ClosedAttendanceCount = &count
	}
	tx.markEventsDirty()
	return e, nil
}

// ArchiveEvent marks an event archived. Archival is terminal and forces the
// event closed.
func (tx *Tx) ArchiveEvent(name string) (*Event, error) {
	e, err := tx.GetEvent(name)
	if err != nil {
		return nil, err
	}
	if e.Archived {
		return nil, eventErr(ErrAlreadyArchived, e.Name)
	}
	e.Archived = true
	e.Open = false
	tx.markEventsDirty()
	return e, nil
}

// SetEventMessage records the platform identifiers of the posted event
// message.
func (tx *Tx) SetEventMessage(name string, messageID int64, threadID *int64) (*Event, error) {
	e, err := tx.GetEvent(name)
	if err != nil {
		return nil, err
	}
	e.MessageID = &messageID
	if threadID != nil {
		e.ThreadID = threadID
	}
	tx.markEventsDirty()
	return e, nil
}

// canonicalName resolves the responses key for an event name. Buckets for
// events that are no longer in the event cache keep their stored spelling.
func (tx *Tx) canonicalName(name string) string {
	if e, ok := tx.store.index[foldName(name)]; ok {
		return e.Name
	}
	return name
}

func (tx *Tx) bucket(name string) *EventBucket {
	key := tx.canonicalName(name)
	b, ok := tx.store.responses[key]
	if !ok {
		b = &EventBucket{}
		tx.store.responses[key] = b
	}
	return b
}

// GetConfirmed returns the confirmed registrations for an event.
func (tx *Tx) GetConfirmed(name string) []*Registration {
	if b, ok := tx.store.responses[tx.canonicalName(name)]; ok {
		return b.Attendees
	}
	return nil
}

// GetWaitlist returns the waitlist for an event, oldest entry first.
func (tx *Tx) GetWaitlist(name string) []*Registration {
	if b, ok := tx.store.responses[tx.canonicalName(name)]; ok {
		return b.Waitlist
	}
	return nil
}

// HeadCount sums party sizes over the confirmed registrations of an event.
func (tx *Tx) HeadCount(name string) int {
	if b, ok := tx.store.responses[tx.canonicalName(name)]; ok {
		return b.HeadCount()
	}
	return 0
}

// AddConfirmed appends a registration to the confirmed bucket. A user may
// appear in at most one bucket per event.
func (tx *Tx) AddConfirmed(name string, reg *Registration) error {
	b := tx.bucket(name)
	if b.contains(reg.UserID) {
		return responseErr(ErrDuplicateResponse, tx.canonicalName(name), reg.UserID)
	}
	b.Attendees = append(b.Attendees, reg)
	tx.markResponsesDirty()
	return nil
}

// AddWaitlist appends an entry to the waitlist. Same duplicate rule as
// AddConfirmed.
func (tx *Tx) AddWaitlist(name string, reg *Registration) error {
	b := tx.bucket(name)
	if b.contains(reg.UserID) {
		return responseErr(ErrDuplicateResponse, tx.canonicalName(name), reg.UserID)
	}
	b.Waitlist = append(b.Waitlist, reg)
	tx.markResponsesDirty()
	return nil
}

// RemoveConfirmed removes and returns a user's confirmed registration.
func (tx *Tx) RemoveConfirmed(name string, userID int64) (*Registration, error) {
	b := tx.bucket(name)
	for i, r := range b.Attendees {
		if r.UserID == userID {
			b.Attendees = append(b.Attendees[:i], b.Attendees[i+1:]...)
			tx.markResponsesDirty()
			return r, nil
		}
	}
	return nil, responseErr(ErrResponseNotFound, tx.canonicalName(name), userID)
}

// RemoveWaitlist removes and returns a user's waitlist entry.
func (tx *Tx) RemoveWaitlist(name string, userID int64) (*Registration, error) {
	b := tx.bucket(name)
	for i, r := range b.Waitlist {
		if r.UserID == userID {
			b.Waitlist = append(b.Waitlist[:i], b.Waitlist[i+1:]...)
			tx.markResponsesDirty()
			return r, nil
		}
	}
	return nil, responseErr(ErrWaitlistNotFound, tx.canonicalName(name), userID)
}

// PromoteHead pops the oldest waitlist entry and returns it without inserting
// it anywhere. The caller decides whether it fits and re-adds it via
// AddConfirmed. Returns nil when the waitlist is empty.
func (tx *Tx) PromoteHead(name string) *Registration {
	b := tx.bucket(name)
	if len(b.Waitlist) == 0 {
		return nil
	}
	head := b.Waitlist[0]
	b.Waitlist = b.Waitlist[1:]
	tx.markResponsesDirty()
	return head
}

// PromoteSpecific removes a named entry from the waitlist, bypassing FIFO
// order. Used for organizer-initiated promotion.
func (tx *Tx) PromoteSpecific(name string, userID int64) (*Registration, error) {
	return tx.RemoveWaitlist(name, userID)
}
