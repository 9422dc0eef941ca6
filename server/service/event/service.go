// Package event implements the business logic of the offkai bot: event
// lifecycle commands, registration admission, waitlist promotion and the
// deadline alert wiring. Every mutating command runs one store transaction
// and returns a notification plan; callers drain the plan outside the lock.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/sorakado/offkai/internal/timeutil"
	"github.com/sorakado/offkai/plugin/alerts"
	"github.com/sorakado/offkai/plugin/chatbridge"
	"github.com/sorakado/offkai/store"
)

// Service composes the store, the alert scheduler and the notifier.
type Service struct {
	store     *store.Store
	scheduler *alerts.Scheduler
	notifier  *chatbridge.Notifier
	clock     func() time.Time
	guildID   int64
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects the time source shared with the store and scheduler.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithNotifier attaches the plan drainer used by scheduler tasks and
// command callers.
func WithNotifier(n *chatbridge.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithGuild sets the guild used for role side effects.
func WithGuild(guildID int64) Option {
	return func(s *Service) {
		s.guildID = guildID
	}
}

// New creates the service.
func New(st *store.Store, scheduler *alerts.Scheduler, opts ...Option) *Service {
	s := &Service{
		store:     st,
		scheduler: scheduler,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify drains a plan through the configured notifier. Without a notifier
// the plan is dropped; tests assert on plans directly.
func (s *Service) Notify(ctx context.Context, plan *chatbridge.Plan) error {
	if s.notifier == nil || plan.Empty() {
		return nil
	}
	return s.notifier.Drain(ctx, plan)
}

// ParseLocalTime reads a user-supplied timestamp: naive input is taken as
// JST. Failures map to the InvalidDateTime error kind.
func ParseLocalTime(value string) (time.Time, error) {
	t, err := timeutil.Parse(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", store.ErrInvalidDateTime, value)
	}
	return t, nil
}

// CreateEventRequest carries the fields of a create command.
type CreateEventRequest struct {
	Name           string
	Venue          string
	Address        string
	GoogleMapsLink string
	StartTime      time.Time
	Deadline       *time.Time
	Drinks         []string
	MaxCapacity    *int
	CreatorID      int64
	ChannelID      *int64
	PingRoleID     *int64
	Announcement   string
}

// CreateEvent validates the request, appends the event, registers deadline
// reminders and plans the announcement message.
func (s *Service) CreateEvent(ctx context.Context, req *CreateEventRequest) (*store.Event, *chatbridge.Plan, error) {
	now := s.clock().UTC()
	if !req.StartTime.After(now) {
		return nil, nil, fmt.Errorf("%w: %q", store.ErrDateTimeInPast, req.Name)
	}
	if req.Deadline != nil {
		if !req.Deadline.After(now) {
			return nil, nil, fmt.Errorf("%w: %q", store.ErrDeadlineInPast, req.Name)
		}
		if !req.Deadline.Before(req.StartTime) {
			return nil, nil, fmt.Errorf("%w: %q", store.ErrDeadlineAfterEvent, req.Name)
		}
	}

	e := &store.Event{
		Name:           req.Name,
		Venue:          req.Venue,
		Address:        req.Address,
		GoogleMapsLink: req.GoogleMapsLink,
		StartTime:      req.StartTime.UTC(),
		Drinks:         req.Drinks,
		MaxCapacity:    req.MaxCapacity,
		ChannelID:      req.ChannelID,
		PingRoleID:     req.PingRoleID,
		CreatorID:      &req.CreatorID,
		Open:           true,
	}
	if req.Deadline != nil {
		d := req.Deadline.UTC()
		e.Deadline = &d
	}
	if req.Announcement != "" {
		msg := req.Announcement
		e.Message = &msg
	}

	var snapshot *store.Event
	err := s.store.Update(func(tx *store.Tx) error {
		if err := tx.AddEvent(e); err != nil {
			return err
		}
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.RegisterReminders(snapshot)

	plan := chatbridge.NewPlan()
	if snapshot.ChannelID != nil && req.Announcement != "" {
		plan.Send(*snapshot.ChannelID, req.Announcement)
	}
	return snapshot, plan, nil
}

// AttachEventMessage records the platform identifiers of the posted event
// message and plans pinning it.
func (s *Service) AttachEventMessage(ctx context.Context, name string, messageID int64, threadID *int64) (*chatbridge.Plan, error) {
	var snapshot *store.Event
	err := s.store.Update(func(tx *store.Tx) error {
		e, err := tx.SetEventMessage(name, messageID, threadID)
		if err != nil {
			return err
		}
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	plan := chatbridge.NewPlan()
	if snapshot.ChannelID != nil {
		plan.Pin(*snapshot.ChannelID, messageID)
	}
	return plan, nil
}

// ModifyEvent applies a patch. A capacity increase triggers batch promotion;
// a deadline change re-registers the deadline reminders.
func (s *Service) ModifyEvent(ctx context.Context, name string, patch *store.UpdateEvent) (*store.Event, *chatbridge.Plan, error) {
	var (
		snapshot        *store.Event
		promoted        []*store.Registration
		deadlineChanged bool
	)
	err := s.store.Update(func(tx *store.Tx) error {
		before, err := tx.GetEvent(name)
		if err != nil {
			return err
		}
		oldCap := before.MaxCapacity
		var oldCapVal int
		if oldCap != nil {
			oldCapVal = *oldCap
		}
		hadCap := oldCap != nil
		oldDeadline := before.Deadline

		e, err := tx.UpdateEvent(name, patch)
		if err != nil {
			return err
		}

		if capacityIncreased(hadCap, oldCapVal, e.MaxCapacity) {
			promoted = cloneRegistrations(promote(tx, e, triggerCapacityIncrease))
		}
		deadlineChanged = patch.SetDeadline && !sameDeadline(oldDeadline, e.Deadline)
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if deadlineChanged {
		s.RegisterReminders(snapshot)
	}

	plan := chatbridge.NewPlan()
	s.planPromotions(plan, snapshot, promoted)
	s.planRefresh(plan, snapshot)
	return snapshot, plan, nil
}

// CloseEvent closes registrations and records the attendance snapshot. An
// optional close message is posted to the event thread.
func (s *Service) CloseEvent(ctx context.Context, name, closeMessage string) (*store.Event, *chatbridge.Plan, error) {
	var snapshot *store.Event
	err := s.store.Update(func(tx *store.Tx) error {
		e, err := tx.SetOpenStatus(name, false)
		if err != nil {
			return err
		}
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	plan := chatbridge.NewPlan()
	s.planRefresh(plan, snapshot)
	if closeMessage != "" && snapshot.ThreadID != nil {
		plan.Send(*snapshot.ThreadID, closeMessage)
	}
	return snapshot, plan, nil
}

// ReopenEvent reopens registrations, clears the closed attendance cap and
// resumes promotion against the full capacity.
func (s *Service) ReopenEvent(ctx context.Context, name string) (*store.Event, *chatbridge.Plan, error) {
	var (
		snapshot *store.Event
		promoted []*store.Registration
	)
	err := s.store.Update(func(tx *store.Tx) error {
		e, err := tx.SetOpenStatus(name, true)
		if err != nil {
			return err
		}
		promoted = cloneRegistrations(promote(tx, e, triggerReopen))
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	plan := chatbridge.NewPlan()
	s.planPromotions(plan, snapshot, promoted)
	s.planRefresh(plan, snapshot)
	return snapshot, plan, nil
}

// ArchiveEvent archives the event. Thread archival and role deletion are
// best-effort side effects that never block archival.
func (s *Service) ArchiveEvent(ctx context.Context, name string) (*store.Event, *chatbridge.Plan, error) {
	var snapshot *store.Event
	err := s.store.Update(func(tx *store.Tx) error {
		e, err := tx.ArchiveEvent(name)
		if err != nil {
			return err
		}
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	plan := chatbridge.NewPlan()
	if snapshot.ThreadID != nil {
		plan.ArchiveThread(*snapshot.ThreadID)
	}
	if snapshot.RoleID != nil {
		plan.DeleteRole(s.guildID, *snapshot.RoleID)
	}
	return snapshot, plan, nil
}

// Broadcast posts a message to the event thread, falling back to the event
// channel when no thread exists.
func (s *Service) Broadcast(ctx context.Context, name, text string) (*chatbridge.Plan, error) {
	plan := chatbridge.NewPlan()
	err := s.store.View(func(tx *store.Tx) error {
		e, err := tx.GetEvent(name)
		if err != nil {
			return err
		}
		switch {
		case e.ThreadID != nil:
			plan.Send(*e.ThreadID, text)
		case e.ChannelID != nil:
			plan.Send(*e.ChannelID, text)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// GetEvent returns a snapshot of an event.
func (s *Service) GetEvent(ctx context.Context, name string) (*store.Event, error) {
	var snapshot *store.Event
	err := s.store.View(func(tx *store.Tx) error {
		e, err := tx.GetEvent(name)
		if err != nil {
			return err
		}
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// planPromotions queues one direct message per promoted user, plus the
// event role where the event carries one.
func (s *Service) planPromotions(plan *chatbridge.Plan, e *store.Event, promoted []*store.Registration) {
	for _, reg := range promoted {
		plan.DM(reg.UserID, promotionMessage(e, reg))
		s.planRoleAssign(plan, e, reg.UserID)
	}
}

// planRoleAssign queues best-effort assignment of the event role.
func (s *Service) planRoleAssign(plan *chatbridge.Plan, e *store.Event, userID int64) {
	if e.RoleID != nil {
		plan.AssignRole(s.guildID, userID, *e.RoleID)
	}
}

// planRoleRemove queues best-effort removal of the event role.
func (s *Service) planRoleRemove(plan *chatbridge.Plan, e *store.Event, userID int64) {
	if e.RoleID != nil {
		plan.RemoveRole(s.guildID, userID, *e.RoleID)
	}
}

// planRefresh queues a re-render of the pinned event message.
func (s *Service) planRefresh(plan *chatbridge.Plan, e *store.Event) {
	if e.ChannelID == nil || e.MessageID == nil {
		return
	}
	var head, waiting int
	_ = s.store.View(func(tx *store.Tx) error {
		head = tx.HeadCount(e.Name)
		waiting = len(tx.GetWaitlist(e.Name))
		return nil
	})
	plan.Edit(*e.ChannelID, *e.MessageID, renderEventMessage(e, head, waiting))
}

func capacityIncreased(hadCap bool, oldCap int, newCap *int) bool {
	if !hadCap {
		return false // unlimited cannot increase
	}
	if newCap == nil {
		return true // limited -> unlimited
	}
	return *newCap > oldCap
}

func sameDeadline(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
