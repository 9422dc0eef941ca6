package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/sorakado/offkai/plugin/alerts"
	"github.com/sorakado/offkai/plugin/chatbridge"
	"github.com/sorakado/offkai/plugin/chatbridge/metrics"
	"github.com/sorakado/offkai/store"
)

// reminderOffsets are the deltas before the deadline at which reminders
// fire. The zero offset is the auto-close itself.
var reminderOffsets = []struct {
	delta time.Duration
	label string
}{
	{0, ""},
	{-24 * time.Hour, "tomorrow"},
	{-3 * 24 * time.Hour, "in 3 days"},
	{-7 * 24 * time.Hour, "in 7 days"},
}

// sendMessageTask posts a deadline reminder when its minute comes. The
// deadline the task was registered for is pinned; if the event moved or
// closed in the meantime the stale reminder is dropped.
type sendMessageTask struct {
	id        string
	svc       *Service
	eventName string
	channelID int64
	deadline  time.Time
	text      string
}

func (t *sendMessageTask) ID() string {
	return t.id
}

func (t *sendMessageTask) Describe() string {
	return fmt.Sprintf("remind %q in channel %d", t.eventName, t.channelID)
}

func (t *sendMessageTask) Run(ctx context.Context) error {
	e, err := t.svc.GetEvent(ctx, t.eventName)
	if err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			slog.Warn("event: reminder for unknown event, skipping", "event", t.eventName)
			metrics.SchedulerTasks.WithLabelValues("skipped").Inc()
			return nil
		}
		metrics.SchedulerTasks.WithLabelValues("error").Inc()
		return err
	}
	if e.Archived || !e.Open || e.Deadline == nil || !e.Deadline.Equal(t.deadline) {
		slog.Info("event: reminder skipped, deadline moved or event closed", "event", t.eventName)
		metrics.SchedulerTasks.WithLabelValues("skipped").Inc()
		return nil
	}

	plan := chatbridge.NewPlan()
	plan.Send(t.channelID, t.text)
	if err := t.svc.Notify(ctx, plan); err != nil {
		metrics.SchedulerTasks.WithLabelValues("error").Inc()
		return err
	}
	metrics.SchedulerTasks.WithLabelValues("ok").Inc()
	return nil
}

// autoCloseTask executes the close-event flow at the deadline minute.
type autoCloseTask struct {
	id        string
	svc       *Service
	eventName string
	message   string
}

func (t *autoCloseTask) ID() string {
	return t.id
}

func (t *autoCloseTask) Describe() string {
	return fmt.Sprintf("auto-close event %q", t.eventName)
}

func (t *autoCloseTask) Run(ctx context.Context) error {
	if err := t.svc.AutoClose(ctx, t.eventName, t.message); err != nil {
		metrics.SchedulerTasks.WithLabelValues("error").Inc()
		return err
	}
	metrics.SchedulerTasks.WithLabelValues("ok").Inc()
	return nil
}

// AutoClose closes an event because its deadline arrived. Tasks registered
// for a deadline that has since moved or whose event already closed are
// skipped, not failed.
func (s *Service) AutoClose(ctx context.Context, name, message string) error {
	e, err := s.GetEvent(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			slog.Warn("event: auto-close for unknown event, skipping", "event", name)
			return nil
		}
		return err
	}
	now := s.clock().UTC()
	if e.Deadline == nil || now.Before(*e.Deadline) {
		slog.Info("event: auto-close skipped, deadline moved", "event", name)
		return nil
	}
	if !e.Open || e.Archived {
		slog.Info("event: auto-close skipped, already closed", "event", name)
		return nil
	}

	_, plan, err := s.CloseEvent(ctx, name, message)
	if err != nil {
		return err
	}
	slog.Info("event: auto-closed at deadline", "event", name)
	return s.Notify(ctx, plan)
}

// RegisterReminders queues the deadline reminders and the auto-close for an
// event. Offsets already in the past are silently skipped so that the
// remaining reminders still register.
func (s *Service) RegisterReminders(e *store.Event) {
	if s.scheduler == nil || e.Deadline == nil {
		return
	}
	for _, offset := range reminderOffsets {
		at := e.Deadline.Add(offset.delta)
		var task alerts.Task
		if offset.delta == 0 {
			task = &autoCloseTask{
				id:        shortuuid.New(),
				svc:       s,
				eventName: e.Name,
				message:   deadlineReachedMessage(e),
			}
		} else {
			if e.ChannelID == nil {
				continue
			}
			task = &sendMessageTask{
				id:        shortuuid.New(),
				svc:       s,
				eventName: e.Name,
				channelID: *e.ChannelID,
				deadline:  *e.Deadline,
				text:      reminderMessage(e, offset.label),
			}
		}
		if err := s.scheduler.Register(at, task); err != nil {
			if errors.Is(err, alerts.ErrTimeInPast) {
				continue
			}
			slog.Error("event: failed to register reminder", "event", e.Name, "error", err)
		}
	}
}

// RescheduleAll re-registers reminders for every live event. The scheduler
// queue is in-memory only; this runs once after the caches load.
func (s *Service) RescheduleAll(ctx context.Context) error {
	var snapshots []*store.Event
	err := s.store.View(func(tx *store.Tx) error {
		for _, e := range tx.Events() {
			if e.Archived || !e.Open || e.Deadline == nil {
				continue
			}
			snapshots = append(snapshots, e.Clone())
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, e := range snapshots {
		s.RegisterReminders(e)
	}
	slog.Info("event: rescheduled deadline reminders", "events", len(snapshots))
	return nil
}
