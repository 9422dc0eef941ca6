package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorakado/offkai/plugin/alerts"
	"github.com/sorakado/offkai/plugin/chatbridge"
	"github.com/sorakado/offkai/store"
)

// newScheduledService exposes the scheduler for reminder assertions.
func newScheduledService(t *testing.T) (*Service, *store.Store, *alerts.Scheduler) {
	t.Helper()
	clock := func() time.Time { return testNow }
	st := store.New(&memDriver{}, store.WithClock(clock))
	require.NoError(t, st.Load())
	scheduler := alerts.New(alerts.WithClock(clock))
	return New(st, scheduler, WithClock(clock)), st, scheduler
}

func kinds(plan *chatbridge.Plan) []chatbridge.ActionKind {
	var out []chatbridge.ActionKind
	for _, a := range plan.Actions {
		out = append(out, a.Kind)
	}
	return out
}

func TestParseLocalTime(t *testing.T) {
	got, err := ParseLocalTime("2026-07-15T19:00:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)))

	_, err = ParseLocalTime("someday")
	assert.ErrorIs(t, err, store.ErrInvalidDateTime)
}

func TestCreateEventValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name    string
		mutate  func(req *CreateEventRequest)
		wantErr error
	}{
		{
			name:    "start time in the past",
			mutate:  func(req *CreateEventRequest) { req.StartTime = testNow.Add(-time.Hour) },
			wantErr: store.ErrDateTimeInPast,
		},
		{
			name: "deadline in the past",
			mutate: func(req *CreateEventRequest) {
				req.Deadline = ptr(testNow.Add(-time.Hour))
			},
			wantErr: store.ErrDeadlineInPast,
		},
		{
			name: "deadline not before start",
			mutate: func(req *CreateEventRequest) {
				req.Deadline = ptr(req.StartTime)
			},
			wantErr: store.ErrDeadlineAfterEvent,
		},
		{
			name:    "zero capacity",
			mutate:  func(req *CreateEventRequest) { req.MaxCapacity = ptr(0) },
			wantErr: store.ErrInvalidCapacity,
		},
		{
			name:    "negative capacity",
			mutate:  func(req *CreateEventRequest) { req.MaxCapacity = ptr(-5) },
			wantErr: store.ErrInvalidCapacity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &CreateEventRequest{
				Name:      "Bad Offkai",
				Venue:     "Warabiya",
				Address:   "Shinjuku",
				StartTime: testNow.Add(14 * 24 * time.Hour),
				CreatorID: 999,
			}
			tt.mutate(req)
			_, _, err := svc.CreateEvent(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateEventDuplicateName(t *testing.T) {
	svc, _ := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", nil)

	_, _, err := svc.CreateEvent(context.Background(), &CreateEventRequest{
		Name:      "SUMMER OFFKAI",
		Venue:     "elsewhere",
		Address:   "elsewhere",
		StartTime: testNow.Add(24 * time.Hour),
		CreatorID: 999,
	})
	assert.ErrorIs(t, err, store.ErrEventExists)
}

func TestCreateEventRegistersReminders(t *testing.T) {
	svc, _, scheduler := newScheduledService(t)

	deadline := testNow.Add(7 * 24 * time.Hour)
	_, _, err := svc.CreateEvent(context.Background(), &CreateEventRequest{
		Name:      "Summer Offkai",
		Venue:     "Warabiya",
		Address:   "Shinjuku",
		StartTime: testNow.Add(14 * 24 * time.Hour),
		Deadline:  &deadline,
		CreatorID: 999,
		ChannelID: ptr(int64(100)),
	})
	require.NoError(t, err)

	// Auto-close plus the one-day and three-day reminders; the seven-day
	// offset lands exactly on now and is suppressed.
	assert.Equal(t, 3, scheduler.Pending())
}

func TestCreateEventAnnouncement(t *testing.T) {
	svc, _ := newTestService(t)

	e, plan, err := svc.CreateEvent(context.Background(), &CreateEventRequest{
		Name:         "Summer Offkai",
		Venue:        "Warabiya",
		Address:      "Shinjuku",
		StartTime:    testNow.Add(14 * 24 * time.Hour),
		CreatorID:    999,
		ChannelID:    ptr(int64(100)),
		Announcement: "Summer offkai is on!",
	})
	require.NoError(t, err)
	require.NotNil(t, e.Message)

	require.Len(t, plan.Actions, 1)
	assert.Equal(t, chatbridge.ActionSendMessage, plan.Actions[0].Kind)
	assert.Equal(t, int64(100), plan.Actions[0].ChannelID)
	assert.Equal(t, "Summer offkai is on!", plan.Actions[0].Text)
}

func TestAttachEventMessagePlansPin(t *testing.T) {
	svc, st := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", nil)

	plan, err := svc.AttachEventMessage(context.Background(), "Summer Offkai", 424242, ptr(int64(777)))
	require.NoError(t, err)

	require.Len(t, plan.Actions, 1)
	assert.Equal(t, chatbridge.ActionPinMessage, plan.Actions[0].Kind)
	assert.True(t, plan.Actions[0].Critical)

	require.NoError(t, st.View(func(tx *store.Tx) error {
		e, err := tx.GetEvent("Summer Offkai")
		require.NoError(t, err)
		require.NotNil(t, e.MessageID)
		assert.Equal(t, int64(424242), *e.MessageID)
		require.NotNil(t, e.ThreadID)
		assert.Equal(t, int64(777), *e.ThreadID)
		return nil
	}))
}

func TestModifyEventDeadlineChangeReschedules(t *testing.T) {
	svc, _, scheduler := newScheduledService(t)

	deadline := testNow.Add(2 * 24 * time.Hour)
	_, _, err := svc.CreateEvent(context.Background(), &CreateEventRequest{
		Name:      "Summer Offkai",
		Venue:     "Warabiya",
		Address:   "Shinjuku",
		StartTime: testNow.Add(14 * 24 * time.Hour),
		Deadline:  &deadline,
		CreatorID: 999,
		ChannelID: ptr(int64(100)),
	})
	require.NoError(t, err)
	before := scheduler.Pending()

	newDeadline := testNow.Add(5 * 24 * time.Hour)
	_, _, err = svc.ModifyEvent(context.Background(), "Summer Offkai", &store.UpdateEvent{
		SetDeadline: true,
		Deadline:    &newDeadline,
	})
	require.NoError(t, err)
	assert.Greater(t, scheduler.Pending(), before)
}

// captureClient records sent channel messages; everything else is a no-op.
type captureClient struct {
	sends []string
}

func (c *captureClient) SendMessage(ctx context.Context, channelID int64, text string) (int64, error) {
	c.sends = append(c.sends, text)
	return 1, nil
}

func (c *captureClient) PinMessage(ctx context.Context, channelID, messageID int64) error {
	return nil
}

func (c *captureClient) EditMessage(ctx context.Context, channelID, messageID int64, text string) error {
	return nil
}

func (c *captureClient) DMUser(ctx context.Context, userID int64, text string) error { return nil }

func (c *captureClient) ArchiveThread(ctx context.Context, threadID int64) error { return nil }

func (c *captureClient) AssignRole(ctx context.Context, guildID, userID, roleID int64) error {
	return nil
}

func (c *captureClient) RemoveRole(ctx context.Context, guildID, userID, roleID int64) error {
	return nil
}

func (c *captureClient) DeleteRole(ctx context.Context, guildID, roleID int64) error { return nil }

func (c *captureClient) Close() error { return nil }

func TestStaleReminderSkippedAfterDeadlineChange(t *testing.T) {
	clock := func() time.Time { return testNow }
	st := store.New(&memDriver{}, store.WithClock(clock))
	require.NoError(t, st.Load())
	scheduler := alerts.New(alerts.WithClock(clock))
	client := &captureClient{}
	svc := New(st, scheduler,
		WithClock(clock),
		WithNotifier(chatbridge.NewNotifier(client, 1000)))

	deadline := testNow.Add(2 * 24 * time.Hour)
	_, _, err := svc.CreateEvent(context.Background(), &CreateEventRequest{
		Name:      "Summer Offkai",
		Venue:     "Warabiya",
		Address:   "Shinjuku",
		StartTime: testNow.Add(14 * 24 * time.Hour),
		Deadline:  &deadline,
		CreatorID: 999,
		ChannelID: ptr(int64(100)),
	})
	require.NoError(t, err)

	newDeadline := testNow.Add(5 * 24 * time.Hour)
	_, _, err = svc.ModifyEvent(context.Background(), "Summer Offkai", &store.UpdateEvent{
		SetDeadline: true,
		Deadline:    &newDeadline,
	})
	require.NoError(t, err)

	// The one-day reminder for the original deadline is still queued; firing
	// it must not post anything because the deadline it quotes is gone.
	scheduler.Tick(context.Background(), testNow.Add(24*time.Hour))
	assert.Empty(t, client.sends)

	// The reminder registered for the new deadline still goes out.
	scheduler.Tick(context.Background(), testNow.Add(4*24*time.Hour))
	require.Len(t, client.sends, 1)
	assert.Contains(t, client.sends[0], "tomorrow")
}

func TestModifyEventNoop(t *testing.T) {
	svc, _ := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", nil)

	_, _, err := svc.ModifyEvent(context.Background(), "Summer Offkai", &store.UpdateEvent{
		Venue: ptr("Warabiya"),
	})
	assert.ErrorIs(t, err, store.ErrNoChanges)
}

func TestCloseEventPostsCloseMessageToThread(t *testing.T) {
	svc, _ := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", nil)
	_, err := svc.AttachEventMessage(context.Background(), "Summer Offkai", 1, ptr(int64(777)))
	require.NoError(t, err)

	_, plan, err := svc.CloseEvent(context.Background(), "Summer Offkai", "See you there!")
	require.NoError(t, err)

	var sent *chatbridge.Action
	for i, a := range plan.Actions {
		if a.Kind == chatbridge.ActionSendMessage {
			sent = &plan.Actions[i]
		}
	}
	require.NotNil(t, sent)
	assert.Equal(t, int64(777), sent.ChannelID)
	assert.Equal(t, "See you there!", sent.Text)
}

func TestArchiveEventPlansThreadAndRoleCleanup(t *testing.T) {
	svc, st := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", nil)
	require.NoError(t, st.Update(func(tx *store.Tx) error {
		e, err := tx.GetEvent("Summer Offkai")
		if err != nil {
			return err
		}
		e.ThreadID = ptr(int64(777))
		e.RoleID = ptr(int64(888))
		return nil
	}))

	e, plan, err := svc.ArchiveEvent(context.Background(), "Summer Offkai")
	require.NoError(t, err)
	assert.True(t, e.Archived)
	assert.False(t, e.Open)

	assert.Equal(t, []chatbridge.ActionKind{
		chatbridge.ActionArchiveThread,
		chatbridge.ActionDeleteRole,
	}, kinds(plan))
}

func TestBroadcastPrefersThread(t *testing.T) {
	svc, st := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", nil)

	plan, err := svc.Broadcast(context.Background(), "Summer Offkai", "hello")
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, int64(100), plan.Actions[0].ChannelID)

	require.NoError(t, st.Update(func(tx *store.Tx) error {
		e, err := tx.GetEvent("Summer Offkai")
		if err != nil {
			return err
		}
		e.ThreadID = ptr(int64(777))
		return nil
	}))

	plan, err = svc.Broadcast(context.Background(), "Summer Offkai", "hello again")
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, int64(777), plan.Actions[0].ChannelID)
}

func TestDeleteRegistrationConfirmedThenWaitlist(t *testing.T) {
	svc, st := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", ptr(1))
	attend(t, svc, "Summer Offkai", 1, 0)
	attend(t, svc, "Summer Offkai", 2, 0)

	// Removing the confirmed user frees the seat for the waitlisted one.
	removed, plan, err := svc.DeleteRegistration(context.Background(), "Summer Offkai", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed.UserID)
	assert.Equal(t, []int64{2}, confirmedIDs(t, st, "Summer Offkai"))
	assert.Equal(t, chatbridge.ActionDMUser, plan.Actions[0].Kind)

	// Removing a waitlist-only user promotes nobody.
	attend(t, svc, "Summer Offkai", 3, 0)
	removed, _, err = svc.DeleteRegistration(context.Background(), "Summer Offkai", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed.UserID)
	assert.Equal(t, []int64{2}, confirmedIDs(t, st, "Summer Offkai"))

	_, _, err = svc.DeleteRegistration(context.Background(), "Summer Offkai", 42)
	assert.ErrorIs(t, err, store.ErrWaitlistNotFound)
}

func TestEventRolePlannedOnConfirmAndWithdraw(t *testing.T) {
	svc, st := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", ptr(10))
	require.NoError(t, st.Update(func(tx *store.Tx) error {
		e, err := tx.GetEvent("Summer Offkai")
		if err != nil {
			return err
		}
		e.RoleID = ptr(int64(888))
		return nil
	}))

	_, plan, err := svc.RegisterAttendance(context.Background(), &AttendanceRequest{
		EventName: "Summer Offkai", UserID: 1, Username: "u",
		BehaviorConfirmed: true, ArrivalConfirmed: true,
	})
	require.NoError(t, err)
	assert.Contains(t, kinds(plan), chatbridge.ActionAssignRole)

	_, plan, err = svc.Withdraw(context.Background(), "Summer Offkai", 1)
	require.NoError(t, err)
	assert.Contains(t, kinds(plan), chatbridge.ActionRemoveRole)
}

func TestWithdrawWaitlistDoesNotPromote(t *testing.T) {
	svc, st := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", ptr(1))
	attend(t, svc, "Summer Offkai", 1, 0)
	attend(t, svc, "Summer Offkai", 2, 0)
	attend(t, svc, "Summer Offkai", 3, 0)

	removed, _, err := svc.WithdrawWaitlist(context.Background(), "Summer Offkai", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed.UserID)
	assert.Equal(t, []int64{1}, confirmedIDs(t, st, "Summer Offkai"))
	assert.Equal(t, []int64{3}, waitlistIDs(t, st, "Summer Offkai"))
}

func TestAutoCloseSkipsWhenDeadlineMoved(t *testing.T) {
	svc, st := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", nil)

	// The stored deadline is still in the future; the fired task must not
	// close the event.
	require.NoError(t, svc.AutoClose(context.Background(), "Summer Offkai", ""))
	require.NoError(t, st.View(func(tx *store.Tx) error {
		e, err := tx.GetEvent("Summer Offkai")
		require.NoError(t, err)
		assert.True(t, e.Open)
		return nil
	}))
}

func TestAutoCloseClosesDueEvent(t *testing.T) {
	svc, st := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", nil)
	require.NoError(t, st.Update(func(tx *store.Tx) error {
		e, err := tx.GetEvent("Summer Offkai")
		if err != nil {
			return err
		}
		past := testNow.Add(-time.Minute)
		e.Deadline = &past
		return nil
	}))

	require.NoError(t, svc.AutoClose(context.Background(), "Summer Offkai", "closed"))
	require.NoError(t, st.View(func(tx *store.Tx) error {
		e, err := tx.GetEvent("Summer Offkai")
		require.NoError(t, err)
		assert.False(t, e.Open)
		require.NotNil(t, e.ClosedAttendanceCount)
		return nil
	}))

	// Running the task again is harmless.
	require.NoError(t, svc.AutoClose(context.Background(), "Summer Offkai", "closed"))
}

func TestAutoCloseUnknownEventIsSkipped(t *testing.T) {
	svc, _ := newTestService(t)
	assert.NoError(t, svc.AutoClose(context.Background(), "deleted event", ""))
}

func TestRescheduleAllSkipsDeadEvents(t *testing.T) {
	svc, _, scheduler := newScheduledService(t)

	deadline := testNow.Add(3 * 24 * time.Hour)
	for _, name := range []string{"Live", "Closed", "Archived", "NoDeadline"} {
		req := &CreateEventRequest{
			Name:      name,
			Venue:     "Warabiya",
			Address:   "Shinjuku",
			StartTime: testNow.Add(14 * 24 * time.Hour),
			CreatorID: 999,
			ChannelID: ptr(int64(100)),
		}
		if name != "NoDeadline" {
			d := deadline
			req.Deadline = &d
		}
		_, _, err := svc.CreateEvent(context.Background(), req)
		require.NoError(t, err)
	}
	_, _, err := svc.CloseEvent(context.Background(), "Closed", "")
	require.NoError(t, err)
	_, _, err = svc.ArchiveEvent(context.Background(), "Archived")
	require.NoError(t, err)

	scheduler.Clear()
	require.NoError(t, svc.RescheduleAll(context.Background()))

	// Only "Live" re-registers: auto-close plus the one-day reminder (the
	// three-day offset is exactly now and suppressed, seven days is past).
	assert.Equal(t, 2, scheduler.Pending())
}
