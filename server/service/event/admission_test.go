package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorakado/offkai/plugin/chatbridge"
	"github.com/sorakado/offkai/store"
)

func TestRegisterAttendanceValidation(t *testing.T) {
	svc, _ := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", ptr(10))

	tests := []struct {
		name    string
		req     *AttendanceRequest
		wantErr error
	}{
		{
			name: "too many extras",
			req: &AttendanceRequest{
				EventName: "Summer Offkai", UserID: 1, Username: "u",
				ExtraPeople: 6, BehaviorConfirmed: true, ArrivalConfirmed: true,
			},
			wantErr: ErrTooManyExtras,
		},
		{
			name: "negative extras",
			req: &AttendanceRequest{
				EventName: "Summer Offkai", UserID: 1, Username: "u",
				ExtraPeople: -1, BehaviorConfirmed: true, ArrivalConfirmed: true,
			},
			wantErr: ErrTooManyExtras,
		},
		{
			name: "extras names mismatch",
			req: &AttendanceRequest{
				EventName: "Summer Offkai", UserID: 1, Username: "u",
				ExtraPeople: 2, ExtrasNames: []string{"only one"},
				BehaviorConfirmed: true, ArrivalConfirmed: true,
			},
			wantErr: ErrExtrasNamesMismatch,
		},
		{
			name: "missing behavior confirmation",
			req: &AttendanceRequest{
				EventName: "Summer Offkai", UserID: 1, Username: "u",
				ArrivalConfirmed: true,
			},
			wantErr: ErrConfirmationRequired,
		},
		{
			name: "missing arrival confirmation",
			req: &AttendanceRequest{
				EventName: "Summer Offkai", UserID: 1, Username: "u",
				BehaviorConfirmed: true,
			},
			wantErr: ErrConfirmationRequired,
		},
		{
			name: "drinks for a dry event",
			req: &AttendanceRequest{
				EventName: "Summer Offkai", UserID: 1, Username: "u",
				BehaviorConfirmed: true, ArrivalConfirmed: true,
				Drinks: []string{"beer"},
			},
			wantErr: ErrDrinksMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.RegisterAttendance(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegisterAttendanceDrinksPerPartyMember(t *testing.T) {
	svc, _ := newTestService(t)
	deadline := testNow.Add(7 * 24 * time.Hour)
	_, _, err := svc.CreateEvent(context.Background(), &CreateEventRequest{
		Name:      "Drinks Offkai",
		Venue:     "Warabiya",
		Address:   "Shinjuku",
		StartTime: testNow.Add(14 * 24 * time.Hour),
		Deadline:  &deadline,
		Drinks:    []string{"beer", "oolong tea", "cola"},
		CreatorID: 999,
	})
	require.NoError(t, err)

	// One drink for a party of two is rejected.
	_, _, err = svc.RegisterAttendance(context.Background(), &AttendanceRequest{
		EventName: "Drinks Offkai", UserID: 1, Username: "u",
		ExtraPeople: 1, ExtrasNames: []string{"guest"},
		BehaviorConfirmed: true, ArrivalConfirmed: true,
		Drinks: []string{"beer"},
	})
	assert.ErrorIs(t, err, ErrDrinksMismatch)

	outcome, _, err := svc.RegisterAttendance(context.Background(), &AttendanceRequest{
		EventName: "Drinks Offkai", UserID: 1, Username: "u",
		ExtraPeople: 1, ExtrasNames: []string{"guest"},
		BehaviorConfirmed: true, ArrivalConfirmed: true,
		Drinks: []string{"beer", "cola"},
	})
	require.NoError(t, err)
	assert.Equal(t, AdmissionConfirmed, outcome)
}

func TestRegisterAttendanceDecisionTable(t *testing.T) {
	t.Run("closed event waitlists", func(t *testing.T) {
		svc, _ := newTestService(t)
		createTestEvent(t, svc, "Summer Offkai", ptr(10))
		_, _, err := svc.CloseEvent(context.Background(), "Summer Offkai", "")
		require.NoError(t, err)

		assert.Equal(t, AdmissionWaitlisted, attend(t, svc, "Summer Offkai", 1, 0))
	})

	t.Run("past deadline waitlists while still open", func(t *testing.T) {
		svc, st := newTestService(t)
		createTestEvent(t, svc, "Summer Offkai", ptr(10))
		require.NoError(t, st.Update(func(tx *store.Tx) error {
			e, err := tx.GetEvent("Summer Offkai")
			if err != nil {
				return err
			}
			past := testNow.Add(-time.Hour)
			e.Deadline = &past
			return nil
		}))

		assert.Equal(t, AdmissionWaitlisted, attend(t, svc, "Summer Offkai", 1, 0))
	})

	t.Run("full event waitlists", func(t *testing.T) {
		svc, _ := newTestService(t)
		createTestEvent(t, svc, "Summer Offkai", ptr(1))
		require.Equal(t, AdmissionConfirmed, attend(t, svc, "Summer Offkai", 1, 0))
		assert.Equal(t, AdmissionWaitlisted, attend(t, svc, "Summer Offkai", 2, 0))
	})

	t.Run("group larger than remaining seats", func(t *testing.T) {
		svc, _ := newTestService(t)
		createTestEvent(t, svc, "Summer Offkai", ptr(3))
		require.Equal(t, AdmissionConfirmed, attend(t, svc, "Summer Offkai", 1, 1))
		assert.Equal(t, AdmissionWaitlistedGroupTooLarge, attend(t, svc, "Summer Offkai", 2, 1))
		// A single person still fits the last seat.
		assert.Equal(t, AdmissionConfirmed, attend(t, svc, "Summer Offkai", 3, 0))
	})

	t.Run("unlimited open event always confirms", func(t *testing.T) {
		svc, _ := newTestService(t)
		createTestEvent(t, svc, "Summer Offkai", nil)
		for id := int64(1); id <= 10; id++ {
			assert.Equal(t, AdmissionConfirmed, attend(t, svc, "Summer Offkai", id, 2))
		}
	})
}

func TestRegisterAttendanceDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", ptr(10))
	attend(t, svc, "Summer Offkai", 1, 0)

	_, _, err := svc.RegisterAttendance(context.Background(), &AttendanceRequest{
		EventName: "Summer Offkai", UserID: 1, Username: "u",
		BehaviorConfirmed: true, ArrivalConfirmed: true,
	})
	assert.ErrorIs(t, err, store.ErrDuplicateResponse)
}

func TestCapacityReachedAnnouncedOnce(t *testing.T) {
	svc, _ := newTestService(t)
	createTestEvent(t, svc, "Summer Offkai", ptr(2))

	sends := func(plan *chatbridge.Plan) int {
		n := 0
		for _, a := range plan.Actions {
			if a.Kind == chatbridge.ActionSendMessage {
				n++
			}
		}
		return n
	}

	_, plan, err := svc.RegisterAttendance(context.Background(), &AttendanceRequest{
		EventName: "Summer Offkai", UserID: 1, Username: "u",
		BehaviorConfirmed: true, ArrivalConfirmed: true,
	})
	require.NoError(t, err)
	assert.Zero(t, sends(plan), "not full yet")

	// The registration that fills the last seat announces capacity reached.
	_, plan, err = svc.RegisterAttendance(context.Background(), &AttendanceRequest{
		EventName: "Summer Offkai", UserID: 2, Username: "u",
		BehaviorConfirmed: true, ArrivalConfirmed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sends(plan))

	// Registrations landing on the waitlist of a full event do not re-announce.
	_, plan, err = svc.RegisterAttendance(context.Background(), &AttendanceRequest{
		EventName: "Summer Offkai", UserID: 3, Username: "u",
		BehaviorConfirmed: true, ArrivalConfirmed: true,
	})
	require.NoError(t, err)
	assert.Zero(t, sends(plan))
}

func TestRegisterAttendanceUnknownEvent(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.RegisterAttendance(context.Background(), &AttendanceRequest{
		EventName: "nope", UserID: 1, Username: "u",
		BehaviorConfirmed: true, ArrivalConfirmed: true,
	})
	assert.ErrorIs(t, err, store.ErrEventNotFound)
}
