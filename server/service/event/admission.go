package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/sorakado/offkai/plugin/chatbridge"
	"github.com/sorakado/offkai/plugin/chatbridge/metrics"
	"github.com/sorakado/offkai/store"
)

// MaxExtraPeople bounds the number of companions per registration.
const MaxExtraPeople = 5

// Response validation errors.
var (
	ErrTooManyExtras        = errors.New("extra people must be between 0 and 5")
	ErrExtrasNamesMismatch  = errors.New("extras names must match the number of extra people")
	ErrDrinksMismatch       = errors.New("drink choices must cover the whole party")
	ErrConfirmationRequired = errors.New("behavior and arrival confirmations are required")
)

// Admission is the outcome of a registration attempt.
type Admission string

const (
	// AdmissionConfirmed: the party fit and is confirmed.
	AdmissionConfirmed Admission = "confirmed"
	// AdmissionWaitlisted: the event is full, closed or past its deadline.
	AdmissionWaitlisted Admission = "waitlisted"
	// AdmissionWaitlistedGroupTooLarge: seats remain, but fewer than the
	// party needs.
	AdmissionWaitlistedGroupTooLarge Admission = "waitlisted_group_too_large"
)

// Waitlisted reports whether the outcome landed in the waitlist bucket.
func (a Admission) Waitlisted() bool {
	return a != AdmissionConfirmed
}

// AttendanceRequest carries one user's registration form.
type AttendanceRequest struct {
	EventName         string
	UserID            int64
	Username          string
	DisplayName       *string
	ExtraPeople       int
	ExtrasNames       []string
	BehaviorConfirmed bool
	ArrivalConfirmed  bool
	Drinks            []string
}

// RegisterAttendance admits a registration into the confirmed bucket or the
// waitlist. Closed and past-deadline events still accept waitlist additions;
// the registration form exposes a join-waitlist control in that state.
func (s *Service) RegisterAttendance(ctx context.Context, req *AttendanceRequest) (Admission, *chatbridge.Plan, error) {
	if req.ExtraPeople < 0 || req.ExtraPeople > MaxExtraPeople {
		return "", nil, fmt.Errorf("%w: got %d", ErrTooManyExtras, req.ExtraPeople)
	}
	if len(req.ExtrasNames) != req.ExtraPeople {
		return "", nil, fmt.Errorf("%w: %d names for %d extras", ErrExtrasNamesMismatch, len(req.ExtrasNames), req.ExtraPeople)
	}
	if !req.BehaviorConfirmed || !req.ArrivalConfirmed {
		return "", nil, fmt.Errorf("%w: user %d", ErrConfirmationRequired, req.UserID)
	}

	var (
		outcome  Admission
		snapshot *store.Event
		full     bool
	)
	err := s.store.Update(func(tx *store.Tx) error {
		e, err := tx.GetEvent(req.EventName)
		if err != nil {
			return err
		}
		party := 1 + req.ExtraPeople
		if e.HasDrinks() {
			if len(req.Drinks) != party {
				return fmt.Errorf("%w: %d drinks for a party of %d", ErrDrinksMismatch, len(req.Drinks), party)
			}
		} else if len(req.Drinks) != 0 {
			return fmt.Errorf("%w: event has no drinks", ErrDrinksMismatch)
		}

		reg := &store.Registration{
			UserID:            req.UserID,
			Username:          req.Username,
			DisplayName:       req.DisplayName,
			ExtraPeople:       req.ExtraPeople,
			ExtrasNames:       req.ExtrasNames,
			BehaviorConfirmed: req.BehaviorConfirmed,
			ArrivalConfirmed:  req.ArrivalConfirmed,
			EventName:         e.Name,
			Timestamp:         tx.Now(),
			Drinks:            req.Drinks,
		}

		now := tx.Now()
		blocked := e.Archived || !e.Open || e.IsPastDeadline(now)
		switch {
		case blocked:
			outcome = AdmissionWaitlisted
		case e.MaxCapacity != nil:
			remaining := *e.MaxCapacity - tx.HeadCount(e.Name)
			if remaining < 0 {
				remaining = 0
			}
			switch {
			case remaining == 0:
				outcome = AdmissionWaitlisted
			case party > remaining:
				outcome = AdmissionWaitlistedGroupTooLarge
			default:
				outcome = AdmissionConfirmed
			}
		default:
			outcome = AdmissionConfirmed
		}

		if outcome.Waitlisted() {
			if err := tx.AddWaitlist(e.Name, reg); err != nil {
				return err
			}
		} else {
			if err := tx.AddConfirmed(e.Name, reg); err != nil {
				return err
			}
			// Fires only on the exact transition that fills the event.
			full = e.MaxCapacity != nil && tx.HeadCount(e.Name) == *e.MaxCapacity
		}
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	metrics.Registrations.WithLabelValues(string(outcome)).Inc()

	plan := chatbridge.NewPlan()
	if !outcome.Waitlisted() {
		s.planRoleAssign(plan, snapshot, req.UserID)
	}
	if full && snapshot.ChannelID != nil {
		plan.Send(*snapshot.ChannelID, capacityReachedMessage(snapshot))
	}
	s.planRefresh(plan, snapshot)
	return outcome, plan, nil
}
