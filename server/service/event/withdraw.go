package event

import (
	"context"
	"errors"

	"github.com/sorakado/offkai/plugin/chatbridge"
	"github.com/sorakado/offkai/plugin/chatbridge/metrics"
	"github.com/sorakado/offkai/store"
)

// Withdraw removes a user's confirmed registration and runs a promotion
// pass over the freed seats.
func (s *Service) Withdraw(ctx context.Context, name string, userID int64) (*store.Registration, *chatbridge.Plan, error) {
	var (
		removed  *store.Registration
		promoted []*store.Registration
		snapshot *store.Event
	)
	err := s.store.Update(func(tx *store.Tx) error {
		e, err := tx.GetEvent(name)
		if err != nil {
			return err
		}
		r, err := tx.RemoveConfirmed(e.Name, userID)
		if err != nil {
			return err
		}
		removed = r.Clone()
		promoted = cloneRegistrations(promote(tx, e, triggerWithdrawal))
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	plan := chatbridge.NewPlan()
	s.planRoleRemove(plan, snapshot, userID)
	s.planPromotions(plan, snapshot, promoted)
	s.planRefresh(plan, snapshot)
	return removed, plan, nil
}

// WithdrawWaitlist removes a user's waitlist entry. No promotion runs; no
// capacity was freed.
func (s *Service) WithdrawWaitlist(ctx context.Context, name string, userID int64) (*store.Registration, *chatbridge.Plan, error) {
	var (
		removed  *store.Registration
		snapshot *store.Event
	)
	err := s.store.Update(func(tx *store.Tx) error {
		e, err := tx.GetEvent(name)
		if err != nil {
			return err
		}
		r, err := tx.RemoveWaitlist(e.Name, userID)
		if err != nil {
			return err
		}
		removed = r.Clone()
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	plan := chatbridge.NewPlan()
	s.planRefresh(plan, snapshot)
	return removed, plan, nil
}

// DeleteRegistration is the organizer-initiated removal. It checks the
// confirmed bucket first, then the waitlist; a confirmed removal frees
// capacity and therefore promotes.
func (s *Service) DeleteRegistration(ctx context.Context, name string, userID int64) (*store.Registration, *chatbridge.Plan, error) {
	var (
		removed      *store.Registration
		promoted     []*store.Registration
		snapshot     *store.Event
		wasConfirmed bool
	)
	err := s.store.Update(func(tx *store.Tx) error {
		e, err := tx.GetEvent(name)
		if err != nil {
			return err
		}
		r, err := tx.RemoveConfirmed(e.Name, userID)
		switch {
		case err == nil:
			wasConfirmed = true
			promoted = cloneRegistrations(promote(tx, e, triggerWithdrawal))
		case errors.Is(err, store.ErrResponseNotFound):
			r, err = tx.RemoveWaitlist(e.Name, userID)
			if err != nil {
				return err
			}
		default:
			return err
		}
		removed = r.Clone()
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	plan := chatbridge.NewPlan()
	plan.DM(removed.UserID, removalMessage(snapshot))
	if wasConfirmed {
		s.planRoleRemove(plan, snapshot, removed.UserID)
		s.planPromotions(plan, snapshot, promoted)
	}
	s.planRefresh(plan, snapshot)
	return removed, plan, nil
}

// PromoteUser is organizer-initiated promotion of a named waitlisted user.
// It bypasses both the capacity limit and the closed attendance cap.
func (s *Service) PromoteUser(ctx context.Context, name string, userID int64) (*store.Registration, *chatbridge.Plan, error) {
	var (
		reg      *store.Registration
		snapshot *store.Event
	)
	err := s.store.Update(func(tx *store.Tx) error {
		e, err := tx.GetEvent(name)
		if err != nil {
			return err
		}
		r, err := tx.PromoteSpecific(e.Name, userID)
		if err != nil {
			return err
		}
		if err := tx.AddConfirmed(e.Name, r); err != nil {
			return err
		}
		reg = r.Clone()
		snapshot = e.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.Promotions.WithLabelValues(string(triggerManual)).Inc()

	plan := chatbridge.NewPlan()
	plan.DM(reg.UserID, promotionMessage(snapshot, reg))
	s.planRoleAssign(plan, snapshot, reg.UserID)
	s.planRefresh(plan, snapshot)
	return reg, plan, nil
}
