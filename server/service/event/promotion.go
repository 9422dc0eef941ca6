package event

import (
	"github.com/sorakado/offkai/plugin/chatbridge/metrics"
	"github.com/sorakado/offkai/store"
)

// promotionTrigger names the reason a promotion pass runs. The trigger
// matters for one legacy rule: unlimited-capacity events promote at most one
// entry per withdrawal.
type promotionTrigger string

const (
	triggerWithdrawal       promotionTrigger = "withdrawal"
	triggerCapacityIncrease promotionTrigger = "capacity_increase"
	triggerReopen           promotionTrigger = "reopen"
	triggerManual           promotionTrigger = "manual"
)

// effectiveTarget computes the head-count ceiling a promotion pass fills up
// to. A closed event is capped at its closed attendance count: an event
// closed at 30/50 does not re-fill to 50 just because a spot opened up.
// The second return is false for unlimited.
func effectiveTarget(e *store.Event) (int, bool) {
	if e.ClosedAttendanceCount != nil {
		target := *e.ClosedAttendanceCount
		if e.MaxCapacity != nil && *e.MaxCapacity < target {
			target = *e.MaxCapacity
		}
		return target, true
	}
	if e.MaxCapacity != nil {
		return *e.MaxCapacity, true
	}
	return 0, false
}

// promote drains the waitlist head-of-line into the confirmed bucket until
// the next head no longer fits. It never skips past a too-large head; FIFO
// fairness beats fill ratio. Promoted entries keep their original timestamp
// and payload. Must run inside a write transaction.
func promote(tx *store.Tx, e *store.Event, trigger promotionTrigger) []*store.Registration {
	target, limited := effectiveTarget(e)

	// Legacy carve-out: an unlimited event only promotes a single entry when
	// a withdrawal triggered the pass.
	singleOnly := !limited && trigger == triggerWithdrawal

	var promoted []*store.Registration
	for {
		if limited && tx.HeadCount(e.Name) >= target {
			break
		}
		waitlist := tx.GetWaitlist(e.Name)
		if len(waitlist) == 0 {
			break
		}
		head := waitlist[0]
		if limited && tx.HeadCount(e.Name)+head.PartySize() > target {
			break
		}
		tx.PromoteHead(e.Name)
		if err := tx.AddConfirmed(e.Name, head); err != nil {
			// Cannot happen: the entry was just removed from the waitlist.
			break
		}
		promoted = append(promoted, head)
		metrics.Promotions.WithLabelValues(string(trigger)).Inc()
		if singleOnly {
			break
		}
	}
	return promoted
}

// cloneRegistrations deep-copies promotion results so they can leave the
// transaction closure. The originals stay owned by the store caches.
func cloneRegistrations(regs []*store.Registration) []*store.Registration {
	if len(regs) == 0 {
		return nil
	}
	out := make([]*store.Registration, 0, len(regs))
	for _, r := range regs {
		out = append(out, r.Clone())
	}
	return out
}
