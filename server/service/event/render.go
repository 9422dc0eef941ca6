package event

import (
	"fmt"
	"strings"

	"github.com/sorakado/offkai/internal/timeutil"
	"github.com/sorakado/offkai/store"
)

// renderEventMessage builds the pinned event message body. Timestamps render
// in JST; that is where the events happen.
func renderEventMessage(e *store.Event, head, waiting int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s\n", e.Name)
	fmt.Fprintf(&b, "📍 %s, %s\n", e.Venue, e.Address)
	if e.GoogleMapsLink != "" {
		fmt.Fprintf(&b, "🗺 %s\n", e.GoogleMapsLink)
	}
	fmt.Fprintf(&b, "🕒 %s\n", e.StartTime.In(timeutil.JST).Format("2006-01-02 15:04 JST"))
	if e.Deadline != nil {
		fmt.Fprintf(&b, "⏰ Registration deadline: %s\n", e.Deadline.In(timeutil.JST).Format("2006-01-02 15:04 JST"))
	}
	switch {
	case e.Archived:
		b.WriteString("Status: archived\n")
	case !e.Open:
		b.WriteString("Status: closed\n")
	default:
		b.WriteString("Status: open\n")
	}
	if e.MaxCapacity != nil {
		fmt.Fprintf(&b, "Attending: %d/%d", head, *e.MaxCapacity)
	} else {
		fmt.Fprintf(&b, "Attending: %d", head)
	}
	if waiting > 0 {
		fmt.Fprintf(&b, " (waitlist: %d)", waiting)
	}
	b.WriteString("\n")
	if e.Message != nil && *e.Message != "" {
		b.WriteString("\n")
		b.WriteString(*e.Message)
		b.WriteString("\n")
	}
	return b.String()
}

// promotionMessage is the DM sent to a user pulled off the waitlist.
func promotionMessage(e *store.Event, reg *store.Registration) string {
	if reg.PartySize() > 1 {
		return fmt.Sprintf("🎉 A spot opened up! Your group of %d is now confirmed for %s on %s.",
			reg.PartySize(), e.Name, e.StartTime.In(timeutil.JST).Format("2006-01-02 15:04 JST"))
	}
	return fmt.Sprintf("🎉 A spot opened up! You are now confirmed for %s on %s.",
		e.Name, e.StartTime.In(timeutil.JST).Format("2006-01-02 15:04 JST"))
}

// removalMessage is the DM sent to a user removed by an organizer.
func removalMessage(e *store.Event) string {
	return fmt.Sprintf("Your registration for %s has been removed by an organizer. "+
		"If you think this is a mistake, please contact them.", e.Name)
}

// capacityReachedMessage announces that the last seat was taken.
func capacityReachedMessage(e *store.Event) string {
	return fmt.Sprintf("🈵 %s has reached its capacity of %d. New registrations go to the waitlist.",
		e.Name, *e.MaxCapacity)
}

// reminderMessage announces an upcoming registration deadline. when is a
// human phrase such as "tomorrow".
func reminderMessage(e *store.Event, when string) string {
	var b strings.Builder
	if e.PingRoleID != nil {
		fmt.Fprintf(&b, "<@&%d> ", *e.PingRoleID)
	}
	fmt.Fprintf(&b, "⏰ Registration for %s closes %s (%s).",
		e.Name, when, e.Deadline.In(timeutil.JST).Format("2006-01-02 15:04 JST"))
	return b.String()
}

// deadlineReachedMessage is posted to the event thread when the deadline
// auto-close fires.
func deadlineReachedMessage(e *store.Event) string {
	return fmt.Sprintf("⛔ The registration deadline for %s has passed. Registrations are now closed.", e.Name)
}
