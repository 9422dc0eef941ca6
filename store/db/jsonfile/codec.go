package jsonfile

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/sorakado/offkai/internal/timeutil"
	"github.com/sorakado/offkai/store"
)

// jsonTime applies the on-disk timezone rule: naive timestamps are read as
// JST, aware ones as given; everything is normalized to UTC in memory and
// written back with an explicit UTC offset.
type jsonTime time.Time

func (t jsonTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeutil.Format(time.Time(t)))
}

func (t *jsonTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := timeutil.Parse(s)
	if err != nil {
		return errors.Wrapf(err, "invalid timestamp %q", s)
	}
	*t = jsonTime(parsed)
	return nil
}

type diskEvent struct {
	EventName             string    `json:"event_name"`
	Venue                 string    `json:"venue"`
	Address               string    `json:"address"`
	GoogleMapsLink        string    `json:"google_maps_link"`
	EventDatetime         jsonTime  `json:"event_datetime"`
	EventDeadline         *jsonTime `json:"event_deadline"`
	Message               *string   `json:"message"`
	ChannelID             *int64    `json:"channel_id"`
	ThreadID              *int64    `json:"thread_id"`
	MessageID             *int64    `json:"message_id"`
	Open                  bool      `json:"open"`
	Archived              bool      `json:"archived"`
	Drinks                []string  `json:"drinks"`
	MaxCapacity           *int      `json:"max_capacity"`
	CreatorID             *int64    `json:"creator_id"`
	ClosedAttendanceCount *int      `json:"closed_attendance_count"`
	PingRoleID            *int64    `json:"ping_role_id"`
	RoleID                *int64    `json:"role_id"`
}

type diskBucket struct {
	Attendees []*diskRegistration `json:"attendees"`
	Waitlist  []*diskRegistration `json:"waitlist"`
}

type diskRegistration struct {
	UserID            int64    `json:"user_id"`
	Username          string   `json:"username"`
	DisplayName       *string  `json:"display_name"`
	ExtraPeople       int      `json:"extra_people"`
	ExtrasNames       []string `json:"extras_names"`
	BehaviorConfirmed bool     `json:"behavior_confirmed"`
	ArrivalConfirmed  bool     `json:"arrival_confirmed"`
	EventName         string   `json:"event_name"`
	Timestamp         jsonTime `json:"timestamp"`
	Drinks            []string `json:"drinks"`
}

// decodeEvent reads one events-file entry. Entries written before the
// deadline field existed recorded the thread under "channel_id"; for those,
// the stored channel becomes the thread and both channel and deadline stay
// unset.
func decodeEvent(raw json.RawMessage) (*store.Event, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}
	var de diskEvent
	if err := json.Unmarshal(raw, &de); err != nil {
		return nil, err
	}

	e := &store.Event{
		Name:                  de.EventName,
		Venue:                 de.Venue,
		Address:               de.Address,
		GoogleMapsLink:        de.GoogleMapsLink,
		StartTime:             time.Time(de.EventDatetime),
		Message:               de.Message,
		ChannelID:             de.ChannelID,
		ThreadID:              de.ThreadID,
		MessageID:             de.MessageID,
		Open:                  de.Open,
		Archived:              de.Archived,
		Drinks:                de.Drinks,
		MaxCapacity:           de.MaxCapacity,
		CreatorID:             de.CreatorID,
		ClosedAttendanceCount: de.ClosedAttendanceCount,
		PingRoleID:            de.PingRoleID,
		RoleID:                de.RoleID,
	}
	if de.EventDeadline != nil {
		t := time.Time(*de.EventDeadline)
		e.Deadline = &t
	}

	if _, hasDeadlineKey := keys["event_deadline"]; !hasDeadlineKey {
		e.ThreadID = de.ChannelID
		e.ChannelID = nil
		e.Deadline = nil
	}
	if e.Name == "" {
		return nil, errors.New("event entry has no name")
	}
	return e, nil
}

func encodeEvent(e *store.Event) *diskEvent {
	de := &diskEvent{
		EventName:             e.Name,
		Venue:                 e.Venue,
		Address:               e.Address,
		GoogleMapsLink:        e.GoogleMapsLink,
		EventDatetime:         jsonTime(e.StartTime),
		Message:               e.Message,
		ChannelID:             e.ChannelID,
		ThreadID:              e.ThreadID,
		MessageID:             e.MessageID,
		Open:                  e.Open,
		Archived:              e.Archived,
		Drinks:                emptyIfNil(e.Drinks),
		MaxCapacity:           e.MaxCapacity,
		CreatorID:             e.CreatorID,
		ClosedAttendanceCount: e.ClosedAttendanceCount,
		PingRoleID:            e.PingRoleID,
		RoleID:                e.RoleID,
	}
	if e.Deadline != nil {
		t := jsonTime(*e.Deadline)
		de.EventDeadline = &t
	}
	return de
}

// decodeRegistrations reads a raw JSON list of registrations, skipping
// malformed entries.
func decodeRegistrations(raw json.RawMessage, event string) []*store.Registration {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		slog.Warn("jsonfile: skipping malformed registration list", "event", event, "error", err)
		return nil
	}
	regs := make([]*store.Registration, 0, len(entries))
	for _, entry := range entries {
		var dr diskRegistration
		if err := json.Unmarshal(entry, &dr); err != nil {
			slog.Warn("jsonfile: skipping malformed registration", "event", event, "error", err)
			continue
		}
		regs = append(regs, decodeRegistration(&dr, event))
	}
	return regs
}

func decodeDiskRegistrations(entries []*diskRegistration, event string) []*store.Registration {
	regs := make([]*store.Registration, 0, len(entries))
	for _, dr := range entries {
		if dr == nil {
			continue
		}
		regs = append(regs, decodeRegistration(dr, event))
	}
	return regs
}

func decodeRegistration(dr *diskRegistration, event string) *store.Registration {
	name := dr.EventName
	if name == "" {
		name = event
	}
	return &store.Registration{
		UserID:            dr.UserID,
		Username:          dr.Username,
		DisplayName:       dr.DisplayName,
		ExtraPeople:       dr.ExtraPeople,
		ExtrasNames:       dr.ExtrasNames,
		BehaviorConfirmed: dr.BehaviorConfirmed,
		ArrivalConfirmed:  dr.ArrivalConfirmed,
		EventName:         name,
		Timestamp:         time.Time(dr.Timestamp),
		Drinks:            dr.Drinks,
	}
}

func encodeRegistration(r *store.Registration) *diskRegistration {
	return &diskRegistration{
		UserID:            r.UserID,
		Username:          r.Username,
		DisplayName:       r.DisplayName,
		ExtraPeople:       r.ExtraPeople,
		ExtrasNames:       emptyIfNil(r.ExtrasNames),
		BehaviorConfirmed: r.BehaviorConfirmed,
		ArrivalConfirmed:  r.ArrivalConfirmed,
		EventName:         r.EventName,
		Timestamp:         jsonTime(r.Timestamp),
		Drinks:            emptyIfNil(r.Drinks),
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
