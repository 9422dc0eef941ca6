package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sorakado/offkai/internal/timeutil"
	"github.com/sorakado/offkai/server/service/event"
	"github.com/sorakado/offkai/store"
)

const pollTimeoutSeconds = 30

// Poller is the thin command surface: it long-polls Telegram updates, parses
// organizer and attendee commands and dispatches into the event service. All
// state lives behind the service; the poller only translates.
type Poller struct {
	bridge *Bridge
	svc    *event.Service
	guilds map[int64]struct{}
}

// NewPoller creates a poller. guilds is the allow-list of group chat IDs;
// empty means every chat is accepted.
func NewPoller(bridge *Bridge, svc *event.Service, guilds []int64) *Poller {
	allowed := make(map[int64]struct{}, len(guilds))
	for _, id := range guilds {
		allowed[id] = struct{}{}
	}
	return &Poller{bridge: bridge, svc: svc, guilds: allowed}
}

// Run consumes updates until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := p.bridge.bot.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			p.bridge.bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			p.handle(ctx, update.Message)
		}
	}
}

func (p *Poller) handle(ctx context.Context, msg *tgbotapi.Message) {
	if len(p.guilds) > 0 && !msg.Chat.IsPrivate() {
		if _, ok := p.guilds[msg.Chat.ID]; !ok {
			slog.Warn("telegram: command from unknown chat ignored", "chat_id", msg.Chat.ID)
			return
		}
	}

	var err error
	switch msg.Command() {
	case "offkai_create":
		err = p.handleCreate(ctx, msg)
	case "offkai_close":
		err = p.handleClose(ctx, msg)
	case "offkai_reopen":
		err = p.handleReopen(ctx, msg)
	case "offkai_archive":
		err = p.handleArchive(ctx, msg)
	case "offkai_broadcast":
		err = p.handleBroadcast(ctx, msg)
	case "attend":
		err = p.handleAttend(ctx, msg)
	case "withdraw":
		err = p.handleWithdraw(ctx, msg)
	default:
		return
	}
	if err != nil {
		slog.Warn("telegram: command failed",
			"command", msg.Command(),
			"user_id", msg.From.ID,
			"error", err,
		)
		p.reply(msg.Chat.ID, userFacing(err))
	}
}

// handleCreate parses
//
//	/offkai_create name | venue | address | maps link | start | [deadline] | [capacity] | [drinks,csv]
//
// posts the event message into the invoking chat and pins it.
func (p *Poller) handleCreate(ctx context.Context, msg *tgbotapi.Message) error {
	fields := splitFields(msg.CommandArguments())
	if len(fields) < 5 {
		return errors.New("usage: /offkai_create name | venue | address | maps link | start | [deadline] | [capacity] | [drinks]")
	}

	start, err := event.ParseLocalTime(fields[4])
	if err != nil {
		return err
	}

	channelID := msg.Chat.ID
	req := &event.CreateEventRequest{
		Name:           fields[0],
		Venue:          fields[1],
		Address:        fields[2],
		GoogleMapsLink: fields[3],
		StartTime:      start,
		CreatorID:      msg.From.ID,
		ChannelID:      &channelID,
	}
	if len(fields) > 5 && fields[5] != "" {
		deadline, err := event.ParseLocalTime(fields[5])
		if err != nil {
			return err
		}
		req.Deadline = &deadline
	}
	if len(fields) > 6 && fields[6] != "" {
		capacity, err := strconv.Atoi(fields[6])
		if err != nil || capacity <= 0 {
			return fmt.Errorf("invalid capacity %q", fields[6])
		}
		req.MaxCapacity = &capacity
	}
	if len(fields) > 7 && fields[7] != "" {
		req.Drinks = splitCSV(fields[7])
	}

	e, plan, err := p.svc.CreateEvent(ctx, req)
	if err != nil {
		return err
	}
	if err := p.svc.Notify(ctx, plan); err != nil {
		return err
	}

	messageID, err := p.bridge.SendMessage(ctx, channelID, renderCreated(e))
	if err != nil {
		return err
	}
	pinPlan, err := p.svc.AttachEventMessage(ctx, e.Name, messageID, nil)
	if err != nil {
		return err
	}
	return p.svc.Notify(ctx, pinPlan)
}

func (p *Poller) handleClose(ctx context.Context, msg *tgbotapi.Message) error {
	fields := splitFields(msg.CommandArguments())
	if len(fields) < 1 || fields[0] == "" {
		return errors.New("usage: /offkai_close name | [message]")
	}
	closeMessage := ""
	if len(fields) > 1 {
		closeMessage = fields[1]
	}
	_, plan, err := p.svc.CloseEvent(ctx, fields[0], closeMessage)
	if err != nil {
		return err
	}
	if err := p.svc.Notify(ctx, plan); err != nil {
		return err
	}
	p.reply(msg.Chat.ID, fmt.Sprintf("Registrations for %s are closed.", fields[0]))
	return nil
}

func (p *Poller) handleReopen(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		return errors.New("usage: /offkai_reopen name")
	}
	_, plan, err := p.svc.ReopenEvent(ctx, name)
	if err != nil {
		return err
	}
	if err := p.svc.Notify(ctx, plan); err != nil {
		return err
	}
	p.reply(msg.Chat.ID, fmt.Sprintf("Registrations for %s are open again.", name))
	return nil
}

func (p *Poller) handleArchive(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		return errors.New("usage: /offkai_archive name")
	}
	_, plan, err := p.svc.ArchiveEvent(ctx, name)
	if err != nil {
		return err
	}
	if err := p.svc.Notify(ctx, plan); err != nil {
		return err
	}
	p.reply(msg.Chat.ID, fmt.Sprintf("%s is archived.", name))
	return nil
}

func (p *Poller) handleBroadcast(ctx context.Context, msg *tgbotapi.Message) error {
	fields := splitFields(msg.CommandArguments())
	if len(fields) < 2 {
		return errors.New("usage: /offkai_broadcast name | text")
	}
	plan, err := p.svc.Broadcast(ctx, fields[0], fields[1])
	if err != nil {
		return err
	}
	return p.svc.Notify(ctx, plan)
}

// handleAttend parses
//
//	/attend name | [extra count] | [extra names,csv] | [drinks,csv]
//
// Sending the command is the behavior and arrival acknowledgement; the bot
// description spells the house rules out.
func (p *Poller) handleAttend(ctx context.Context, msg *tgbotapi.Message) error {
	fields := splitFields(msg.CommandArguments())
	if len(fields) < 1 || fields[0] == "" {
		return errors.New("usage: /attend name | [extra count] | [extra names] | [drinks]")
	}

	req := &event.AttendanceRequest{
		EventName:         fields[0],
		UserID:            msg.From.ID,
		Username:          msg.From.UserName,
		BehaviorConfirmed: true,
		ArrivalConfirmed:  true,
	}
	if name := strings.TrimSpace(msg.From.FirstName); name != "" {
		req.DisplayName = &name
	}
	if len(fields) > 1 && fields[1] != "" {
		extras, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("invalid extra count %q", fields[1])
		}
		req.ExtraPeople = extras
	}
	if len(fields) > 2 && fields[2] != "" {
		req.ExtrasNames = splitCSV(fields[2])
	}
	if len(fields) > 3 && fields[3] != "" {
		req.Drinks = splitCSV(fields[3])
	}

	outcome, plan, err := p.svc.RegisterAttendance(ctx, req)
	if err != nil {
		return err
	}
	if err := p.svc.Notify(ctx, plan); err != nil {
		return err
	}

	switch outcome {
	case event.AdmissionConfirmed:
		p.reply(msg.Chat.ID, fmt.Sprintf("✅ You are confirmed for %s.", fields[0]))
	case event.AdmissionWaitlistedGroupTooLarge:
		p.reply(msg.Chat.ID, fmt.Sprintf("⏳ Not enough seats for your whole group; you are on the waitlist for %s.", fields[0]))
	default:
		p.reply(msg.Chat.ID, fmt.Sprintf("⏳ You are on the waitlist for %s.", fields[0]))
	}
	return nil
}

func (p *Poller) handleWithdraw(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		return errors.New("usage: /withdraw name")
	}
	_, plan, err := p.svc.Withdraw(ctx, name, msg.From.ID)
	if errors.Is(err, store.ErrResponseNotFound) {
		_, plan, err = p.svc.WithdrawWaitlist(ctx, name, msg.From.ID)
	}
	if err != nil {
		return err
	}
	if err := p.svc.Notify(ctx, plan); err != nil {
		return err
	}
	p.reply(msg.Chat.ID, fmt.Sprintf("You are no longer registered for %s.", name))
	return nil
}

// reply is best-effort chat feedback.
func (p *Poller) reply(chatID int64, text string) {
	if _, err := p.bridge.SendMessage(context.Background(), chatID, text); err != nil {
		slog.Warn("telegram: reply failed", "chat_id", chatID, "error", err)
	}
}

// userFacing trims an error chain down to something worth showing in chat.
func userFacing(err error) string {
	switch {
	case errors.Is(err, store.ErrEventNotFound):
		return "No event by that name."
	case errors.Is(err, store.ErrDuplicateResponse):
		return "You are already registered for this event."
	case errors.Is(err, store.ErrResponseNotFound), errors.Is(err, store.ErrWaitlistNotFound):
		return "You are not registered for this event."
	case errors.Is(err, store.ErrInvalidCapacity):
		return "Capacity must be a positive number."
	case errors.Is(err, store.ErrInvalidDateTime):
		return "Could not read that date; use e.g. 2026-09-01T19:00."
	default:
		return err.Error()
	}
}

// renderCreated is the initial event message; later refreshes come from the
// service's own renderer through message edits.
func renderCreated(e *store.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s\n📍 %s, %s\n", e.Name, e.Venue, e.Address)
	if e.GoogleMapsLink != "" {
		fmt.Fprintf(&b, "🗺 %s\n", e.GoogleMapsLink)
	}
	fmt.Fprintf(&b, "🕒 %s\n", e.StartTime.In(timeutil.JST).Format("2006-01-02 15:04 JST"))
	if e.Deadline != nil {
		fmt.Fprintf(&b, "⏰ Register before %s\n", e.Deadline.In(timeutil.JST).Format("2006-01-02 15:04 JST"))
	}
	b.WriteString("Reply with /attend " + e.Name + " to register.")
	return b.String()
}

// splitFields splits pipe-separated command arguments; event names may
// contain spaces, so whitespace cannot delimit.
func splitFields(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
