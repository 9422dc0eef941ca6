package chatbridge

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/sorakado/offkai/plugin/chatbridge/metrics"
)

// Notifier drains notification plans against a Client. Outbound calls are
// throttled with a token bucket to stay under platform flood limits.
type Notifier struct {
	client  Client
	limiter *rate.Limiter
}

// NewNotifier creates a notifier. perSecond bounds the outbound call rate;
// zero or negative applies the platform-safe default of 20 calls/s.
func NewNotifier(client Client, perSecond float64) *Notifier {
	if perSecond <= 0 {
		perSecond = 20
	}
	return &Notifier{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Drain executes the plan's actions in order. Non-critical failures are
// logged and skipped; the first critical failure aborts the drain and is
// returned.
func (n *Notifier) Drain(ctx context.Context, plan *Plan) error {
	if plan.Empty() {
		return nil
	}
	for _, action := range plan.Actions {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		err := n.perform(ctx, action)
		if err == nil {
			metrics.NotificationsSent.WithLabelValues(string(action.Kind)).Inc()
			continue
		}
		metrics.NotificationErrors.WithLabelValues(string(action.Kind)).Inc()
		if action.Critical {
			return err
		}
		slog.Warn("chatbridge: notification failed, continuing",
			"action", action.Kind, "id", action.ID, "error", err)
	}
	return nil
}

func (n *Notifier) perform(ctx context.Context, a Action) error {
	switch a.Kind {
	case ActionSendMessage:
		_, err := n.client.SendMessage(ctx, a.ChannelID, a.Text)
		return err
	case ActionDMUser:
		return n.client.DMUser(ctx, a.UserID, a.Text)
	case ActionEditMessage:
		return n.client.EditMessage(ctx, a.ChannelID, a.MessageID, a.Text)
	case ActionPinMessage:
		return n.client.PinMessage(ctx, a.ChannelID, a.MessageID)
	case ActionArchiveThread:
		return n.client.ArchiveThread(ctx, a.ThreadID)
	case ActionAssignRole:
		return n.client.AssignRole(ctx, a.GuildID, a.UserID, a.RoleID)
	case ActionRemoveRole:
		return n.client.RemoveRole(ctx, a.GuildID, a.UserID, a.RoleID)
	case ActionDeleteRole:
		return n.client.DeleteRole(ctx, a.GuildID, a.RoleID)
	default:
		slog.Warn("chatbridge: unknown plan action", "action", a.Kind)
		return nil
	}
}
