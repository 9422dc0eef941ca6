// Package chatbridge defines the chat-platform services the event engine
// consumes and the notification plans it hands back. Commands compute their
// side effects under the store lock as a Plan; the caller drains the plan
// outside the lock through a Notifier.
package chatbridge

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Client is the chat-platform surface. The engine treats every call as
// best-effort I/O except pinning, whose failure surfaces to the caller.
type Client interface {
	// SendMessage posts a plain message and returns its platform message ID.
	SendMessage(ctx context.Context, channelID int64, text string) (int64, error)

	// PinMessage pins a previously posted message in its channel.
	PinMessage(ctx context.Context, channelID, messageID int64) error

	// EditMessage replaces the text of a posted message.
	EditMessage(ctx context.Context, channelID, messageID int64, text string) error

	// DMUser sends a direct message to a user.
	DMUser(ctx context.Context, userID int64, text string) error

	// ArchiveThread marks an event thread archived and locked.
	ArchiveThread(ctx context.Context, threadID int64) error

	// AssignRole, RemoveRole and DeleteRole manage the per-event role.
	// Platforms without role support return ErrUnsupported.
	AssignRole(ctx context.Context, guildID, userID, roleID int64) error
	RemoveRole(ctx context.Context, guildID, userID, roleID int64) error
	DeleteRole(ctx context.Context, guildID, roleID int64) error

	Close() error
}

// Transport error kinds.
var (
	ErrForbidden   = errors.New("chat platform refused the operation")
	ErrNotFound    = errors.New("chat platform object not found")
	ErrTransport   = errors.New("chat platform transport error")
	ErrUnsupported = errors.New("operation not supported on this platform")
)

// ActionKind enumerates plan actions.
type ActionKind string

const (
	ActionSendMessage   ActionKind = "send_message"
	ActionDMUser        ActionKind = "dm_user"
	ActionEditMessage   ActionKind = "edit_message"
	ActionPinMessage    ActionKind = "pin_message"
	ActionArchiveThread ActionKind = "archive_thread"
	ActionAssignRole    ActionKind = "assign_role"
	ActionRemoveRole    ActionKind = "remove_role"
	ActionDeleteRole    ActionKind = "delete_role"
)

// Action is one deferred side effect. Only the fields relevant to its kind
// are set. Critical actions propagate their failure to the plan drainer's
// caller; everything else is logged and skipped.
type Action struct {
	ID        uuid.UUID
	Kind      ActionKind
	ChannelID int64
	MessageID int64
	ThreadID  int64
	UserID    int64
	GuildID   int64
	RoleID    int64
	Text      string
	Critical  bool
}

// Plan is an ordered list of side effects computed by one command.
type Plan struct {
	Actions []Action
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{}
}

func (p *Plan) add(a Action) {
	a.ID = uuid.New()
	p.Actions = append(p.Actions, a)
}

// Send queues a channel message.
func (p *Plan) Send(channelID int64, text string) {
	p.add(Action{Kind: ActionSendMessage, ChannelID: channelID, Text: text})
}

// DM queues a direct message.
func (p *Plan) DM(userID int64, text string) {
	p.add(Action{Kind: ActionDMUser, UserID: userID, Text: text})
}

// Edit queues a message edit.
func (p *Plan) Edit(channelID, messageID int64, text string) {
	p.add(Action{Kind: ActionEditMessage, ChannelID: channelID, MessageID: messageID, Text: text})
}

// Pin queues a pin operation. Pin failures surface to the drainer's caller.
func (p *Plan) Pin(channelID, messageID int64) {
	p.add(Action{Kind: ActionPinMessage, ChannelID: channelID, MessageID: messageID, Critical: true})
}

// ArchiveThread queues archival of an event thread.
func (p *Plan) ArchiveThread(threadID int64) {
	p.add(Action{Kind: ActionArchiveThread, ThreadID: threadID})
}

// AssignRole queues best-effort assignment of the event role to a user.
func (p *Plan) AssignRole(guildID, userID, roleID int64) {
	p.add(Action{Kind: ActionAssignRole, GuildID: guildID, UserID: userID, RoleID: roleID})
}

// RemoveRole queues best-effort removal of the event role from a user.
func (p *Plan) RemoveRole(guildID, userID, roleID int64) {
	p.add(Action{Kind: ActionRemoveRole, GuildID: guildID, UserID: userID, RoleID: roleID})
}

// DeleteRole queues best-effort deletion of the event role.
func (p *Plan) DeleteRole(guildID, roleID int64) {
	p.add(Action{Kind: ActionDeleteRole, GuildID: guildID, RoleID: roleID})
}

// Empty reports whether the plan has no actions.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Actions) == 0
}
