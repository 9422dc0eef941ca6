// Package telegram implements the chat bridge over the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sorakado/offkai/plugin/chatbridge"
)

// Config holds the bridge configuration.
type Config struct {
	BotToken string
	Debug    bool
}

// Bridge implements chatbridge.Client on top of the Telegram Bot API.
// Telegram has no guild roles; the role operations report ErrUnsupported and
// callers treat them as best-effort.
type Bridge struct {
	bot *tgbotapi.BotAPI
}

// New creates a bridge and verifies the token against getMe.
func New(cfg *Config) (*Bridge, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	slog.Info("telegram: authorized", "account", bot.Self.UserName)
	return &Bridge{bot: bot}, nil
}

// SendMessage posts a plain message and returns its message ID.
func (b *Bridge) SendMessage(ctx context.Context, channelID int64, text string) (int64, error) {
	msg := tgbotapi.NewMessage(channelID, text)
	sent, err := b.bot.Send(msg)
	if err != nil {
		return 0, wrap(err)
	}
	return int64(sent.MessageID), nil
}

// PinMessage pins a previously posted message.
func (b *Bridge) PinMessage(ctx context.Context, channelID, messageID int64) error {
	pin := tgbotapi.PinChatMessageConfig{
		ChatID:              channelID,
		MessageID:           int(messageID),
		DisableNotification: true,
	}
	if _, err := b.bot.Request(pin); err != nil {
		return wrap(err)
	}
	return nil
}

// EditMessage replaces the text of a posted message.
func (b *Bridge) EditMessage(ctx context.Context, channelID, messageID int64, text string) error {
	edit := tgbotapi.NewEditMessageText(channelID, int(messageID), text)
	if _, err := b.bot.Send(edit); err != nil {
		return wrap(err)
	}
	return nil
}

// DMUser sends a direct message. On Telegram the user ID doubles as the
// private chat ID, but only after the user has started the bot; until then
// Telegram refuses with a forbidden error.
func (b *Bridge) DMUser(ctx context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := b.bot.Send(msg); err != nil {
		return wrap(err)
	}
	return nil
}

// ArchiveThread is not supported: Telegram chats have no archivable event
// threads.
func (b *Bridge) ArchiveThread(ctx context.Context, threadID int64) error {
	return chatbridge.ErrUnsupported
}

// AssignRole is not supported on Telegram.
func (b *Bridge) AssignRole(ctx context.Context, guildID, userID, roleID int64) error {
	return chatbridge.ErrUnsupported
}

// RemoveRole is not supported on Telegram.
func (b *Bridge) RemoveRole(ctx context.Context, guildID, userID, roleID int64) error {
	return chatbridge.ErrUnsupported
}

// DeleteRole is not supported on Telegram.
func (b *Bridge) DeleteRole(ctx context.Context, guildID, roleID int64) error {
	return chatbridge.ErrUnsupported
}

// Close stops the update stream.
func (b *Bridge) Close() error {
	b.bot.StopReceivingUpdates()
	return nil
}

// wrap maps Telegram API failures onto the bridge error kinds.
func wrap(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 403:
			return fmt.Errorf("%w: %s", chatbridge.ErrForbidden, apiErr.Message)
		case 400, 404:
			return fmt.Errorf("%w: %s", chatbridge.ErrNotFound, apiErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", chatbridge.ErrTransport, err)
}

var _ chatbridge.Client = (*Bridge)(nil)
