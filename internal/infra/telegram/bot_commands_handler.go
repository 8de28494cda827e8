// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sla_engine/internal/domain/notification"
	"sla_engine/internal/domain/user"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	commandTimeout = 10 * time.Second
	unreadPreview  = 5
)

// Inbox is the part of the notification dispatcher the bot commands use.
type Inbox interface {
	CountUnread(ctx context.Context, userID int64) (int, error)
	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*notification.Notification, error)
	MarkAllAsRead(ctx context.Context, userID int64) (int64, error)
}

type commandHandlers struct {
	users  user.Repository
	inbox  Inbox
	logger *logrus.Entry
}

// RegisterBotCommands wires /start, /help, /unread and /readall.
func RegisterBotCommands(b *telebot.Bot, users user.Repository, inbox Inbox, baseLogger *logrus.Entry) {
	h := &commandHandlers{users: users, inbox: inbox, logger: baseLogger.WithField("handler_group", "commands")}

	b.Handle("/start", h.wrap("/start", h.startText))
	b.Handle("/help", h.wrap("/help", h.helpText))
	b.Handle("/unread", h.wrap("/unread", h.unreadText))
	b.Handle("/readall", h.wrap("/readall", h.readAllText))
}

func (h *commandHandlers) wrap(command string, reply func(ctx context.Context, senderID int64, firstName string) string) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		senderID := c.Sender().ID
		h.logger.WithFields(logrus.Fields{"command": command, "sender_id": senderID}).Info("Processing bot command")
		return c.Send(reply(ctx, senderID, c.Sender().FirstName))
	}
}

// lookup returns the active user linked to the chat, or the reply to send instead.
func (h *commandHandlers) lookup(ctx context.Context, senderID int64) (*user.User, string) {
	u, err := h.users.GetByTelegramID(ctx, senderID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, "This chat is not linked to an account. Ask an administrator to add your Telegram ID."
		}
		h.logger.WithError(err).WithField("sender_id", senderID).Error("Error looking up user by Telegram ID")
		return nil, "Something went wrong while checking your account. Please try again later."
	}
	if !u.IsActive {
		return nil, "Your account is inactive. Please contact an administrator."
	}
	return u, ""
}

func (h *commandHandlers) startText(ctx context.Context, senderID int64, firstName string) string {
	u, reply := h.lookup(ctx, senderID)
	if u == nil {
		return fmt.Sprintf("Hello, %s! %s", firstName, reply)
	}
	return fmt.Sprintf("Hello, %s! You will receive SLA reminders and escalations here. Use /help for commands.", u.FirstName)
}

func (h *commandHandlers) helpText(ctx context.Context, senderID int64, _ string) string {
	if u, reply := h.lookup(ctx, senderID); u == nil {
		return reply
	}
	var b strings.Builder
	b.WriteString("Available commands:\n\n")
	b.WriteString("/unread - show your unread notifications\n")
	b.WriteString("/readall - mark all notifications as read\n")
	b.WriteString("/help - show this message")
	return b.String()
}

func (h *commandHandlers) unreadText(ctx context.Context, senderID int64, _ string) string {
	u, reply := h.lookup(ctx, senderID)
	if u == nil {
		return reply
	}
	count, err := h.inbox.CountUnread(ctx, u.ID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", u.ID).Error("Error counting unread notifications")
		return "Could not load your notifications. Please try again later."
	}
	if count == 0 {
		return "You have no unread notifications."
	}
	list, err := h.inbox.ListForUser(ctx, u.ID, true, unreadPreview)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", u.ID).Error("Error listing unread notifications")
		return "Could not load your notifications. Please try again later."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d unread notification(s):\n", count)
	for _, n := range list {
		fmt.Fprintf(&b, "\n[%s] %s", n.Priority, n.Message)
	}
	if count > len(list) {
		fmt.Fprintf(&b, "\n\n...and %d more.", count-len(list))
	}
	return b.String()
}

func (h *commandHandlers) readAllText(ctx context.Context, senderID int64, _ string) string {
	u, reply := h.lookup(ctx, senderID)
	if u == nil {
		return reply
	}
	n, err := h.inbox.MarkAllAsRead(ctx, u.ID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", u.ID).Error("Error marking notifications as read")
		return "Could not update your notifications. Please try again later."
	}
	return fmt.Sprintf("Marked %d notification(s) as read.", n)
}
