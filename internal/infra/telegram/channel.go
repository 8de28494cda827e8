package telegram

import (
	"context"
	"fmt"

	"sla_engine/internal/domain/user"
	"sla_engine/internal/infra/outbound"

	"github.com/sirupsen/logrus"
)

// ChannelName is the name reminder configs use to select this channel.
const ChannelName = "telegram"

// Channel delivers rendered notifications to a user's linked Telegram chat.
type Channel struct {
	client   Client
	users    user.Repository
	renderer *outbound.Renderer
	logger   *logrus.Entry
}

func NewChannel(client Client, users user.Repository, renderer *outbound.Renderer, logger *logrus.Entry) *Channel {
	return &Channel{
		client:   client,
		users:    users,
		renderer: renderer,
		logger:   logger.WithField("channel", ChannelName),
	}
}

func (ch *Channel) Name() string { return ChannelName }

// Send is a no-op for users without a linked chat.
func (ch *Channel) Send(ctx context.Context, userID int64, templateKey string, params map[string]any) error {
	u, err := ch.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load recipient %d: %w", userID, err)
	}
	if !u.TelegramID.Valid {
		ch.logger.WithField("user_id", userID).Debug("User has no Telegram chat, skipping")
		return nil
	}

	msg, err := ch.renderer.Render(templateKey, params)
	if err != nil {
		return err
	}
	text := msg.Subject + "\n\n" + msg.Body
	if err := ch.client.Send(ctx, u.TelegramID.Int64, text); err != nil {
		return fmt.Errorf("send telegram message to user %d: %w", userID, err)
	}
	ch.logger.WithFields(logrus.Fields{"user_id": userID, "template": templateKey}).Debug("Telegram message sent")
	return nil
}
