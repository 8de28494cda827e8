package mail

import (
	"context"
	"fmt"
	"math"
	"time"

	"sla_engine/internal/domain/user"
	"sla_engine/internal/infra/outbound"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// ChannelName is the name reminder configs use to select this channel.
const ChannelName = "email"

const (
	defaultRetryCount     = 3
	defaultRetryBackoffMs = 100
	maxRetryBackoffMs     = 32000
)

// Dialer sends a composed message. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config describes the SMTP relay.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	SenderAddress  string
	SenderName     string
	RetryCount     int
	RetryBackoffMs int
}

// Channel emails rendered notifications to a user's address.
type Channel struct {
	dialer         Dialer
	users          user.Repository
	renderer       *outbound.Renderer
	senderAddress  string
	senderName     string
	retryCount     int
	retryBackoffMs int
	logger         *logrus.Entry
	sleep          func(time.Duration)
}

func NewChannel(cfg Config, users user.Repository, renderer *outbound.Renderer, logger *logrus.Entry) *Channel {
	return newChannel(gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password), cfg, users, renderer, logger)
}

func newChannel(d Dialer, cfg Config, users user.Repository, renderer *outbound.Renderer, logger *logrus.Entry) *Channel {
	senderName := cfg.SenderName
	if senderName == "" {
		senderName = "SLA Engine"
	}
	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = defaultRetryCount
	}
	retryBackoffMs := cfg.RetryBackoffMs
	if retryBackoffMs <= 0 {
		retryBackoffMs = defaultRetryBackoffMs
	}
	return &Channel{
		dialer:         d,
		users:          users,
		renderer:       renderer,
		senderAddress:  cfg.SenderAddress,
		senderName:     senderName,
		retryCount:     retryCount,
		retryBackoffMs: retryBackoffMs,
		logger:         logger.WithField("channel", ChannelName),
		sleep:          time.Sleep,
	}
}

func (ch *Channel) Name() string { return ChannelName }

// Send is a no-op for users without an email address.
func (ch *Channel) Send(ctx context.Context, userID int64, templateKey string, params map[string]any) error {
	u, err := ch.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load recipient %d: %w", userID, err)
	}
	if !u.Email.Valid || u.Email.String == "" {
		ch.logger.WithField("user_id", userID).Debug("User has no email address, skipping")
		return nil
	}

	rendered, err := ch.renderer.Render(templateKey, params)
	if err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", ch.senderAddress, ch.senderName)
	msg.SetAddressHeader("To", u.Email.String, u.FullName())
	msg.SetHeader("Subject", rendered.Subject)
	msg.SetBody("text/plain", rendered.Body)

	return ch.sendWithRetry(ctx, msg, userID)
}

func (ch *Channel) sendWithRetry(ctx context.Context, msg *gomail.Message, userID int64) error {
	logger := ch.logger.WithField("user_id", userID)
	var lastErr error
	backoffMs := ch.retryBackoffMs

	for attempt := 0; attempt <= ch.retryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := ch.dialer.DialAndSend(msg)
		if err == nil {
			logger.WithField("attempt", attempt+1).Debug("Mail sent")
			return nil
		}

		lastErr = err
		if attempt < ch.retryCount {
			logger.WithError(err).Warnf("Send attempt %d failed, retrying in %dms", attempt+1, backoffMs)
			ch.sleep(time.Duration(backoffMs) * time.Millisecond)
			backoffMs = int(math.Min(float64(backoffMs)*2, maxRetryBackoffMs))
		}
	}
	logger.WithError(lastErr).Errorf("Failed to send mail after %d attempts", ch.retryCount+1)
	return lastErr
}
