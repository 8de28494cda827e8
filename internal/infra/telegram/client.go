package telegram

import (
	"context"

	"gopkg.in/telebot.v3"
)

// Client delivers plain-text messages to Telegram chats.
type Client interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelebotAdapter is the Client backed by a running *telebot.Bot.
type TelebotAdapter struct {
	bot  *telebot.Bot
	opts *telebot.SendOptions
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{
		bot:  b,
		opts: &telebot.SendOptions{DisableWebPagePreview: true},
	}
}

// Send posts text to the chat. telebot has no context support, so ctx is only checked up front.
func (a *TelebotAdapter) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.bot.Send(telebot.ChatID(chatID), text, a.opts)
	return err
}
