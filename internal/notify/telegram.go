// Package notify delivers operator reports to Telegram chats.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender is the subset of the bot API used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends messages and documents to a fixed set of chats.
type TelegramNotifier struct {
	sender  Sender
	chatIDs []int64
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// NewTelegram creates a bot client for token.
func NewTelegram(token string, chatIDs []int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	logger.Info().Str("account", bot.Self.UserName).Int("chats", len(chatIDs)).Msg("Telegram notifier authorized")
	return NewTelegramNotifier(bot, chatIDs, logger), nil
}

// NewTelegramNotifier wraps an existing sender.
func NewTelegramNotifier(sender Sender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	l := logger.With().Str("component", "notify").Logger()
	return &TelegramNotifier{
		sender:  sender,
		chatIDs: chatIDs,
		// Telegram allows about 30 messages per second across chats.
		limiter: rate.NewLimiter(rate.Limit(20), 30),
		logger:  &l,
	}
}

// SendMessage sends text to every chat.
func (n *TelegramNotifier) SendMessage(ctx context.Context, text string) error {
	return n.broadcast(ctx, func(chatID int64) tgbotapi.Chattable {
		return tgbotapi.NewMessage(chatID, text)
	})
}

// SendDocument uploads data as filename to every chat.
func (n *TelegramNotifier) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	payload, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	return n.broadcast(ctx, func(chatID int64) tgbotapi.Chattable {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: payload})
		doc.Caption = caption
		return doc
	})
}

func (n *TelegramNotifier) broadcast(ctx context.Context, build func(chatID int64) tgbotapi.Chattable) error {
	if len(n.chatIDs) == 0 {
		return errors.New("no telegram chats configured")
	}

	var errs []error
	for _, id := range n.chatIDs {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := n.sender.Send(build(id)); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", id).Msg("Telegram send failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
