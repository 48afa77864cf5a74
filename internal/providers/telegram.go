package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"emergency-service/internal/config"
	"emergency-service/internal/logging"
	"emergency-service/internal/models"
	"emergency-service/internal/utils"
)

// TelegramChannel sends alert messages to a contact's Telegram chat. A shared
// rate limiter keeps the service under the Bot API message cap.
type TelegramChannel struct {
	botToken string
	limiter  *rate.Limiter
	logger   *logging.Logger
}

func NewTelegramChannel(cfg config.Config, logger *logging.Logger) *TelegramChannel {
	perSecond := cfg.Telegram.RatePerSecond
	if perSecond <= 0 {
		perSecond = 20
	}
	return &TelegramChannel{
		botToken: cfg.Telegram.BotToken,
		limiter:  rate.NewLimiter(rate.Limit(float64(perSecond)), perSecond),
		logger:   logger,
	}
}

func (t *TelegramChannel) Deliver(ctx context.Context, contact models.ContactRef, message string, _ models.Priority) error {
	if t.botToken == "" {
		return fmt.Errorf("missing Telegram bot token")
	}
	if contact.TelegramChatID == 0 {
		return fmt.Errorf("missing telegram chat_id for user_id=%d", contact.UserID)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	return utils.Retry(ctx, t.logger, 3, time.Second, func() error {
		b, err := bot.New(t.botToken)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram bot: %w", err)
		}

		params := &bot.SendMessageParams{
			ChatID: contact.TelegramChatID,
			Text:   message,
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", contact.TelegramChatID, err)
		}
		return nil
	})
}
