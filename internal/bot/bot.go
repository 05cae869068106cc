package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/bot/handlers"
)

// Bot consumes Telegram updates and dispatches them to the handlers.
type Bot struct {
	api      *tgbotapi.BotAPI
	handlers *handlers.Handlers
	logger   *zap.Logger
}

func New(api *tgbotapi.BotAPI, h *handlers.Handlers, logger *zap.Logger) *Bot {
	return &Bot{
		api:      api,
		handlers: h,
		logger:   logger,
	}
}

func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("authorized", zap.String("account", b.api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handlers.HandleCallbackQuery(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil {
		return
	}

	if update.Message.IsCommand() {
		b.handlers.HandleCommand(ctx, update.Message)
		return
	}

	b.handlers.HandleMessage(ctx, update.Message)
}
