package messaging

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram is both a Sender and a long-polling source of inbound messages.
type Telegram struct {
	tg     telegramClient
	logger *zerolog.Logger
}

func NewTelegram(token string, debug bool, logger *zerolog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	api.Debug = debug
	logger.Info().Str("username", api.Self.UserName).Msg("Telegram bot authorized")
	return &Telegram{tg: api, logger: logger}, nil
}

// NewTelegramWithClient allows injecting a mocked Telegram client for tests.
func NewTelegramWithClient(tg telegramClient, logger *zerolog.Logger) *Telegram {
	return &Telegram{tg: tg, logger: logger}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(_ context.Context, to, text string) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", to, err)
	}
	if _, err := t.tg.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return nil
}

// Poll reads updates until ctx is done and hands text messages to handle.
func (t *Telegram) Poll(ctx context.Context, handle func(Inbound)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.tg.GetUpdatesChan(u)
	defer t.tg.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if in, ok := toInbound(&update); ok {
				handle(in)
			}
		}
	}
}

func toInbound(update *tgbotapi.Update) (Inbound, bool) {
	msg := update.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return Inbound{}, false
	}
	name := DefaultDisplayName
	if msg.From != nil {
		if n := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName); n != "" {
			name = n
		}
	}
	return Inbound{
		Channel:     "telegram",
		UserID:      strconv.FormatInt(msg.Chat.ID, 10),
		Text:        msg.Text,
		DisplayName: name,
		MessageID:   strconv.Itoa(update.UpdateID),
	}, true
}
