package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/superst1/chatbot-whatsapp-citas/internal/api"
	"github.com/superst1/chatbot-whatsapp-citas/internal/config"
	"github.com/superst1/chatbot-whatsapp-citas/internal/database"
	"github.com/superst1/chatbot-whatsapp-citas/internal/google"
	"github.com/superst1/chatbot-whatsapp-citas/internal/messaging"
	"github.com/superst1/chatbot-whatsapp-citas/internal/nlu"
	"github.com/superst1/chatbot-whatsapp-citas/internal/repository"
	"github.com/superst1/chatbot-whatsapp-citas/internal/session"
)

// closableRepository adds lifecycle hooks to whichever backend is configured.
type closableRepository struct {
	repository.Repository
	ping  func(ctx context.Context) error
	close func() error
}

func (r *closableRepository) Ping(ctx context.Context) error {
	if r.ping == nil {
		return nil
	}
	return r.ping(ctx)
}

func (r *closableRepository) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

func buildRepository(ctx context.Context, cfg *config.Config) (*closableRepository, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		repo, err := database.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &closableRepository{Repository: repo, ping: repo.Ping, close: repo.Close}, nil
	case "postgres":
		repo, err := database.OpenPostgres(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &closableRepository{Repository: repo, ping: repo.Ping, close: repo.Close}, nil
	case "sheets":
		sc := cfg.Storage.Sheets
		if sc.CredentialsBase64 == "" {
			return nil, errors.New("sheets storage needs GOOGLE_CREDENTIALS_BASE64")
		}
		creds, err := google.DecodeCredentials(sc.CredentialsBase64)
		if err != nil {
			return nil, err
		}
		svc, err := google.NewService(ctx, creds)
		if err != nil {
			return nil, err
		}
		return &closableRepository{Repository: google.NewSheetsRepository(svc, sc.SpreadsheetID, sc.SheetName, sc.SkipHeader)}, nil
	default:
		return &closableRepository{Repository: repository.NewMemoryRepository()}, nil
	}
}

// buildSessionStore also returns the memory store when one is in use so
// expired sessions can be swept periodically.
func buildSessionStore(cfg *config.Config, rdb *redis.Client, logger *zerolog.Logger) (session.Store, *session.MemoryStore, error) {
	ttl := cfg.SessionTTL()
	switch cfg.Session.Backend {
	case "redis":
		if rdb == nil {
			return nil, nil, errors.New("session.backend=redis requires redis.address")
		}
		return session.NewRedisStore(rdb, ttl), nil, nil
	case "failover":
		if rdb == nil {
			return nil, nil, errors.New("session.backend=failover requires redis.address")
		}
		mem := session.NewMemoryStore(ttl)
		return session.NewFailoverStore(session.NewRedisStore(rdb, ttl), mem, logger), mem, nil
	default:
		mem := session.NewMemoryStore(ttl)
		return mem, mem, nil
	}
}

type closableExtractor struct {
	nlu.Extractor
	close func() error
}

func (e closableExtractor) Close() error {
	if e.close == nil {
		return nil
	}
	return e.close()
}

func buildExtractor(ctx context.Context, cfg *config.Config) (closableExtractor, error) {
	switch cfg.NLU.Provider {
	case "gemini":
		g, err := nlu.NewGeminiExtractor(ctx, cfg.NLU.APIKey, cfg.NLU.Model, cfg.NLUTimeout())
		if err != nil {
			return closableExtractor{}, err
		}
		return closableExtractor{Extractor: g, close: g.Close}, nil
	case "openai":
		o, err := nlu.NewOpenAIExtractor(cfg.NLU.APIKey, cfg.NLU.Model, cfg.NLU.BaseURL, cfg.NLUTimeout())
		if err != nil {
			return closableExtractor{}, err
		}
		return closableExtractor{Extractor: o}, nil
	default:
		return closableExtractor{Extractor: nlu.RulesExtractor{}}, nil
	}
}

// buildSenders maps channel names to rate-limited senders. The Telegram
// client doubles as the inbound poller and is returned when enabled.
func buildSenders(cfg *config.Config, logger *zerolog.Logger) (map[string]messaging.Sender, *messaging.Telegram, error) {
	limit := func(s messaging.Sender) messaging.Sender {
		if cfg.RateLimit.PerSecond <= 0 {
			return s
		}
		return messaging.NewRateLimited(s, cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	}

	senders := make(map[string]messaging.Sender)
	switch cfg.WhatsApp.Provider {
	case "twilio":
		tw := cfg.WhatsApp.Twilio
		client, err := messaging.NewTwilioClient(
			messaging.WithAccountSID(tw.AccountSID),
			messaging.WithAuthToken(tw.AuthToken),
			messaging.WithFromWhats(tw.From),
		)
		if err != nil {
			return nil, nil, err
		}
		senders[api.ChannelWhatsApp] = limit(client)
	default:
		client, err := messaging.NewWhatsAppClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.APIVersion, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.Token)
		if err != nil {
			return nil, nil, fmt.Errorf("whatsapp cloud client: %w", err)
		}
		senders[api.ChannelWhatsApp] = limit(client)
	}

	var tg *messaging.Telegram
	if cfg.Telegram.Enabled {
		var err error
		tg, err = messaging.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.Debug, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram: %w", err)
		}
		senders[tg.Name()] = limit(tg)
	}
	return senders, tg, nil
}
