package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/superst1/chatbot-whatsapp-citas/internal/slots"
)

// WatchSchedule loads schedule.yaml, hands it to onUpdate and then polls the
// file mtime, reloading on change. Invalid edits are logged and skipped so the
// last good schedule stays in effect.
func WatchSchedule(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(slots.Schedule)) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	load := func() (slots.Schedule, error) {
		cfg, err := LoadScheduleConfig(path)
		if err != nil {
			return slots.Schedule{}, err
		}
		return cfg.Schedule()
	}

	sched, err := load()
	if err != nil {
		return err
	}
	onUpdate(sched)

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				sched, err := load()
				if err != nil {
					if logger != nil {
						logger.Warn().Err(err).Str("path", path).Msg("schedule reload failed")
					}
					continue
				}
				onUpdate(sched)
				if logger != nil {
					logger.Info().Str("path", path).Msg("schedule reloaded")
				}
			}
		}
	}()

	return nil
}
