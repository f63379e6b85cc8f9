package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor triggers the daily run on a schedule. The engine itself is
// idempotent per day, so a missed or doubled tick is harmless.
type Processor struct {
	engine   *Engine
	interval time.Duration
}

func NewProcessor(engine *Engine, interval time.Duration) *Processor {
	return &Processor{
		engine:   engine,
		interval: interval,
	}
}

// Start begins the scheduling loop. Runs fire on trading weekdays only.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "engine_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting engine processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down engine processor")
			return
		case now := <-ticker.C:
			if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
				logger.Debug().Msg("market closed, skipping run")
				continue
			}
			if err := p.engine.RunDaily(ctx, now); err != nil {
				logger.Error().Err(err).Msg("daily run failed")
			}
		}
	}
}
