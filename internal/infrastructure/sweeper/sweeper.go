// Package sweeper expires gift cards whose expiry timestamp has passed.
// The index query only nominates candidates; the expire command re-checks
// the card's state inside its single-writer slot, so a card reloaded or
// cancelled between read and sweep is handled correctly.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tillworks/opsledger/internal/domain"
	"github.com/tillworks/opsledger/internal/usecase"
)

// CardSweeper periodically expires overdue gift cards.
type CardSweeper struct {
	index     usecase.CardIndex
	cards     *usecase.GiftCardUseCase
	logger    zerolog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// Config for CardSweeper.
type Config struct {
	Index     usecase.CardIndex
	Cards     *usecase.GiftCardUseCase
	Logger    zerolog.Logger
	Interval  time.Duration
	BatchSize int
}

// NewCardSweeper creates a new CardSweeper.
func NewCardSweeper(cfg Config) *CardSweeper {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}

	return &CardSweeper{
		index:     cfg.Index,
		cards:     cfg.Cards,
		logger:    cfg.Logger.With().Str("component", "card_sweeper").Logger(),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *CardSweeper) Start(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("card sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("card sweeper shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep expires one batch of overdue cards.
func (s *CardSweeper) Sweep(ctx context.Context) error {
	ids, err := s.index.ExpiredCards(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		return err
	}

	for _, id := range ids {
		_, err := s.cards.Expire(ctx, id)
		switch {
		case err == nil:
			s.logger.Info().Str("card_id", id).Msg("card expired")
		case errors.Is(err, domain.ErrCardTerminal), errors.Is(err, domain.ErrCardNotFound):
			// Lost the race to another instance or an explicit cancel.
		default:
			s.logger.Error().Err(err).Str("card_id", id).Msg("failed to expire card")
		}
	}
	return nil
}
