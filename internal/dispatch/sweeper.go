package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/models"
	"github.com/recallguard/recallguard-api/internal/repository"
)

// Enqueuer hands an alert to the async delivery machinery.
type Enqueuer interface {
	Enqueue(ctx context.Context, alert models.Alert) error
}

// Sweeper re-enqueues alerts that are still pending: rows whose original
// enqueue was lost to a crash or a broker hiccup. Workflow IDs are keyed
// by alert, so sweeping an alert that is already in flight is a no-op.
type Sweeper struct {
	alerts   repository.AlertRepository
	enqueuer Enqueuer
	logger   zerolog.Logger
}

func NewSweeper(alerts repository.AlertRepository, enqueuer Enqueuer, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		alerts:   alerts,
		enqueuer: enqueuer,
		logger:   logger.With().Str("component", "pending_sweeper").Logger(),
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	pending, err := s.alerts.ListPending(ctx, 200)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	requeued := 0
	for _, alert := range pending {
		if err := s.enqueuer.Enqueue(ctx, alert); err != nil {
			s.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("re-enqueue failed")
			continue
		}
		requeued++
	}

	s.logger.Info().Int("pending", len(pending)).Int("requeued", requeued).Msg("swept pending alerts")
	return nil
}
