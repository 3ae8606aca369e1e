package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bazaarverse/numrent/internal/config"
	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/pkg/logger"
)

const maxSweepBackoff = 10

// Sweeper auto-cancels WAITING numbers that outlived the sweep window and
// refunds their cost. Each record is handled in isolation, so one bad record
// never stalls the rest of a run.
type Sweeper struct {
	numbers  NumberStore
	users    AccountStore
	provider ProviderAPI
	events   *EventPublisher
	metrics  *MetricsCollector
	log      logger.Logger
	cfg      config.NumbersConfig
}

func NewSweeper(
	numbers NumberStore,
	users AccountStore,
	provider ProviderAPI,
	events *EventPublisher,
	metrics *MetricsCollector,
	cfg config.NumbersConfig,
	log logger.Logger,
) *Sweeper {
	return &Sweeper{
		numbers:  numbers,
		users:    users,
		provider: provider,
		events:   events,
		metrics:  metrics,
		cfg:      cfg,
		log:      log,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// Consecutive scan failures widen the interval to keep a broken database from
// being hammered.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("sweeper started",
		logger.Field{Key: "interval", Value: s.cfg.SweepInterval.String()},
		logger.Field{Key: "sweep_after", Value: s.cfg.SweepAfter.String()},
	)

	failures := 0
	timer := time.NewTimer(s.cfg.SweepInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-timer.C:
		}

		if _, err := s.Sweep(ctx); err != nil {
			failures++
			s.log.Error("sweep run failed",
				logger.Field{Key: "error", Value: err.Error()},
				logger.Field{Key: "consecutive_failures", Value: failures},
			)
		} else {
			failures = 0
		}

		backoff := failures
		if backoff > maxSweepBackoff {
			backoff = maxSweepBackoff
		}
		timer.Reset(s.cfg.SweepInterval * time.Duration(backoff+1))
	}
}

// Sweep runs a single pass: every WAITING record older than the sweep window
// is moved to AUTO_CANCELLED and refunded. The provider cancel is advisory
// and its failure never blocks the refund.
func (s *Sweeper) Sweep(ctx context.Context) (*models.SweepResult, error) {
	result := &models.SweepResult{RunID: uuid.New().String()}

	cutoff := time.Now().Add(-s.cfg.SweepAfter)
	records, err := s.numbers.FindStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	result.Scanned = len(records)
	for _, record := range records {
		s.sweepOne(ctx, record, result)
	}

	if result.Scanned > 0 {
		s.log.Info("sweep run completed",
			logger.Field{Key: "run_id", Value: result.RunID},
			logger.Field{Key: "scanned", Value: result.Scanned},
			logger.Field{Key: "cancelled", Value: result.Cancelled},
			logger.Field{Key: "failed", Value: result.Failed},
			logger.Field{Key: "skipped", Value: result.Skipped},
			logger.Field{Key: "provider_failures", Value: result.ProviderFailures},
		)
	}

	return result, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, record *models.NumberRecord, result *models.SweepResult) {
	// The compare-and-set is the refund guard: losing it means a poll or an
	// explicit cancel terminated the record first.
	won, err := s.numbers.Transition(ctx, record.ActivationID, models.StatusWaiting, models.StatusAutoCancelled, true)
	if err != nil {
		result.Failed++
		s.metrics.IncrementSweepOutcome("error")
		s.log.Error("sweep transition failed",
			logger.Field{Key: "activation_id", Value: record.ActivationID},
			logger.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	if !won {
		result.Skipped++
		s.metrics.IncrementSweepOutcome("skipped")
		return
	}

	if _, err := s.provider.CancelActivation(ctx, record.ActivationID); err != nil {
		result.ProviderFailures++
		s.log.Warn("provider cancel failed during sweep",
			logger.Field{Key: "activation_id", Value: record.ActivationID},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}

	if err := s.users.Refund(ctx, record.UserID.Hex(), record.Cost); err != nil {
		result.Failed++
		s.metrics.IncrementSweepOutcome("refund_failed")
		s.log.Error("sweep refund failed",
			logger.Field{Key: "activation_id", Value: record.ActivationID},
			logger.Field{Key: "user_id", Value: record.UserID.Hex()},
			logger.Field{Key: "amount", Value: record.Cost},
		)
		return
	}

	result.Cancelled++
	s.metrics.IncrementSweepOutcome("cancelled")
	s.metrics.IncrementRefund("sweep")
	s.events.NumberSwept(record, record.Cost)
}
