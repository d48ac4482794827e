package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tourwallet/topup/internal/intent"
	"github.com/tourwallet/topup/internal/ledger"
	"github.com/tourwallet/topup/internal/notification"
)

// Entries looks up the credit recorded for an intent.
type Entries interface {
	EntryForIntent(ctx context.Context, intentID string) (ledger.Entry, error)
}

// SweeperConfig controls the CONFIRMED-versus-ledger consistency sweep.
type SweeperConfig struct {
	Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	// SettleDelay skips intents confirmed so recently that their credit may
	// still be in flight.
	SettleDelay time.Duration `envconfig:"SWEEP_SETTLE_DELAY" default:"1m"`
	Lookback    time.Duration `envconfig:"SWEEP_LOOKBACK" default:"72h"`
	BatchSize   int           `envconfig:"SWEEP_BATCH_SIZE" default:"1000"`
}

// SweepReport lists intents found CONFIRMED without a ledger entry.
type SweepReport struct {
	Checked int      `json:"checked"`
	Missing []string `json:"missing"`
}

// Sweeper detects partial credit failures. It only alerts; repair is manual
// because re-crediting a half-applied credit risks paying twice.
type Sweeper struct {
	intents  *intent.Registry
	entries  Entries
	notifier notification.Notifier
	locker   Locker
	cfg      SweeperConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper builds a Sweeper. locker may be nil.
func NewSweeper(intents *intent.Registry, entries Entries, notifier notification.Notifier, locker Locker, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 72 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Sweeper{
		intents:  intents,
		entries:  entries,
		notifier: notifier,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "sweeper", s.cfg.Interval)
		switch {
		case err != nil:
			s.logger.Warn("sweeper lock unavailable, sweeping anyway", "error", err)
		case !ok:
			return
		default:
			defer release()
		}
	}
	if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("credit sweep failed", "error", err)
	}
}

// Sweep checks CONFIRMED intents inside the lookback window and raises one
// partial_credit_failure alert per intent missing its ledger entry.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	now := s.now()
	confirmed, err := s.intents.List(ctx, intent.ListFilter{
		Status:          intent.StatusConfirmed,
		ConfirmedAfter:  now.Add(-s.cfg.Lookback),
		ConfirmedBefore: now.Add(-s.cfg.SettleDelay),
		Limit:           s.cfg.BatchSize,
	})
	if err != nil {
		return SweepReport{}, fmt.Errorf("list confirmed intents: %w", err)
	}

	report := SweepReport{Checked: len(confirmed), Missing: []string{}}
	for _, in := range confirmed {
		_, err := s.entries.EntryForIntent(ctx, in.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ledger.ErrEntryNotFound) {
			return report, fmt.Errorf("ledger lookup for %s: %w", in.ID, err)
		}
		report.Missing = append(report.Missing, in.ID)
		s.logger.Error("confirmed intent has no ledger entry", "intent_id", in.ID, "user_id", in.UserID, "amount", in.Amount)
		if s.notifier == nil {
			continue
		}
		if err := s.notifier.Send(ctx, notification.Message{
			Kind:     notification.KindPartialCreditFailure,
			IntentID: in.ID,
			UserID:   in.UserID,
			Amount:   in.Amount,
			Body:     "intent CONFIRMED without a wallet ledger entry; manual repair required",
		}); err != nil {
			s.logger.Error("send sweep alert", "intent_id", in.ID, "error", err)
		}
	}
	if len(report.Missing) > 0 {
		s.logger.Warn("credit sweep found uncredited intents", "count", len(report.Missing))
	}
	return report, nil
}
