package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tourwallet/topup/internal/intent"
	"github.com/tourwallet/topup/internal/webhook"
)

// PollerConfig controls the status polling loop.
type PollerConfig struct {
	Interval     time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	Grace        time.Duration `envconfig:"POLL_GRACE" default:"60s"`
	Concurrency  int           `envconfig:"POLL_CONCURRENCY" default:"8"`
	BatchSize    int           `envconfig:"POLL_BATCH_SIZE" default:"200"`
	CheckTimeout time.Duration `envconfig:"POLL_CHECK_TIMEOUT" default:"20s"`
}

// TickReport summarises one poll tick.
type TickReport struct {
	Checked  int
	Settled  int
	Failed   int
	Skipped  bool
	Outcomes map[webhook.Outcome]int
}

// Poller periodically asks providers about PENDING intents whose webhook has
// not arrived.
type Poller struct {
	engine  *Engine
	intents *intent.Registry
	locker  Locker
	cfg     PollerConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewPoller builds a Poller. locker may be nil for single-replica setups.
func NewPoller(engine *Engine, intents *intent.Registry, locker Locker, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 20 * time.Second
	}
	return &Poller{
		engine:  engine,
		intents: intents,
		locker:  locker,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("reconciliation poller started", "interval", p.cfg.Interval, "grace", p.cfg.Grace)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("reconciliation poller stopped")
			return nil
		case <-ticker.C:
			if _, err := p.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("poll tick failed", "error", err)
			}
		}
	}
}

// Tick checks every PENDING intent older than the grace period. Each intent
// is checked independently; one failure does not stop the others.
func (p *Poller) Tick(ctx context.Context) (TickReport, error) {
	report := TickReport{Outcomes: map[webhook.Outcome]int{}}

	if p.locker != nil {
		release, ok, err := p.locker.Acquire(ctx, "poller", p.cfg.Interval)
		if err != nil {
			p.logger.Warn("poller lock unavailable, polling anyway", "error", err)
		} else if !ok {
			report.Skipped = true
			return report, nil
		} else {
			defer release()
		}
	}

	pending, err := p.intents.List(ctx, intent.ListFilter{
		Status:        intent.StatusPending,
		CreatedBefore: p.now().Add(-p.cfg.Grace),
		Limit:         p.cfg.BatchSize,
	})
	if err != nil {
		return report, err
	}

	var (
		settled, failed atomic.Int64
		outcomes        = make(chan webhook.Outcome, len(pending))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, in := range pending {
		in := in
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, p.cfg.CheckTimeout)
			defer cancel()

			res, err := p.engine.Reconcile(cctx, in.ID, webhook.SourcePoll)
			if res.Outcome != "" {
				settled.Add(1)
				outcomes <- res.Outcome
			}
			switch {
			case err == nil, errors.Is(err, ErrNotPending):
			default:
				failed.Add(1)
				p.logger.Warn("poll check failed", "intent_id", in.ID, "provider", in.Provider, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)
	for o := range outcomes {
		report.Outcomes[o]++
	}

	report.Checked = len(pending)
	report.Settled = int(settled.Load())
	report.Failed = int(failed.Load())
	if report.Checked > 0 {
		p.logger.Info("poll tick complete", "checked", report.Checked, "settled", report.Settled, "failed", report.Failed)
	}
	return report, nil
}
