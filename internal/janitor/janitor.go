package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/park285/cheese-matchbot/internal/obslog"
)

// Pruner deletes terminal records last updated before a cutoff.
type Pruner interface {
	PruneFinished(ctx context.Context, before time.Time) (int, error)
}

// Janitor periodically prunes declined, cancelled and accepted invitations
// and finished matches older than the retention window. Live records and
// player rows are never touched.
type Janitor struct {
	store     Pruner
	retention time.Duration
	interval  time.Duration
	timeout   time.Duration
	now       func() time.Time
	log       *zap.Logger

	sched gocron.Scheduler
}

type Option func(*Janitor)

func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

func WithTimeout(d time.Duration) Option {
	return func(j *Janitor) {
		if d > 0 {
			j.timeout = d
		}
	}
}

func New(store Pruner, retention, interval time.Duration, opts ...Option) (*Janitor, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("janitor: retention must be positive, got %s", retention)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("janitor: interval must be positive, got %s", interval)
	}
	j := &Janitor{
		store:     store,
		retention: retention,
		interval:  interval,
		timeout:   30 * time.Second,
		now:       time.Now,
		log:       obslog.L(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// RunOnce prunes everything older than now - retention.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.retention)
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	n, err := j.store.PruneFinished(ctx, cutoff)
	if err != nil {
		j.log.Error("janitor_prune_error", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, fmt.Errorf("prune finished: %w", err)
	}
	if n > 0 {
		j.log.Info("janitor_prune", zap.Int("deleted", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Start schedules RunOnce every interval until Stop.
func (j *Janitor) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("janitor scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() {
			_, _ = j.RunOnce(context.Background())
		}),
		gocron.WithName("prune-finished"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("janitor job: %w", err)
	}
	sched.Start()
	j.sched = sched
	j.log.Info("janitor_start", zap.Duration("interval", j.interval), zap.Duration("retention", j.retention))
	return nil
}

func (j *Janitor) Stop() error {
	if j.sched == nil {
		return nil
	}
	err := j.sched.Shutdown()
	j.sched = nil
	return err
}
