// Package sweeper expires opportunities whose deadline has passed.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultSchedule runs the sweep once a day at midnight.
const DefaultSchedule = "@daily"

// Expirer transitions past-deadline records. store.Store satisfies it.
type Expirer interface {
	ExpirePastDeadline(ctx context.Context, today time.Time) (int64, error)
}

// Sweeper runs the expiry job on a cron schedule.
type Sweeper struct {
	expirer  Expirer
	schedule string
	cron     *cron.Cron
	now      func() time.Time

	// mu serializes sweeps so a slow run never overlaps the next tick.
	mu sync.Mutex
	wg sync.WaitGroup
}

// New creates a Sweeper. An empty schedule uses DefaultSchedule.
func New(expirer Expirer, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{
		expirer:  expirer,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		now:      time.Now,
	}
}

// Start registers the job, starts the scheduler and runs one sweep
// immediately in the background.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.sweep(ctx) }); err != nil {
		return eris.Wrapf(err, "sweeper: invalid schedule %q", s.schedule)
	}
	s.cron.Start()
	zap.L().Info("sweeper: started", zap.String("schedule", s.schedule))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweep(ctx)
	}()
	return nil
}

// Stop halts the scheduler and waits for any running sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	zap.L().Info("sweeper: stopped")
}

// RunOnce performs one sweep and returns how many records expired.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now().UTC().Truncate(24 * time.Hour)
	n, err := s.expirer.ExpirePastDeadline(ctx, today)
	if err != nil {
		return 0, eris.Wrap(err, "sweeper: expire")
	}
	return n, nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	n, err := s.RunOnce(ctx)
	if err != nil {
		zap.L().Error("sweeper: sweep failed", zap.Error(err))
		return
	}
	zap.L().Info("sweeper: sweep complete",
		zap.Int64("expired", n),
		zap.Duration("elapsed", time.Since(start)),
	)
}
