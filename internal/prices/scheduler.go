package prices

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs fn on a cron schedule. Runs never overlap and a failed run
// is logged, not fatal.
type Scheduler struct {
	spec string
	fn   func(context.Context) error
	log  logrus.FieldLogger
}

func NewScheduler(spec string, fn func(context.Context) error, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{spec: spec, fn: fn, log: log.WithField("component", "scheduler")}
}

// Run executes fn once immediately, then on every tick until ctx is done.
// It returns ctx.Err() after in-flight runs finish, or an error if the
// schedule cannot be parsed.
func (s *Scheduler) Run(ctx context.Context) error {
	var mu sync.Mutex
	run := func() {
		if !mu.TryLock() {
			s.log.Warn("previous run still in progress; skipping tick")
			return
		}
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if err := s.fn(ctx); err != nil {
			s.log.WithError(err).Error("scheduled run failed")
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(s.spec, run); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}

	run()
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
