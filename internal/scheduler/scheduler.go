package scheduler

import (
	"context"

	"github.com/avolkov/macrocoach/internal/logger"
	"github.com/avolkov/macrocoach/internal/services"
	"github.com/robfig/cron/v3"
)

// Scheduler runs the daily review sweep on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
}

func New(sweep *services.SweepService, spec string) (*Scheduler, error) {
	log := logger.WithFields("job", "review_sweep")
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		summary, err := sweep.Run(context.Background())
		if err != nil {
			log.Error("scheduled review sweep failed", "error", err)
			return
		}
		if summary == nil {
			// Another instance holds today's lock.
			return
		}
		log.Info("scheduled review sweep completed",
			"run_id", summary.RunID,
			"generated", summary.Generated,
			"skipped", summary.Skipped,
			"errored", summary.Errored,
		)
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}
