package checkin

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler runs the check-in sweep on a fixed interval.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	done     chan struct{}
	logger   zerolog.Logger
}

func NewScheduler(svc *Service, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		svc:      svc,
		interval: interval,
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Start launches the sweep loop. Call Stop to terminate it.
func (s *Scheduler) Start() {
	go s.loop()
}

func (s *Scheduler) Stop() {
	close(s.done)
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := s.svc.Sweep(ctx)
			cancel()
			if err != nil {
				s.logger.Error().Err(err).Msg("check-in sweep failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int("sent", n).Msg("check-in reminders sent")
			}
		case <-s.done:
			return
		}
	}
}
