package service

import (
	"context"
	"sync"
	"time"

	"github.com/medflow/medflow-pharmacy/pkg/actor"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
)

// ReportSweeper periodically reports controlled substance log entries that
// missed inline reporting.
type ReportSweeper struct {
	monitor  *ControlledSubstanceMonitor
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewReportSweeper creates a new sweeper
func NewReportSweeper(monitor *ControlledSubstanceMonitor, interval time.Duration, log *logger.Logger) *ReportSweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ReportSweeper{
		monitor:  monitor,
		interval: interval,
		logger:   log.WithComponent("pdmp_sweeper"),
	}
}

// Start runs a sweep immediately and then on every tick until Stop is called
// or ctx is cancelled.
func (s *ReportSweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info().Dur("interval", s.interval).Msg("pdmp report sweeper started")

		s.Sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("pdmp report sweeper stopped")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop stops the sweeper and waits for an in-flight sweep to finish.
func (s *ReportSweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep runs one bulk report cycle as the system actor.
func (s *ReportSweeper) Sweep(ctx context.Context) {
	start := time.Now()
	ctx = actor.WithActor(ctx, actor.SystemActor())

	result, err := s.monitor.BulkReportToPDMP(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("pdmp report sweep failed")
		return
	}
	if result.Total == 0 {
		return
	}

	ev := s.logger.Info()
	if result.Failed > 0 {
		ev = s.logger.Warn()
	}
	ev.Dur("duration", time.Since(start)).
		Int("total", result.Total).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("pdmp report sweep completed")
}
