package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"StockPipeline/internal/manager"
	"StockPipeline/internal/model"
)

// Pipeline is the part of the manager the scheduled jobs drive.
type Pipeline interface {
	ProcessPortfolio(ctx context.Context, name string, symbols []string, start, end time.Time, save bool) (*manager.Result, error)
	ProcessAllSymbols(ctx context.Context, symbols []string, start, end time.Time, calculateIntrinsic, save bool) (*manager.Result, error)
	Cleanup(keepCount int) ([]string, error)
	ClearCaches()
}

// Plan is what the daily job runs.
type Plan struct {
	Portfolios         []model.Portfolio
	Universe           []string
	LookbackDays       int
	CalculateIntrinsic bool
	KeepCount          int
}

// Scheduler manages the cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Pipeline Pipeline
	Plan     Plan
	Ctx      context.Context
	Now      func() time.Time

	running sync.Mutex
	log     zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, p Pipeline, plan Plan, log zerolog.Logger) *Scheduler {
	l := log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLogger(cron.PrintfLogger(&l))),
		Pipeline: p,
		Plan:     plan,
		Ctx:      ctx,
		Now:      time.Now,
		log:      l,
	}
}

// RegisterAll registers the daily pipeline and retention tasks.
func (s *Scheduler) RegisterAll(dailyCron, cleanupCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	if cleanupCron != "" {
		if _, err := s.Cron.AddFunc(cleanupCron, s.cleanupTask); err != nil {
			return fmt.Errorf("register cleanup task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// RunDailyNow executes the daily task immediately. It reports an error
// when a run is already in progress or any step failed.
func (s *Scheduler) RunDailyNow() error {
	return s.runDaily()
}

func (s *Scheduler) dailyTask() {
	if err := s.runDaily(); err != nil {
		s.log.Error().Err(err).Msg("Daily task failed")
	}
}

func (s *Scheduler) runDaily() error {
	if !s.running.TryLock() {
		return fmt.Errorf("daily task already running")
	}
	defer s.running.Unlock()

	s.log.Info().Int("portfolios", len(s.Plan.Portfolios)).Int("universe", len(s.Plan.Universe)).
		Msg("Running daily task")

	// a new day means new ranges; metric entries are keyed by symbol only
	s.Pipeline.ClearCaches()

	end := s.Now()
	start := end.AddDate(0, 0, -s.Plan.LookbackDays)

	var failed []string
	for _, p := range s.Plan.Portfolios {
		if err := s.Ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Pipeline.ProcessPortfolio(s.Ctx, p.Name, p.Symbols, start, end, true); err != nil {
			s.log.Error().Err(err).Str("portfolio", p.Name).Msg("Failed to process portfolio")
			failed = append(failed, p.Name)
		}
	}

	if len(s.Plan.Universe) > 0 {
		if _, err := s.Pipeline.ProcessAllSymbols(s.Ctx, s.Plan.Universe, start, end, s.Plan.CalculateIntrinsic, true); err != nil {
			s.log.Error().Err(err).Msg("Failed to process all symbols")
			failed = append(failed, "all_symbols")
		}
	}

	s.cleanupTask()

	if len(failed) > 0 {
		return fmt.Errorf("daily task: failed runs: %v", failed)
	}
	return nil
}

func (s *Scheduler) cleanupTask() {
	removed, err := s.Pipeline.Cleanup(s.Plan.KeepCount)
	if err != nil {
		s.log.Error().Err(err).Int("keep", s.Plan.KeepCount).Msg("Failed to clean up partitions")
		return
	}
	if len(removed) > 0 {
		s.log.Info().Strs("removed", removed).Msg("Old partitions removed")
	}
}
