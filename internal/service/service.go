package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"econindex/internal/alerting"
	"econindex/internal/fetcher"
	"econindex/internal/pipeline"
	"econindex/internal/scheduler"
	"econindex/internal/storage"
)

// Options wire the dependencies of a Service. Nil stores disable persistence.
type Options struct {
	Scheduler    *scheduler.Scheduler
	Orchestrator *pipeline.Orchestrator
	Sources      []fetcher.RecordSource
	FXSources    []fetcher.FXSource
	Records      storage.RecordStore
	Runs         storage.RunStore
	Notifier     alerting.Notifier
	AlertsOn     bool
	LockKey      int64
}

// Service orchestrates fetching, normalization, persistence, and alerting.
type Service struct {
	scheduler    *scheduler.Scheduler
	orchestrator *pipeline.Orchestrator
	sources      []fetcher.RecordSource
	fxSources    []fetcher.FXSource
	records      storage.RecordStore
	runs         storage.RunStore
	notifier     alerting.Notifier
	alertsOn     bool
	locker       storage.AdvisoryLocker
	lockKey      int64
	logger       zerolog.Logger
}

// New constructs the normalization service.
func New(opts Options, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := opts.Records.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:    opts.Scheduler,
		orchestrator: opts.Orchestrator,
		sources:      opts.Sources,
		fxSources:    opts.FXSources,
		records:      opts.Records,
		runs:         opts.Runs,
		notifier:     opts.Notifier,
		alertsOn:     opts.AlertsOn,
		locker:       locker,
		lockKey:      opts.LockKey,
		logger:       logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled normalization loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick runs the pipeline once unless another instance holds the lock.
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip run because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.Execute(ctx)
	return err
}

// Execute fetches every source, runs the pipeline, persists the output, and
// reports anomalies. The run row is marked failed when any step errors.
func (s *Service) Execute(ctx context.Context) (*pipeline.Result, error) {
	if s.orchestrator == nil {
		return nil, fmt.Errorf("pipeline not configured")
	}

	ds, err := pipeline.Collect(ctx, s.sources, s.fxSources)
	if err != nil {
		return nil, fmt.Errorf("collect sources: %w", err)
	}

	result, err := s.orchestrator.Run(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}

	if s.runs != nil {
		if err := s.runs.StartRun(ctx, result.RunID, result.StartedAt); err != nil {
			s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("failed to record run start")
		}
	}

	persistErr := s.persist(ctx, result)
	s.finish(ctx, result, persistErr)
	if persistErr != nil {
		return result, persistErr
	}

	s.alert(ctx, result)
	return result, nil
}

func (s *Service) persist(ctx context.Context, result *pipeline.Result) error {
	if s.records == nil {
		return nil
	}
	written, err := s.records.UpsertRecords(ctx, result.Records)
	if err != nil {
		return fmt.Errorf("persist records: %w", err)
	}
	s.logger.Info().Str("run_id", result.RunID).Int("written", written).Msg("records persisted")

	if s.runs != nil && len(result.Findings) > 0 {
		if err := s.runs.InsertAnomalies(ctx, result.RunID, result.Findings); err != nil {
			s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("failed to persist anomalies")
		}
	}
	return nil
}

func (s *Service) finish(ctx context.Context, result *pipeline.Result, runErr error) {
	if s.runs == nil {
		return
	}
	finished := result.FinishedAt
	run := storage.RunRecord{
		ID:           result.RunID,
		StartedAt:    result.StartedAt,
		FinishedAt:   &finished,
		Status:       storage.RunComplete,
		Records:      result.Stats.Output,
		Absent:       result.Stats.Absent,
		MissingRates: result.Stats.Conversion.MissingRate,
		BaseYears:    result.BaseYears,
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Status = storage.RunFailed
		run.Error = &msg
	}
	if err := s.runs.FinishRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("failed to record run outcome")
	}
}

func (s *Service) alert(ctx context.Context, result *pipeline.Result) {
	if !s.alertsOn || s.notifier == nil || len(result.Findings) == 0 {
		return
	}
	note := alerting.Notification{
		RunID:    result.RunID,
		At:       result.FinishedAt,
		Findings: result.Findings,
		Absent:   len(result.Absent),
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("failed to dispatch anomaly report")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
