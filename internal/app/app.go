package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"econindex/internal/alerting"
	"econindex/internal/config"
	"econindex/internal/fetcher"
	"econindex/internal/merge"
	"econindex/internal/model"
	"econindex/internal/pipeline"
	"econindex/internal/reference"
	"econindex/internal/scheduler"
	"econindex/internal/service"
	"econindex/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), out: os.Stdout}
}

// SetOutput redirects command output, stdout by default.
func (a *App) SetOutput(w io.Writer) {
	if w != nil {
		a.out = w
	}
}

func (a *App) loadReference() (*reference.Tables, error) {
	tables, err := reference.LoadFile(a.Config.Pipeline.ReferenceFile)
	if err != nil {
		return nil, fmt.Errorf("load reference tables: %w", err)
	}
	return tables, nil
}

// newSources builds every configured producer. A non-empty csvDir resolves
// relative CSV paths against it.
func (a *App) newSources(csvDir string) ([]fetcher.RecordSource, []fetcher.FXSource, error) {
	var (
		records []fetcher.RecordSource
		rates   []fetcher.FXSource
	)

	wbCfg := a.Config.Sources.WorldBank
	if wbCfg.Enabled {
		wb := fetcher.NewWorldBank(fetcher.WorldBankOptions{
			BaseURL: wbCfg.BaseURL,
			PerPage: wbCfg.PerPage,
			Timeout: wbCfg.RequestTimeout,
		}, a.Logger)
		for _, series := range wbCfg.Series {
			indicator, err := model.ParseIndicatorType(series.Indicator)
			if err != nil {
				return nil, nil, err
			}
			records = append(records, wb.Series(series.Code, indicator, series.Unit))
		}
		if wbCfg.FXIndicator != "" {
			rates = append(rates, wb.FX(wbCfg.FXIndicator))
		}
	}

	for _, src := range a.Config.Sources.CSV {
		indicator, err := model.ParseIndicatorType(src.Indicator)
		if err != nil {
			return nil, nil, err
		}
		path := src.Path
		if csvDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(csvDir, path)
		}
		opts := fetcher.CSVOptions{
			Name:          src.Name,
			Path:          path,
			Indicator:     indicator,
			Unit:          src.Unit,
			CountryColumn: src.CountryColumn,
			NameColumn:    src.NameColumn,
			PeriodColumn:  src.PeriodColumn,
			ValueColumn:   src.ValueColumn,
			CountryCodes:  fetcher.NewCodeMap(src.CountryCodes),
		}
		if src.Delimiter != "" {
			opts.Delimiter = []rune(src.Delimiter)[0]
		}
		csvSource := fetcher.NewCSVFile(opts, a.Logger)
		if indicator == model.IndicatorFXRate {
			rates = append(rates, csvSource)
			continue
		}
		records = append(records, csvSource)
	}

	if len(records) == 0 {
		return nil, nil, errors.New("no record sources configured")
	}
	if len(rates) == 0 {
		a.Logger.Warn().Msg("no fx source configured; common-currency values will be absent")
	}
	return records, rates, nil
}

func (a *App) newPlan() (*merge.Plan, error) {
	pairs := make([]merge.Pair, 0, len(a.Config.Merge.Pairs))
	for _, p := range a.Config.Merge.Pairs {
		indicator, err := model.ParseIndicatorType(p.Indicator)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, merge.Pair{Indicator: indicator, Primary: p.Primary, Fallback: p.Fallback})
	}
	return merge.NewPlan(pairs)
}

func (a *App) newOrchestrator() (*pipeline.Orchestrator, error) {
	tables, err := a.loadReference()
	if err != nil {
		return nil, err
	}
	plan, err := a.newPlan()
	if err != nil {
		return nil, err
	}

	convertList, err := config.IndicatorList(a.Config.Pipeline.ConvertIndicators)
	if err != nil {
		return nil, err
	}
	sparseList, err := config.IndicatorList(a.Config.Pipeline.Sparse.Indicators)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Options{
		Workers:           a.Config.Pipeline.Workers,
		ConvertIndicators: convertList,
		SparseIndicators:  sparseList,
		SparseMinPoints:   a.Config.Pipeline.Sparse.MinPoints,
		Selector:          a.Config.Selector(),
		Column:            a.Config.Column(),
		EmitFX:            a.Config.Pipeline.EmitFX,
		RoundCommon:       a.Config.Pipeline.RoundCommon,
		RoundIndex:        a.Config.Pipeline.RoundIndex,
		DetectAnomalies:   a.Config.Anomaly.Enabled,
		JumpFactor:        a.Config.Anomaly.JumpFactor,
	}, tables, plan, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	if a.Config.Alerting.Enabled {
		return alerting.NewLogNotifier(a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService wires a service; a nil store disables persistence.
func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler, csvDir string) (*service.Service, error) {
	orch, err := a.newOrchestrator()
	if err != nil {
		return nil, err
	}
	sources, rates, err := a.newSources(csvDir)
	if err != nil {
		return nil, err
	}

	opts := service.Options{
		Scheduler:    sched,
		Orchestrator: orch,
		Sources:      sources,
		FXSources:    rates,
		AlertsOn:     a.Config.Alerting.Enabled,
		LockKey:      a.Config.Scheduler.AdvisoryLockKey,
	}
	if notifier := a.newNotifier(); notifier != nil {
		opts.Notifier = notifier
	}
	if store != nil {
		opts.Records = store
		opts.Runs = store
	}
	return service.New(opts, a.Logger), nil
}

// Run executes the long-running scheduled normalization service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc, err := a.newService(store, sched, "")
	if err != nil {
		return err
	}

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting normalization service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("normalization service stopped")
	return nil
}

// NormalizeOptions configure a one-shot run.
type NormalizeOptions struct {
	DryRun bool
	CSVDir string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Country   string
	Indicator model.IndicatorType
	BaseYear  int
	Column    model.ValueColumn
}

// ExportOptions hold parameters for a cross-country comparison export.
type ExportOptions struct {
	Indicator model.IndicatorType
	Countries []string
	Column    model.ValueColumn
	BaseYear  int
	CSVPath   string
	PNGPath   string
}

// FactorOptions configure the factor command.
type FactorOptions struct {
	Country string
	Year    int
}
