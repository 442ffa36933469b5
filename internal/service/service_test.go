package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econindex/internal/alerting"
	"econindex/internal/anomaly"
	"econindex/internal/fetcher"
	"econindex/internal/model"
	"econindex/internal/pipeline"
	"econindex/internal/rebase"
	"econindex/internal/storage"
)

type memoryStore struct {
	mu        sync.Mutex
	records   []model.NormalizedRecord
	runs      map[string]storage.RunRecord
	anomalies []anomaly.Finding
	upsertErr error
	locked    bool
	lockCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{runs: make(map[string]storage.RunRecord)}
}

func (m *memoryStore) UpsertRecords(ctx context.Context, records []model.NormalizedRecord) (int, error) {
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return len(records), nil
}

func (m *memoryStore) ListRecords(ctx context.Context, filter storage.RecordFilter) ([]model.NormalizedRecord, error) {
	return m.records, nil
}

func (m *memoryStore) CountByIndicator(ctx context.Context) ([]storage.IndicatorCount, error) {
	return nil, nil
}

func (m *memoryStore) StartRun(ctx context.Context, id string, startedAt time.Time) error {
	m.runs[id] = storage.RunRecord{ID: id, StartedAt: startedAt, Status: storage.RunRunning}
	return nil
}

func (m *memoryStore) FinishRun(ctx context.Context, run storage.RunRecord) error {
	m.runs[run.ID] = run
	return nil
}

func (m *memoryStore) InsertAnomalies(ctx context.Context, runID string, findings []anomaly.Finding) error {
	m.anomalies = append(m.anomalies, findings...)
	return nil
}

func (m *memoryStore) ListRecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	return nil, nil
}

func (m *memoryStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	m.lockCalls++
	if m.locked {
		return nil, false, nil
	}
	return func() {}, true, nil
}

type recordingNotifier struct {
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	return nil
}

func wage(country string, year int, value string) model.IndicatorRecord {
	return model.IndicatorRecord{CountryCode: country, Year: year, Indicator: model.IndicatorWage, Value: decimal.RequireFromString(value)}
}

func fx(country string, year int, rate string) model.FXRecord {
	return model.FXRecord{CountryCode: country, Year: year, Rate: decimal.RequireFromString(rate)}
}

func newService(t *testing.T, store *memoryStore, notifier alerting.Notifier) *Service {
	t.Helper()
	orch, err := pipeline.New(pipeline.Options{
		Workers:         2,
		Selector:        rebase.Selector{Policy: rebase.PolicyFixed, Year: 2005},
		Column:          model.ColumnCommon,
		RoundCommon:     4,
		RoundIndex:      2,
		DetectAnomalies: true,
		JumpFactor:      50,
	}, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	sources := []fetcher.RecordSource{fetcher.NewStatic("ilostat", []model.IndicatorRecord{
		wage("ROU", 2004, "8183317"),
		wage("ROU", 2005, "968"),
	})}
	rates := []fetcher.FXSource{fetcher.StaticFX{fx("ROU", 2004, "3.2637"), fx("ROU", 2005, "2.9137")}}

	opts := Options{
		Orchestrator: orch,
		Sources:      sources,
		FXSources:    rates,
		Notifier:     notifier,
		AlertsOn:     true,
		LockKey:      42,
	}
	if store != nil {
		opts.Records = store
		opts.Runs = store
	}
	return New(opts, zerolog.Nop())
}

func TestExecutePersistsAndAlerts(t *testing.T) {
	store := newMemoryStore()
	notifier := &recordingNotifier{}
	svc := newService(t, store, notifier)

	result, err := svc.Execute(context.Background())
	require.NoError(t, err)

	assert.Len(t, store.records, 2)
	run, ok := store.runs[result.RunID]
	require.True(t, ok)
	assert.Equal(t, storage.RunComplete, run.Status)
	assert.Equal(t, 2005, run.BaseYears[model.IndicatorWage])

	// Without reference tables the ROU reform is not corrected, so the jump is flagged.
	require.Len(t, store.anomalies, 1)
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, result.RunID, notifier.notes[0].RunID)
}

func TestExecuteMarksFailedRun(t *testing.T) {
	store := newMemoryStore()
	store.upsertErr = errors.New("disk full")
	notifier := &recordingNotifier{}
	svc := newService(t, store, notifier)

	result, err := svc.Execute(context.Background())
	require.Error(t, err)
	require.NotNil(t, result)
	run := store.runs[result.RunID]
	assert.Equal(t, storage.RunFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Contains(t, *run.Error, "disk full")
	assert.Empty(t, notifier.notes)
}

func TestProcessTickSkipsWhenLocked(t *testing.T) {
	store := newMemoryStore()
	store.locked = true
	svc := newService(t, store, nil)

	require.NoError(t, svc.ProcessTick(context.Background(), time.Now()))
	assert.Equal(t, 1, store.lockCalls)
	assert.Empty(t, store.records)
}

func TestExecuteWithoutStores(t *testing.T) {
	svc := newService(t, nil, nil)
	result, err := svc.Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Error(t, svc.Run(context.Background()), "no scheduler configured")
}
