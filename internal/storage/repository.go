package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"econindex/internal/anomaly"
	"econindex/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

//go:embed schema.sql
var schemaSQL string

const batchSize = 500

const (
	upsertRecordSQL = `INSERT INTO indicator_records (
        country_code,
        country_name,
        year,
        indicator_type,
        value,
        value_common_currency,
        value_rebased,
        base_year,
        unit,
        source,
        run_id,
        ingested_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (country_code, year, indicator_type) DO UPDATE
    SET
        country_name          = EXCLUDED.country_name,
        value                 = EXCLUDED.value,
        value_common_currency = EXCLUDED.value_common_currency,
        value_rebased         = EXCLUDED.value_rebased,
        base_year             = EXCLUDED.base_year,
        unit                  = EXCLUDED.unit,
        source                = EXCLUDED.source,
        run_id                = EXCLUDED.run_id,
        ingested_at           = EXCLUDED.ingested_at;`

	listRecordsSQL = `SELECT
        country_code,
        country_name,
        year,
        indicator_type,
        value::text,
        value_common_currency::text,
        value_rebased::text,
        base_year,
        unit,
        source,
        run_id::text,
        ingested_at
    FROM indicator_records
    WHERE ($1 = '' OR indicator_type = $1)
      AND (cardinality($2::text[]) = 0 OR country_code = ANY($2::text[]))
      AND ($3::int = 0 OR year >= $3::int)
      AND ($4::int = 0 OR year <= $4::int)
    ORDER BY country_code, indicator_type, year;`

	countByIndicatorSQL = `SELECT
        indicator_type,
        COUNT(*),
        COUNT(DISTINCT country_code),
        MIN(year),
        MAX(year)
    FROM indicator_records
    GROUP BY indicator_type
    ORDER BY indicator_type;`

	startRunSQL = `INSERT INTO pipeline_runs (id, started_at, status)
    VALUES ($1, $2, $3)
    ON CONFLICT (id) DO NOTHING;`

	finishRunSQL = `UPDATE pipeline_runs
    SET finished_at   = $2,
        status        = $3,
        records       = $4,
        absent        = $5,
        missing_rates = $6,
        base_years    = $7,
        error         = $8
    WHERE id = $1;`

	listRecentRunsSQL = `SELECT
        id::text,
        started_at,
        finished_at,
        status,
        records,
        absent,
        missing_rates,
        base_years,
        error
    FROM pipeline_runs
    ORDER BY started_at DESC
    LIMIT $1;`

	insertAnomalySQL = `INSERT INTO anomalies (
        run_id,
        country_code,
        indicator_type,
        value_column,
        from_year,
        to_year,
        from_value,
        to_value,
        ratio
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    );`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RecordStore persists normalized rows.
type RecordStore interface {
	UpsertRecords(ctx context.Context, records []model.NormalizedRecord) (int, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.NormalizedRecord, error)
	CountByIndicator(ctx context.Context) ([]IndicatorCount, error)
}

// RunStore audits pipeline runs and their anomaly findings.
type RunStore interface {
	StartRun(ctx context.Context, id string, startedAt time.Time) error
	FinishRun(ctx context.Context, run RunRecord) error
	InsertAnomalies(ctx context.Context, runID string, findings []anomaly.Finding) error
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to indicator records, runs, and anomalies.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertRecords writes records in batches inside one transaction; existing
// (country, year, indicator) rows are replaced.
func (s *Store) UpsertRecords(ctx context.Context, records []model.NormalizedRecord) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	written := 0
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))

		batch := &pgx.Batch{}
		for _, rec := range records[start:end] {
			batch.Queue(upsertRecordSQL, recordArgs(rec)...)
		}

		results := tx.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return written, fmt.Errorf("upsert %s: %w", records[i].Key(), err)
			}
			written++
		}
		if err := results.Close(); err != nil {
			return written, fmt.Errorf("close upsert batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return written, nil
}

func recordArgs(rec model.NormalizedRecord) []any {
	var baseYear any
	if rec.ValueRebased.Valid && rec.BaseYear != 0 {
		baseYear = rec.BaseYear
	}
	return []any{
		rec.CountryCode,
		rec.CountryName,
		rec.Year,
		string(rec.Indicator),
		rec.Value.String(),
		nullableDecimal(rec.ValueCommonCurrency),
		nullableDecimal(rec.ValueRebased),
		baseYear,
		rec.Unit,
		rec.Source,
		rec.RunID,
		rec.IngestedAt,
	}
}

func nullableDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNullableDecimal(v sql.NullString) (decimal.NullDecimal, error) {
	if !v.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// ListRecords returns stored rows ordered by country, indicator, and year.
func (s *Store) ListRecords(ctx context.Context, filter RecordFilter) ([]model.NormalizedRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	countries := filter.Countries
	if countries == nil {
		countries = []string{}
	}
	rows, queryErr := pool.Query(ctx, listRecordsSQL, string(filter.Indicator), countries, filter.FromYear, filter.ToYear)
	if queryErr != nil {
		return nil, fmt.Errorf("list records: %w", queryErr)
	}
	defer rows.Close()

	records := make([]model.NormalizedRecord, 0)
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanRecord(rows pgx.Rows) (model.NormalizedRecord, error) {
	var (
		country    string
		name       string
		year       int
		indicator  string
		valueStr   string
		commonStr  sql.NullString
		rebasedStr sql.NullString
		baseYear   sql.NullInt64
		unit       string
		source     string
		runID      string
		ingestedAt time.Time
	)
	if err := rows.Scan(
		&country,
		&name,
		&year,
		&indicator,
		&valueStr,
		&commonStr,
		&rebasedStr,
		&baseYear,
		&unit,
		&source,
		&runID,
		&ingestedAt,
	); err != nil {
		return model.NormalizedRecord{}, err
	}

	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return model.NormalizedRecord{}, fmt.Errorf("parse value: %w", err)
	}
	common, err := parseNullableDecimal(commonStr)
	if err != nil {
		return model.NormalizedRecord{}, fmt.Errorf("parse common value: %w", err)
	}
	rebased, err := parseNullableDecimal(rebasedStr)
	if err != nil {
		return model.NormalizedRecord{}, fmt.Errorf("parse rebased value: %w", err)
	}

	rec := model.NormalizedRecord{
		IndicatorRecord: model.IndicatorRecord{
			CountryCode:         country,
			CountryName:         name,
			Year:                year,
			Indicator:           model.IndicatorType(indicator),
			Value:               value,
			ValueCommonCurrency: common,
			Unit:                unit,
			Source:              source,
		},
		ValueRebased: rebased,
		RunID:        runID,
		IngestedAt:   ingestedAt,
	}
	if baseYear.Valid {
		rec.BaseYear = int(baseYear.Int64)
	}
	return rec, nil
}

// CountByIndicator summarises the sink per indicator.
func (s *Store) CountByIndicator(ctx context.Context) ([]IndicatorCount, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, countByIndicatorSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("count by indicator: %w", queryErr)
	}
	defer rows.Close()

	counts := make([]IndicatorCount, 0)
	for rows.Next() {
		var c IndicatorCount
		var indicator string
		if err := rows.Scan(&indicator, &c.Records, &c.Countries, &c.FirstYear, &c.LastYear); err != nil {
			return nil, err
		}
		c.Indicator = model.IndicatorType(indicator)
		counts = append(counts, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

// StartRun records a run in progress.
func (s *Store) StartRun(ctx context.Context, id string, startedAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, startRunSQL, id, startedAt, RunRunning); execErr != nil {
		return fmt.Errorf("start run: %w", execErr)
	}
	return nil
}

// FinishRun stores the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, run RunRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	baseYears, err := encodeBaseYears(run.BaseYears)
	if err != nil {
		return err
	}

	var errMsg any
	if run.Error != nil {
		errMsg = *run.Error
	}

	cmdTag, execErr := pool.Exec(ctx, finishRunSQL,
		run.ID,
		run.FinishedAt,
		run.Status,
		run.Records,
		run.Absent,
		run.MissingRates,
		baseYears,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("finish run: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func encodeBaseYears(years map[model.IndicatorType]int) ([]byte, error) {
	if years == nil {
		years = map[model.IndicatorType]int{}
	}
	payload, err := json.Marshal(years)
	if err != nil {
		return nil, fmt.Errorf("encode base years: %w", err)
	}
	return payload, nil
}

// ListRecentRuns lists the most recent runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		var (
			run        RunRecord
			finishedAt sql.NullTime
			baseYears  []byte
			errMsg     sql.NullString
		)
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&finishedAt,
			&run.Status,
			&run.Records,
			&run.Absent,
			&run.MissingRates,
			&baseYears,
			&errMsg,
		); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		if len(baseYears) > 0 {
			if err := json.Unmarshal(baseYears, &run.BaseYears); err != nil {
				return nil, fmt.Errorf("decode base years: %w", err)
			}
		}
		if errMsg.Valid {
			msg := errMsg.String
			run.Error = &msg
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// InsertAnomalies stores the discontinuity findings of a run.
func (s *Store) InsertAnomalies(ctx context.Context, runID string, findings []anomaly.Finding) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, f := range findings {
		batch.Queue(insertAnomalySQL,
			runID,
			f.Country,
			string(f.Indicator),
			string(f.Column),
			f.FromYear,
			f.ToYear,
			f.From.String(),
			f.To.String(),
			f.Ratio.String(),
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range findings {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert anomaly: %w", err)
		}
	}
	return nil
}

var (
	_ RecordStore    = (*Store)(nil)
	_ RunStore       = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
