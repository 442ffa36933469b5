package storage

import (
	"time"

	"econindex/internal/model"
)

// Run status values.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// RunRecord is one row of pipeline_runs.
type RunRecord struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       string
	Records      int
	Absent       int
	MissingRates int
	BaseYears    map[model.IndicatorType]int
	Error        *string
}

// RecordFilter narrows ListRecords. Zero values match everything.
type RecordFilter struct {
	Indicator model.IndicatorType
	Countries []string
	FromYear  int
	ToYear    int
}

// IndicatorCount summarises one indicator in the sink.
type IndicatorCount struct {
	Indicator model.IndicatorType
	Records   int64
	Countries int64
	FirstYear int
	LastYear  int
}
