package models

import "time"

// Download kinds recorded in the run log.
const (
	KindKeyRatios  = "key_ratios"
	KindFinancials = "financials"
	KindStatements = "statements"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

type DownloadRun struct {
	ID         int64     `json:"id"`
	Ticker     string    `json:"ticker"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	TableCount int       `json:"table_count"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Elapsed is the wall time of the run.
func (r DownloadRun) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type RunCount struct {
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Count  int    `json:"count"`
}
