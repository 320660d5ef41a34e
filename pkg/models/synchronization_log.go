package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

// RunResult aggregates per-object outcomes of one reconciliation run.
type RunResult struct {
	Created     int   `json:"created"`
	Updated     int   `json:"updated"`
	Deleted     int   `json:"deleted"`
	Skipped     int   `json:"skipped"`
	Failed      int   `json:"failed"`
	ContractIDs []int `json:"contract_ids"`
}

// SynchronizationLog is the run summary: one row per full scan or forced
// batch. Expires is always set so the reaper can purge old rows without
// special-casing keep-forever.
type SynchronizationLog struct {
	bun.BaseModel `bun:"table:synchronization_logs,alias:sl"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	SynchronizationID int        `bun:",nullzero" json:"synchronization_id"`
	RunID             string     `bun:",nullzero" json:"run_id"`
	Result            string     `bun:",nullzero" json:"-"`
	ResultParsed      *RunResult `bun:"-" json:"result"`
	ExecutionTimeMs   int64      `json:"execution_time_ms"`
	Test              bool       `json:"test"`
	Force             bool       `json:"force"`
	Expires           time.Time  `json:"expires"`
	Size              int        `json:"size"`
}

func (l *SynchronizationLog) UnmarshalResult() error {
	l.ResultParsed = &RunResult{}
	err := json.Unmarshal([]byte(l.Result), l.ResultParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}
