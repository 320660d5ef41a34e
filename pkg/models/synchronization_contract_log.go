package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SynchronizationContractLog records one per-object outcome within a run.
// Source and target snapshots are size-capped before persisting so a single
// oversized payload can't bloat the log table.
type SynchronizationContractLog struct {
	bun.BaseModel `bun:"table:synchronization_contract_logs,alias:scl"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	SynchronizationContractID int    `bun:",nullzero" json:"synchronization_contract_id"`
	SynchronizationLogID      *int   `json:"synchronization_log_id,omitempty"`
	SourceSnapshot            string `json:"source_snapshot,omitempty"`
	TargetSnapshot            string `json:"target_snapshot,omitempty"`

	// TargetResult is the action taken: create, update, delete, or skip.
	TargetResult string `bun:",nullzero" json:"target_result"`

	// Message is a human-readable outcome; always set for non-success.
	Message string    `json:"message,omitempty"`
	Test    bool      `json:"test"`
	Force   bool      `json:"force"`
	Expires time.Time `json:"expires"`
	Size    int       `json:"size"`
}
