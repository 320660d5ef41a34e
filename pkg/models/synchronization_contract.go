package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ContractActionCreate       = "create"
	ContractActionUpdate       = "update"
	ContractActionDelete       = "delete"
	ContractActionSkip         = "skip"
	ContractActionDeleteFailed = "delete-failed"

	// ContractActionFailed only ever appears on contract logs, never on the
	// contract itself.
	ContractActionFailed = "failed"
)

// SynchronizationContract is the idempotency unit: one row per
// (synchronization_id, origin_id), enforced by a unique index. TargetID is
// only set after a successful target write. OriginHash and TargetHash are
// content fingerprints, not object versions; equal hash means unchanged.
type SynchronizationContract struct {
	bun.BaseModel `bun:"table:synchronization_contracts,alias:sc"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SynchronizationID int    `bun:",nullzero" json:"synchronization_id"`
	OriginID          string `bun:",nullzero" json:"origin_id"`
	OriginHash        string `json:"origin_hash"`

	SourceLastChanged *time.Time `json:"source_last_changed,omitempty"`
	SourceLastChecked *time.Time `json:"source_last_checked,omitempty"`
	SourceLastSynced  *time.Time `json:"source_last_synced,omitempty"`

	TargetID   *string `json:"target_id,omitempty"`
	TargetHash string  `json:"target_hash"`

	TargetLastChanged *time.Time `json:"target_last_changed,omitempty"`
	TargetLastChecked *time.Time `json:"target_last_checked,omitempty"`
	TargetLastSynced  *time.Time `json:"target_last_synced,omitempty"`

	TargetLastAction string `json:"target_last_action,omitempty"`
}
