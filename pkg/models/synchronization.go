package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ProviderTypeMemory = "memory"
	ProviderTypeHTTP   = "http"
)

// Synchronization is a configured pairing of one source and one target. The
// engine treats it as read-only except for the watermark fields and
// CurrentPage, which only the reconciliation loop mutates.
type Synchronization struct {
	bun.BaseModel `bun:"table:synchronizations,alias:s"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name       string `bun:",nullzero" json:"name"`
	SourceRef  string `bun:",nullzero" json:"source_ref"`
	SourceType string `bun:",nullzero" json:"source_type"`
	TargetRef  string `bun:",nullzero" json:"target_ref"`
	TargetType string `bun:",nullzero" json:"target_type"`

	// RegisterRef/SchemaRef identify the source object type for event routing.
	RegisterRef string `bun:",nullzero" json:"register_ref"`
	SchemaRef   string `bun:",nullzero" json:"schema_ref"`

	// SourceTargetMappingID is used for writes to the target;
	// TargetSourceMappingID for reverse lookups and deletes.
	SourceTargetMappingID *int `json:"source_target_mapping_id,omitempty"`
	TargetSourceMappingID *int `json:"target_source_mapping_id,omitempty"`

	// Condition is a boolean expression gating whether a source object is
	// eligible at all. Empty means always eligible.
	Condition string `json:"condition,omitempty"`

	// CurrentPage is the persisted pagination cursor. It advances
	// monotonically within one full scan and resets when a new scan starts.
	CurrentPage int `json:"current_page"`

	SourceLastChanged *time.Time `json:"source_last_changed,omitempty"`
	SourceLastChecked *time.Time `json:"source_last_checked,omitempty"`
	SourceLastSynced  *time.Time `json:"source_last_synced,omitempty"`
	TargetLastChanged *time.Time `json:"target_last_changed,omitempty"`
	TargetLastChecked *time.Time `json:"target_last_checked,omitempty"`
	TargetLastSynced  *time.Time `json:"target_last_synced,omitempty"`

	Version int `json:"version"`

	SourceTargetMapping *Mapping `bun:"rel:belongs-to,join:source_target_mapping_id=id" json:"source_target_mapping,omitempty"`
	TargetSourceMapping *Mapping `bun:"rel:belongs-to,join:target_source_mapping_id=id" json:"target_source_mapping,omitempty"`
	Rules               []*Rule  `bun:"rel:has-many,join:id=synchronization_id" json:"rules,omitempty"`
}
