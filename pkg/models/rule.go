package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	RuleTimingBefore = "before"
	RuleTimingAfter  = "after"
)

const (
	RuleTypeMapping             = "mapping"
	RuleTypeError               = "error"
	RuleTypeScript              = "script"
	RuleTypeJavaScript          = "javascript"
	RuleTypeSynchronization     = "synchronization"
	RuleTypeAuthentication      = "authentication"
	RuleTypeDownload            = "download"
	RuleTypeUpload              = "upload"
	RuleTypeLocking             = "locking"
	RuleTypeExtendInput         = "extend_input"
	RuleTypeExtendExternalInput = "extend_external_input"
	RuleTypeFetchFile           = "fetch_file"
	RuleTypeWriteFile           = "write_file"
	RuleTypeFilepartsCreate     = "fileparts_create"
	RuleTypeFilepartUpload      = "filepart_upload"
	RuleTypeSaveObject          = "save_object"
)

const (
	RuleOnErrorContinue    = "continue"
	RuleOnErrorAbortObject = "abort-object"
	RuleOnErrorAbortRun    = "abort-run"
)

// RuleTypes lists every supported rule type, in no particular order. The
// rule executor refuses to construct when a handler is missing for any of
// these, so an unimplemented type is caught at startup rather than silently
// skipped per object.
var RuleTypes = []string{
	RuleTypeMapping,
	RuleTypeError,
	RuleTypeScript,
	RuleTypeJavaScript,
	RuleTypeSynchronization,
	RuleTypeAuthentication,
	RuleTypeDownload,
	RuleTypeUpload,
	RuleTypeLocking,
	RuleTypeExtendInput,
	RuleTypeExtendExternalInput,
	RuleTypeFetchFile,
	RuleTypeWriteFile,
	RuleTypeFilepartsCreate,
	RuleTypeFilepartUpload,
	RuleTypeSaveObject,
}

// Rule is a single conditional pre- or post-processing step. Rules never
// mutate configuration, only the transient per-object context.
type Rule struct {
	bun.BaseModel `bun:"table:rules,alias:r"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SynchronizationID int    `bun:",nullzero" json:"synchronization_id"`
	Name              string `json:"name,omitempty"`
	Timing            string `bun:",nullzero" json:"timing"`
	Type              string `bun:",nullzero" json:"type"`

	// Condition is a boolean expression over the in-flight object; false
	// skips the rule without error.
	Condition string `json:"condition,omitempty"`

	Configuration       string                 `json:"-"`
	ConfigurationParsed map[string]interface{} `bun:"-" json:"configuration,omitempty"`

	// Order sorts ascending within a timing; ties break ascending by id.
	Order int `bun:"rule_order" json:"order"`
}

func (r *Rule) UnmarshalConfiguration() error {
	r.ConfigurationParsed = map[string]interface{}{}
	if r.Configuration == "" {
		return nil
	}
	err := json.Unmarshal([]byte(r.Configuration), &r.ConfigurationParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// OnError returns the rule's failure policy, defaulting to abort-object.
func (r *Rule) OnError() string {
	if v, ok := r.ConfigurationParsed["onError"].(string); ok {
		switch v {
		case RuleOnErrorContinue, RuleOnErrorAbortObject, RuleOnErrorAbortRun:
			return v
		}
	}
	return RuleOnErrorAbortObject
}
