package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	CastTypeString  = "string"
	CastTypeInteger = "integer"
	CastTypeFloat   = "float"
	CastTypeBoolean = "boolean"
	CastTypeArray   = "array"
)

// MappingPair maps one source path (an expression evaluated against the
// input) to one dotted target path in the output.
type MappingPair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// MappingCast converts the value at a dotted path to the given type after
// the pairs have been applied.
type MappingCast struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// Mapping is an ordered transformation spec. Pairs are applied in order,
// casts after that, and unset last so unset always wins.
type Mapping struct {
	bun.BaseModel `bun:"table:mappings,alias:m"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string `bun:",nullzero" json:"name"`
	Pairs       string `bun:",nullzero" json:"-"`
	Unset       string `json:"-"`
	Cast        string `json:"-"`
	PassThrough bool   `json:"pass_through"`

	PairsParsed []MappingPair `bun:"-" json:"pairs"`
	UnsetParsed []string      `bun:"-" json:"unset,omitempty"`
	CastParsed  []MappingCast `bun:"-" json:"cast,omitempty"`
}

// UnmarshalColumns parses the JSON columns into their typed fields.
func (m *Mapping) UnmarshalColumns() error {
	m.PairsParsed = nil
	m.UnsetParsed = nil
	m.CastParsed = nil

	if m.Pairs != "" {
		if err := json.Unmarshal([]byte(m.Pairs), &m.PairsParsed); err != nil {
			return errors.WithStack(err)
		}
	}
	if m.Unset != "" {
		if err := json.Unmarshal([]byte(m.Unset), &m.UnsetParsed); err != nil {
			return errors.WithStack(err)
		}
	}
	if m.Cast != "" {
		if err := json.Unmarshal([]byte(m.Cast), &m.CastParsed); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// MarshalColumns serializes the typed fields back into the JSON columns.
func (m *Mapping) MarshalColumns() error {
	pairs, err := json.Marshal(m.PairsParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	m.Pairs = string(pairs)

	unset, err := json.Marshal(m.UnsetParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	m.Unset = string(unset)

	cast, err := json.Marshal(m.CastParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	m.Cast = string(cast)

	return nil
}
