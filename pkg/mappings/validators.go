package mappings

import "github.com/syncbridge/syncbridge/pkg/models"

// Query params for list endpoints.
type ListMappingsQuery struct {
	Limit  int `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=100"`
	Offset int `query:"offset" json:"offset,omitempty" validate:"min=0"`
}

type mappingPairPayload struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

type mappingCastPayload struct {
	Path string `json:"path" validate:"required"`
	Type string `json:"type" validate:"required,oneof=string integer float boolean array"`
}

// Payloads for create/update endpoints.
type CreateMappingPayload struct {
	Name        string               `json:"name" validate:"required,min=1,max=200"`
	Pairs       []mappingPairPayload `json:"pairs" validate:"dive"`
	Unset       []string             `json:"unset,omitempty"`
	Cast        []mappingCastPayload `json:"cast,omitempty" validate:"dive"`
	PassThrough bool                 `json:"pass_through"`
}

type UpdateMappingPayload struct {
	Name        *string              `json:"name,omitempty" validate:"omitempty,min=1,max=200" tstype:"string"`
	Pairs       []mappingPairPayload `json:"pairs,omitempty" validate:"omitempty,dive"`
	Unset       []string             `json:"unset,omitempty"`
	Cast        []mappingCastPayload `json:"cast,omitempty" validate:"omitempty,dive"`
	PassThrough *bool                `json:"pass_through,omitempty" tstype:"boolean"`
}

func (p CreateMappingPayload) pairs() []models.MappingPair {
	pairs := make([]models.MappingPair, 0, len(p.Pairs))
	for _, pair := range p.Pairs {
		pairs = append(pairs, models.MappingPair{Source: pair.Source, Target: pair.Target})
	}
	return pairs
}

func (p CreateMappingPayload) casts() []models.MappingCast {
	casts := make([]models.MappingCast, 0, len(p.Cast))
	for _, cast := range p.Cast {
		casts = append(casts, models.MappingCast{Path: cast.Path, Type: cast.Type})
	}
	return casts
}
