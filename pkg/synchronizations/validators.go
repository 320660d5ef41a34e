package synchronizations

// Query params for list endpoints.
type ListSynchronizationsQuery struct {
	RegisterRef *string `query:"register_ref" json:"register_ref,omitempty" tstype:"string"`
	SchemaRef   *string `query:"schema_ref" json:"schema_ref,omitempty" tstype:"string"`
	Limit       int     `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=100"`
	Offset      int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
}

// Payloads for create/update endpoints.
type CreateSynchronizationPayload struct {
	Name                  string  `json:"name" validate:"required,min=1,max=200"`
	SourceRef             string  `json:"source_ref" validate:"required"`
	SourceType            string  `json:"source_type" validate:"required,oneof=memory http"`
	TargetRef             string  `json:"target_ref" validate:"required"`
	TargetType            string  `json:"target_type" validate:"required,oneof=memory http"`
	RegisterRef           string  `json:"register_ref,omitempty"`
	SchemaRef             string  `json:"schema_ref,omitempty"`
	SourceTargetMappingID *int    `json:"source_target_mapping_id,omitempty" validate:"omitempty,min=1" tstype:"number"`
	TargetSourceMappingID *int    `json:"target_source_mapping_id,omitempty" validate:"omitempty,min=1" tstype:"number"`
	Condition             *string `json:"condition,omitempty" validate:"omitempty,expression" tstype:"string"`
}

type UpdateSynchronizationPayload struct {
	Name                  *string `json:"name,omitempty" validate:"omitempty,min=1,max=200" tstype:"string"`
	SourceRef             *string `json:"source_ref,omitempty" validate:"omitempty,min=1" tstype:"string"`
	SourceType            *string `json:"source_type,omitempty" validate:"omitempty,oneof=memory http" tstype:"string"`
	TargetRef             *string `json:"target_ref,omitempty" validate:"omitempty,min=1" tstype:"string"`
	TargetType            *string `json:"target_type,omitempty" validate:"omitempty,oneof=memory http" tstype:"string"`
	RegisterRef           *string `json:"register_ref,omitempty" tstype:"string"`
	SchemaRef             *string `json:"schema_ref,omitempty" tstype:"string"`
	SourceTargetMappingID *int    `json:"source_target_mapping_id,omitempty" validate:"omitempty,min=1" tstype:"number"`
	TargetSourceMappingID *int    `json:"target_source_mapping_id,omitempty" validate:"omitempty,min=1" tstype:"number"`
	Condition             *string `json:"condition,omitempty" validate:"omitempty,expression" tstype:"string"`
}

type CreateRulePayload struct {
	Name          string                 `json:"name,omitempty" validate:"omitempty,max=200"`
	Timing        string                 `json:"timing" validate:"required,oneof=before after"`
	Type          string                 `json:"type" validate:"required,oneof=mapping error script javascript synchronization authentication download upload locking extend_input extend_external_input fetch_file write_file fileparts_create filepart_upload save_object"`
	Condition     *string                `json:"condition,omitempty" validate:"omitempty,expression" tstype:"string"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
	Order         int                    `json:"order" validate:"min=0"`
}

type UpdateRulePayload struct {
	Name          *string                `json:"name,omitempty" validate:"omitempty,max=200" tstype:"string"`
	Timing        *string                `json:"timing,omitempty" validate:"omitempty,oneof=before after" tstype:"string"`
	Type          *string                `json:"type,omitempty" validate:"omitempty,oneof=mapping error script javascript synchronization authentication download upload locking extend_input extend_external_input fetch_file write_file fileparts_create filepart_upload save_object" tstype:"string"`
	Condition     *string                `json:"condition,omitempty" validate:"omitempty,expression" tstype:"string"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
	Order         *int                   `json:"order,omitempty" validate:"omitempty,min=0" tstype:"number"`
}

// Payload for triggering a run out of band.
type RunSynchronizationPayload struct {
	Force bool `json:"force"`
	Test  bool `json:"test"`
}
