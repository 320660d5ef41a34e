package events

type EventPayload struct {
	RegisterRef string `json:"register_ref" validate:"required"`
	SchemaRef   string `json:"schema_ref" validate:"required"`
	ObjectID    string `json:"object_id" validate:"required"`
	Mutation    string `json:"mutation" validate:"required,oneof=create update delete"`
}
