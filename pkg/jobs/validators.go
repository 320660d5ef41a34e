package jobs

type CreateJobPayload struct {
	SynchronizationID int  `json:"synchronization_id" validate:"required,min=1"`
	Force             bool `json:"force"`
	Test              bool `json:"test"`
}

type ListJobsQuery struct {
	Limit  int      `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset int      `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Status []string `query:"status" json:"status,omitempty" validate:"dive,oneof=pending in_progress completed failed"`
}
