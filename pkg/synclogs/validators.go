package synclogs

type ListRunLogsQuery struct {
	Limit  int `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=100"`
	Offset int `query:"offset" json:"offset,omitempty" validate:"min=0"`
}

type ListContractLogsQuery struct {
	SynchronizationLogID *int `query:"synchronization_log_id" json:"synchronization_log_id,omitempty"`
	AfterID              *int `query:"after_id" json:"after_id,omitempty"`
	Limit                int  `query:"limit" json:"limit,omitempty" default:"100" validate:"min=1,max=500"`
}
