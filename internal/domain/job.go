package domain

// JobStatus is the job status machine from spec.md §3: monotonic
// PENDING -> IN_PROGRESS -> {COMPLETED|FAILED|CANCELLED}.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
	JobCancelled  JobStatus = "CANCELLED"
)

// jobStatusRank orders statuses so transitions can be checked for
// monotonicity; terminal statuses all rank above IN_PROGRESS and are mutually
// exclusive (a job can only ever reach one of them).
var jobStatusRank = map[JobStatus]int{
	JobPending:    0,
	JobInProgress: 1,
	JobCompleted:  2,
	JobFailed:     2,
	JobCancelled:  2,
}

// CanTransition reports whether moving from `from` to `to` respects the
// status machine: forward-only, and never out of a terminal status.
func CanTransition(from, to JobStatus) bool {
	fromRank, ok := jobStatusRank[from]
	if !ok {
		return false
	}
	toRank, ok := jobStatusRank[to]
	if !ok {
		return false
	}
	if fromRank == 2 {
		return false // terminal statuses never transition again
	}
	return toRank > fromRank || (fromRank == toRank && from != to)
}

// JobTrigger is CleanupJob.triggered_by from spec.md §3.
type JobTrigger string

const (
	TriggerSchedule             JobTrigger = "schedule"
	TriggerStorageThreshold     JobTrigger = "storage_threshold"
	TriggerPerformance          JobTrigger = "performance"
	TriggerUserRequest          JobTrigger = "user_request"
	TriggerContinuous           JobTrigger = "continuous"
	TriggerStorageWarning       JobTrigger = "storage_warning"
	TriggerPerformanceDegraded  JobTrigger = "performance_degradation"
	TriggerStorageCritical      JobTrigger = "storage_critical"
)

// JobPriority is CleanupJob.priority from spec.md §3.
type JobPriority string

const (
	PriorityLow      JobPriority = "low"
	PriorityNormal   JobPriority = "normal"
	PriorityHigh     JobPriority = "high"
	PriorityEmergency JobPriority = "emergency"
)

// Job is the durable job record from spec.md §3.
type Job struct {
	JobID      string                 `json:"job_id"`
	JobType    string                 `json:"job_type"`
	Status     JobStatus              `json:"status"`
	Params     map[string]interface{} `json:"request_params"`
	Progress   int                    `json:"progress"`
	Results    map[string]interface{} `json:"results,omitempty"`
	ErrorDetails string               `json:"error_details,omitempty"`
	CreatedAt  int64                  `json:"created_at"`
	StartedAt  *int64                 `json:"started_at,omitempty"`
	CompletedAt *int64                `json:"completed_at,omitempty"`
	UpdatedAt  int64                  `json:"updated_at"`
	UserID     string                 `json:"user_id"`
}

// CleanupJob extends Job with the cleanup-specific side table from spec.md §3.
type CleanupJob struct {
	Job
	PolicyID          string     `json:"policy_id"`
	TriggeredBy       JobTrigger `json:"triggered_by"`
	Priority          JobPriority `json:"priority"`
	BatchSize         int        `json:"batch_size"`
	TargetEmails      int        `json:"target_emails"`
	EmailsAnalyzed    int        `json:"emails_analyzed"`
	EmailsCleaned     int        `json:"emails_cleaned"`
	StorageFreed      int64      `json:"storage_freed"`
	ErrorsEncountered int        `json:"errors_encountered"`
	CurrentBatch      int        `json:"current_batch"`
	TotalBatches      int        `json:"total_batches"`
}
