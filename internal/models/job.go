package models

import (
	"encoding/json"
	"strings"
)

// JobDetail describes a stored job: identity, the job-implementation name
// resolved by the job factory at execution time, its data map, and execution
// semantics flags. The key uniquely identifies a job in the store.
type JobDetail struct {
	Key         Key        `json:"key"`
	Description string     `json:"description,omitempty"`
	JobType     string     `json:"job_type"`
	DataMap     JobDataMap `json:"data_map,omitempty"`

	// Durable jobs survive having no triggers.
	Durable bool `json:"durable"`
	// RequestsRecovery marks the job for re-firing after abnormal
	// process termination.
	RequestsRecovery bool `json:"requests_recovery"`
	// DisallowConcurrent limits the job to one executing trigger at a time.
	DisallowConcurrent bool `json:"disallow_concurrent"`
	// PersistDataAfterExecution writes the (possibly mutated) data map back
	// to the store after each execution.
	PersistDataAfterExecution bool `json:"persist_data_after_execution"`

	// DataSchema optionally holds a JSON schema that the merged data map is
	// validated against when the job is scheduled or triggered manually.
	DataSchema json.RawMessage `json:"data_schema,omitempty"`
}

// NewJobDetail builds a job detail with the given key and job type name.
func NewJobDetail(key Key, jobType string) *JobDetail {
	return &JobDetail{
		Key:     key,
		JobType: jobType,
		DataMap: NewJobDataMap(),
	}
}

// Validate checks the minimum required fields.
func (j *JobDetail) Validate() error {
	if strings.TrimSpace(j.Key.Name) == "" {
		return NewValidationError("job key name is required")
	}
	if strings.TrimSpace(j.JobType) == "" {
		return NewValidationError("job type is required for job %s", j.Key)
	}
	return nil
}

// Clone returns a by-value copy so that store-owned state is never aliased
// across transaction boundaries.
func (j *JobDetail) Clone() *JobDetail {
	if j == nil {
		return nil
	}
	out := *j
	out.DataMap = j.DataMap.Clone()
	if j.DataSchema != nil {
		out.DataSchema = append(json.RawMessage(nil), j.DataSchema...)
	}
	return &out
}
