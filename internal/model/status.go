package model

import "fmt"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending:    true,
		StatusProcessing: true,
		StatusCompleted:  true, // first observation of an already finished job
		StatusFailed:     true,
		StatusCancelled:  true,
	},
	StatusPending: {
		StatusPending:    true,
		StatusProcessing: true,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusProcessing: true,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusCancelled:  true,
	},
	StatusCompleted: {
		StatusCompleted: true,
	},
	StatusFailed: {
		StatusFailed: true,
	},
	StatusCancelled: {
		StatusCancelled: true,
	},
}

func IsKnownStatus(status string) bool {
	if status == "" {
		return false
	}
	_, ok := allowedTransitions[status]
	return ok
}

// IsTerminal reports whether a job in this status will never change again.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ObserveStatus records a freshly polled status on job. It rejects statuses
// the backend contract does not define and transitions that move a job
// backwards, leaving job untouched in both cases.
func ObserveStatus(job *JobStatus, observed JobStatus) error {
	if !IsKnownStatus(observed.Status) {
		return fmt.Errorf("unknown job status %q (job_id=%s)", observed.Status, observed.JobID)
	}
	if !CanTransition(job.Status, observed.Status) {
		return fmt.Errorf("invalid job status transition: %q -> %q (job_id=%s file_id=%s)", job.Status, observed.Status, observed.JobID, observed.FileID)
	}
	*job = observed
	return nil
}
