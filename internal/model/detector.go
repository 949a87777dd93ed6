package model

import "strings"

// Training job statuses as reported by the model trainer.
const (
	TrainingInitializing = "initializing"
	TrainingRunning      = "running"
	TrainingStarted      = "started"
)

// DetectorModel is one trained anomaly detector in the backend registry.
type DetectorModel struct {
	Version   string             `json:"version"`
	CreatedAt *Timestamp         `json:"created_at,omitempty"`
	IsActive  bool               `json:"is_active"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
}

type DetectorModelList struct {
	Models        []DetectorModel `json:"models"`
	ActiveVersion string          `json:"active_version,omitempty"`
}

type ModelActivation struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Version string `json:"version"`
}

type TrainingRequest struct {
	NumSets       int    `json:"num_sets"`
	EntriesPerSet int    `json:"entries_per_set"`
	Description   string `json:"description,omitempty"`
	Activate      bool   `json:"activate"`
}

// TrainingJob acknowledges a training request.
type TrainingJob struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type TrainingStatus struct {
	JobID    string  `json:"job_id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	LastLogs string  `json:"last_logs"`
	LogFile  string  `json:"log_file"`
}

// JobStatus maps a training status onto the analysis job lifecycle:
// initializing is pending, running is processing. A failed run carries the
// last log line as its error. Unknown statuses pass through unchanged.
func (t TrainingStatus) JobStatus() JobStatus {
	status := strings.ToLower(strings.TrimSpace(t.Status))
	switch status {
	case TrainingInitializing, TrainingStarted:
		status = StatusPending
	case TrainingRunning:
		status = StatusProcessing
	}
	js := JobStatus{
		JobID:    t.JobID,
		Status:   status,
		Progress: NormalizeProgress(t.Progress),
	}
	if status == StatusFailed {
		js.Error = lastLine(t.LastLogs)
	}
	return js
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
