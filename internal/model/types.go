package model

import (
	"encoding/json"
	"strings"
)

const (
	AnalysisStandard       = "standard"
	AnalysisAdvanced       = "advanced"
	AnalysisDuplicateCheck = "duplicate_check"
	AnalysisCompliance     = "compliance"
	AnalysisCustom         = "custom"

	ReportSummary    = "summary"
	ReportDetailed   = "detailed"
	ReportCompliance = "compliance"
	ReportCustom     = "custom"
	ReportExport     = "export"

	FormatPDF   = "pdf"
	FormatExcel = "excel"
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatHTML  = "html"
)

var (
	AnalysisTypes = []string{AnalysisStandard, AnalysisAdvanced, AnalysisDuplicateCheck, AnalysisCompliance, AnalysisCustom}
	ReportTypes   = []string{ReportSummary, ReportDetailed, ReportCompliance, ReportCustom, ReportExport}
	ReportFormats = []string{FormatPDF, FormatExcel, FormatCSV, FormatJSON, FormatHTML}
)

// JobStatus is the backend view of an analysis job.
type JobStatus struct {
	JobID       string     `json:"job_id"`
	FileID      string     `json:"file_id,omitempty"`
	Status      string     `json:"status"`
	Progress    float64    `json:"progress"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
	StartedAt   *Timestamp `json:"started_at,omitempty"`
	CompletedAt *Timestamp `json:"completed_at,omitempty"`
}

func (j *JobStatus) UnmarshalJSON(data []byte) error {
	type alias JobStatus
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*j = JobStatus(raw)
	j.Status = strings.ToLower(strings.TrimSpace(j.Status))
	j.Progress = NormalizeProgress(j.Progress)
	return nil
}

// NormalizeProgress clamps a reported percentage to 0-100.
func NormalizeProgress(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

type UploadedFile struct {
	FileID          string     `json:"file_id"`
	Filename        string     `json:"filename"`
	SizeBytes       int64      `json:"size_bytes"`
	UploadTimestamp *Timestamp `json:"upload_timestamp,omitempty"`
	ContentType     string     `json:"content_type,omitempty"`
	Status          string     `json:"status,omitempty"`
	Message         string     `json:"message,omitempty"`
}

type AnalysisResults struct {
	FileID            string     `json:"file_id"`
	Filename          string     `json:"filename,omitempty"`
	TotalEntries      int        `json:"total_entries"`
	AnomalyCount      int        `json:"anomaly_count"`
	Anomalies         []Anomaly  `json:"anomalies"`
	AnalysisTimestamp *Timestamp `json:"analysis_timestamp,omitempty"`
	ProcessingTimeMS  int64      `json:"processing_time_ms,omitempty"`
}

type Anomaly struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Description     string         `json:"description"`
	ConfidenceScore float64        `json:"confidence_score"`
	LineNumbers     []int          `json:"line_numbers"`
	RelatedData     map[string]any `json:"related_data,omitempty"`
	DetectedAt      *Timestamp     `json:"detected_at,omitempty"`
}

// UnmarshalJSON accepts the legacy affected_rows field as line_numbers.
func (a *Anomaly) UnmarshalJSON(data []byte) error {
	type alias Anomaly
	var raw struct {
		alias
		AffectedRows []int `json:"affected_rows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Anomaly(raw.alias)
	if len(a.LineNumbers) == 0 && len(raw.AffectedRows) > 0 {
		a.LineNumbers = raw.AffectedRows
	}
	return nil
}

// FilterByConfidence returns the anomalies scoring at least min.
func (r AnalysisResults) FilterByConfidence(min float64) []Anomaly {
	if min <= 0 {
		return r.Anomalies
	}
	out := make([]Anomaly, 0, len(r.Anomalies))
	for _, a := range r.Anomalies {
		if a.ConfidenceScore >= min {
			out = append(out, a)
		}
	}
	return out
}

// CountByType groups anomalies by type.
func (r AnalysisResults) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, a := range r.Anomalies {
		t := a.Type
		if strings.TrimSpace(t) == "" {
			t = "other"
		}
		counts[t]++
	}
	return counts
}

type ReportRequest struct {
	FileID                string `json:"file_id"`
	ReportType            string `json:"report_type"`
	Format                string `json:"format"`
	IncludeVisualizations bool   `json:"include_visualizations"`
}

type Report struct {
	ReportID   string     `json:"report_id"`
	FileID     string     `json:"file_id"`
	ReportType string     `json:"report_type"`
	Format     string     `json:"format"`
	URL        string     `json:"url"`
	CreatedAt  *Timestamp `json:"created_at,omitempty"`
	ExpiresAt  *Timestamp `json:"expires_at,omitempty"`
	SizeBytes  int64      `json:"size_bytes,omitempty"`
}

type ReportStatus struct {
	ReportID    string     `json:"report_id"`
	Status      string     `json:"status"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
	CompletedAt *Timestamp `json:"completed_at,omitempty"`
	FileSize    int64      `json:"file_size,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type Health struct {
	Status string `json:"status"`
}

// HealthDetail is the backend's full health report.
type HealthDetail struct {
	Status      string         `json:"status"`
	Timestamp   string         `json:"timestamp"`
	Version     string         `json:"version"`
	Environment string         `json:"environment"`
	ModelInfo   map[string]any `json:"model_info"`
	DiskUsage   map[string]any `json:"disk_usage"`
}

type Readiness struct {
	Status      string `json:"status"`
	ModelStatus string `json:"model_status,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
