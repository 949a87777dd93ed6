package model

import (
	"encoding/json"
	"testing"
)

func TestJobStatusDecodeTakesProgressAsPercent(t *testing.T) {
	cases := map[string]float64{
		`{"job_id":"j1","status":"Processing","progress":0.42}`: 0.42,
		`{"job_id":"j1","status":"Processing","progress":1.0}`:  1,
		`{"job_id":"j1","status":"Processing","progress":99}`:   99,
	}
	for payload, want := range cases {
		var js JobStatus
		if err := json.Unmarshal([]byte(payload), &js); err != nil {
			t.Fatal(err)
		}
		if js.Status != StatusProcessing {
			t.Fatalf("status mismatch: got %q", js.Status)
		}
		if js.Progress != want {
			t.Fatalf("progress mismatch for %s: got %v want %v", payload, js.Progress, want)
		}
	}
}

func TestJobStatusDecodeKeepsPercentProgress(t *testing.T) {
	var js JobStatus
	payload := `{"job_id":"j1","file_id":"f1","status":"pending","progress":30,"created_at":"2024-03-01T10:15:00.123456","started_at":null}`
	if err := json.Unmarshal([]byte(payload), &js); err != nil {
		t.Fatal(err)
	}
	if js.Progress != 30 {
		t.Fatalf("progress mismatch: got %v want 30", js.Progress)
	}
	if js.CreatedAt == nil || js.CreatedAt.Year() != 2024 {
		t.Fatalf("created_at not parsed: %+v", js.CreatedAt)
	}
	if js.StartedAt != nil && !js.StartedAt.IsZero() {
		t.Fatalf("expected empty started_at, got %v", js.StartedAt)
	}
}

func TestNormalizeProgressClamps(t *testing.T) {
	cases := map[float64]float64{
		-5:   0,
		0:    0,
		0.5:  0.5,
		1:    1,
		55:   55,
		100:  100,
		140:  100,
		0.99: 0.99,
	}
	for in, want := range cases {
		if got := NormalizeProgress(in); got != want {
			t.Fatalf("NormalizeProgress(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestAnomalyDecodeFoldsAffectedRows(t *testing.T) {
	var a Anomaly
	payload := `{"id":"a1","type":"duplicate_entry","description":"dup","confidence_score":0.9,"affected_rows":[4,5],"detected_at":"2024-01-15T14:30:00"}`
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		t.Fatal(err)
	}
	if len(a.LineNumbers) != 2 || a.LineNumbers[0] != 4 {
		t.Fatalf("expected affected_rows folded into line_numbers, got %v", a.LineNumbers)
	}

	var b Anomaly
	if err := json.Unmarshal([]byte(`{"id":"a2","line_numbers":[7],"affected_rows":[1,2]}`), &b); err != nil {
		t.Fatal(err)
	}
	if len(b.LineNumbers) != 1 || b.LineNumbers[0] != 7 {
		t.Fatalf("line_numbers must win over affected_rows, got %v", b.LineNumbers)
	}
}

func TestAnalysisResultsFilterAndCount(t *testing.T) {
	res := AnalysisResults{Anomalies: []Anomaly{
		{ID: "1", Type: "duplicate_entry", ConfidenceScore: 0.95},
		{ID: "2", Type: "duplicate_entry", ConfidenceScore: 0.4},
		{ID: "3", Type: "", ConfidenceScore: 0.7},
	}}

	if got := len(res.FilterByConfidence(0.5)); got != 2 {
		t.Fatalf("expected 2 anomalies >= 0.5, got %d", got)
	}
	if got := len(res.FilterByConfidence(0)); got != 3 {
		t.Fatalf("expected all anomalies with no threshold, got %d", got)
	}
	counts := res.CountByType()
	if counts["duplicate_entry"] != 2 || counts["other"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestTrainingStatusMapsOntoJobLifecycle(t *testing.T) {
	cases := []struct {
		in   TrainingStatus
		want JobStatus
	}{
		{TrainingStatus{JobID: "t1", Status: "initializing"}, JobStatus{JobID: "t1", Status: StatusPending}},
		{TrainingStatus{JobID: "t1", Status: "Running", Progress: 10}, JobStatus{JobID: "t1", Status: StatusProcessing, Progress: 10}},
		{TrainingStatus{JobID: "t1", Status: "completed", Progress: 100}, JobStatus{JobID: "t1", Status: StatusCompleted, Progress: 100}},
		{TrainingStatus{JobID: "t1", Status: "failed", Progress: 100, LastLogs: "epoch 1\nValueError: empty set\n\n"}, JobStatus{JobID: "t1", Status: StatusFailed, Progress: 100, Error: "ValueError: empty set"}},
		{TrainingStatus{JobID: "t1", Status: "unknown"}, JobStatus{JobID: "t1", Status: "unknown"}},
	}
	for _, tc := range cases {
		if got := tc.in.JobStatus(); got != tc.want {
			t.Fatalf("JobStatus(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestGenerationResultsDecode(t *testing.T) {
	var res GenerationResults
	payload := `{"generation_id":"g1","count":100,"anomaly_count":1,"anomaly_rate":0.05,"csv_path":"data/generated_g1.csv","anomalies":[{"id":"a1","type":"duplicate_entry","confidence_score":0.8,"affected_rows":[7]}]}`
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		t.Fatal(err)
	}
	if res.GenerationID != "g1" || res.Count != 100 || res.AnomalyRate != 0.05 {
		t.Fatalf("unexpected header: %+v", res.Generation)
	}
	if len(res.Anomalies) != 1 || len(res.Anomalies[0].LineNumbers) != 1 || res.Anomalies[0].LineNumbers[0] != 7 {
		t.Fatalf("unexpected anomalies: %+v", res.Anomalies)
	}
}
