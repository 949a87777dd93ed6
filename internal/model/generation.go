package model

// GenerationRequest asks the backend for a synthetic FEC ledger, which it
// analyses straight away.
type GenerationRequest struct {
	Count       int            `json:"count"`
	AnomalyRate float64        `json:"anomaly_rate"`
	StartDate   string         `json:"start_date,omitempty"`
	EndDate     string         `json:"end_date,omitempty"`
	CompanyName string         `json:"company_name,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

type Generation struct {
	GenerationID string  `json:"generation_id"`
	Count        int     `json:"count"`
	AnomalyCount int     `json:"anomaly_count"`
	CSVPath      string  `json:"csv_path"`
	ResultPath   string  `json:"result_path"`
	DurationMS   float64 `json:"duration_ms"`
	GeneratedAt  string  `json:"generated_at"`
}

// GenerationResults is the stored outcome of a generation run, anomalies
// included.
type GenerationResults struct {
	Generation
	AnomalyRate float64        `json:"anomaly_rate"`
	Params      map[string]any `json:"params,omitempty"`
	Anomalies   []Anomaly      `json:"anomalies"`
}
