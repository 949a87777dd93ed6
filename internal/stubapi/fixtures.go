package stubapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"auditctl/internal/model"
)

// sampleAnomalies builds a fixed anomaly set sized to the file. The last
// item uses the legacy affected_rows field.
func sampleAnomalies(entries int, now time.Time) []fiber.Map {
	if entries <= 0 {
		return []fiber.Map{}
	}
	detected := model.NewTimestamp(now)
	last := entries + 1
	out := []fiber.Map{
		{
			"id":               "anom-dup-1",
			"type":             "duplicate_entry",
			"description":      "Écriture en double détectée (même montant, même date, même compte)",
			"confidence_score": 0.92,
			"line_numbers":     []int{2, min(3, last)},
			"related_data":     fiber.Map{"montant": 1250.0, "compte": "411000"},
			"detected_at":      detected,
		},
		{
			"id":               "anom-bal-1",
			"type":             "balance_mismatch",
			"description":      "Déséquilibre débit/crédit sur le journal VE",
			"confidence_score": 0.71,
			"line_numbers":     []int{last},
			"related_data":     fiber.Map{"ecart": 0.02, "journal": "VE"},
			"detected_at":      detected,
		},
	}
	if entries >= 3 {
		out = append(out, fiber.Map{
			"id":               "anom-date-1",
			"type":             "date_inconsistency",
			"description":      "Date de pièce postérieure à la date de validation",
			"confidence_score": 0.45,
			"affected_rows":    []int{4},
			"related_data":     fiber.Map{},
			"detected_at":      detected,
		})
	}
	return out
}

func reportBody(id string, f *fileRecord, req model.ReportRequest, anomalies []fiber.Map) ([]byte, error) {
	doc := fiber.Map{
		"report_id":              id,
		"file_id":                f.meta.FileID,
		"filename":               f.meta.Filename,
		"report_type":            req.ReportType,
		"requested_format":       req.Format,
		"include_visualizations": req.IncludeVisualizations,
		"total_entries":          f.entries,
		"anomaly_count":          len(anomalies),
		"anomalies":              anomalies,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render report %s: %w", id, err)
	}
	return append(data, '\n'), nil
}

var generatedKinds = []string{"duplicate_entry", "balance_mismatch", "date_inconsistency", "unusual_amount"}

// generatedAnomalies spreads n anomalies over a ledger of count lines.
func generatedAnomalies(n, count int, now time.Time) []model.Anomaly {
	out := make([]model.Anomaly, 0, n)
	detected := model.NewTimestamp(now)
	for i := range n {
		line := 2 + (i*count)/max(n, 1)
		kind := generatedKinds[i%len(generatedKinds)]
		out = append(out, model.Anomaly{
			ID:              fmt.Sprintf("gen-%s-%d", kind, i+1),
			Type:            kind,
			Description:     "Anomalie injectée dans le jeu généré",
			ConfidenceScore: 1,
			LineNumbers:     []int{line},
			DetectedAt:      detected,
		})
	}
	return out
}
