package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"auditctl/internal/model"
)

const (
	MinGenerationCount = 10
	MaxGenerationCount = 10000
)

// Generate asks the backend for a synthetic ledger and its analysis.
func (c *Client) Generate(ctx context.Context, req model.GenerationRequest) (model.Generation, error) {
	if req.Count < MinGenerationCount || req.Count > MaxGenerationCount {
		return model.Generation{}, fmt.Errorf("generate data: count %d outside %d..%d", req.Count, MinGenerationCount, MaxGenerationCount)
	}
	if req.AnomalyRate < 0 || req.AnomalyRate > 1 {
		return model.Generation{}, fmt.Errorf("generate data: anomaly rate %.2f outside 0..1", req.AnomalyRate)
	}
	var out model.Generation
	err := c.doJSON(ctx, "generate data", http.MethodPost, c.endpoint("generation", "generate"), req, &out)
	return out, err
}

func (c *Client) GenerationResults(ctx context.Context, generationID string) (model.GenerationResults, error) {
	if strings.TrimSpace(generationID) == "" {
		return model.GenerationResults{}, fmt.Errorf("generation results: generation_id: %w", ErrEmptyID)
	}
	var out model.GenerationResults
	err := c.do(ctx, "generation results", http.MethodGet, c.endpoint("generation", "results", generationID), nil, "", &out)
	return out, err
}
