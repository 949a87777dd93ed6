package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"auditctl/internal/model"
)

func (c *Client) ListModels(ctx context.Context) (model.DetectorModelList, error) {
	var out model.DetectorModelList
	if err := c.do(ctx, "list models", http.MethodGet, c.endpoint("models", "list"), nil, "", &out); err != nil {
		return model.DetectorModelList{}, err
	}
	if out.Models == nil {
		out.Models = []model.DetectorModel{}
	}
	return out, nil
}

// ActiveModel returns the detector in use. It fails with ErrNotFound when
// the backend runs on rules only.
func (c *Client) ActiveModel(ctx context.Context) (model.DetectorModel, error) {
	var out model.DetectorModel
	err := c.do(ctx, "active model", http.MethodGet, c.endpoint("models", "active"), nil, "", &out)
	return out, err
}

func (c *Client) ActivateModel(ctx context.Context, version string) (model.ModelActivation, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return model.ModelActivation{}, fmt.Errorf("activate model: version: %w", ErrEmptyID)
	}
	var out model.ModelActivation
	payload := map[string]string{"version": version}
	err := c.doJSON(ctx, "activate model", http.MethodPost, c.endpoint("models", "activate"), payload, &out)
	return out, err
}

// TrainModel starts a training run in the background. Poll its progress
// with TrainingStatus or drive a poller through Training.
func (c *Client) TrainModel(ctx context.Context, req model.TrainingRequest) (model.TrainingJob, error) {
	var out model.TrainingJob
	if err := c.doJSON(ctx, "train model", http.MethodPost, c.endpoint("models", "train"), req, &out); err != nil {
		return model.TrainingJob{}, err
	}
	if strings.TrimSpace(out.JobID) == "" {
		return model.TrainingJob{}, fmt.Errorf("train model: %w: missing job_id", ErrMalformed)
	}
	return out, nil
}

func (c *Client) TrainingStatus(ctx context.Context, jobID string) (model.TrainingStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return model.TrainingStatus{}, fmt.Errorf("training status: job_id: %w", ErrEmptyID)
	}
	var out model.TrainingStatus
	err := c.do(ctx, "training status", http.MethodGet, c.endpoint("models", "training-status", jobID), nil, "", &out)
	return out, err
}

// TrainingJobs adapts training status checks to the analysis job shape so
// the same poller can follow a training run. It serves no results.
type TrainingJobs struct {
	c *Client
}

func (c *Client) Training() TrainingJobs {
	return TrainingJobs{c: c}
}

func (t TrainingJobs) JobStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	st, err := t.c.TrainingStatus(ctx, jobID)
	if err != nil {
		return model.JobStatus{}, err
	}
	return st.JobStatus(), nil
}
