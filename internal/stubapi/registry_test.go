package stubapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"auditctl/internal/model"
)

func readTraining(t *testing.T, s *Server, jobID string) model.TrainingStatus {
	t.Helper()
	resp := doRequest(t, s, httptest.NewRequest(http.MethodGet, Prefix+"/models/training-status/"+jobID, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st model.TrainingStatus
	decode(t, resp, &st)
	return st
}

func TestListReportsNewestFirstAndFiltered(t *testing.T) {
	s := New(Options{Now: fixedNow})
	a := upload(t, s, "a.txt", ledger)
	b := upload(t, s, "b.txt", ledger)

	var ids []string
	for _, fileID := range []string{a.FileID, b.FileID, a.FileID} {
		resp := doRequest(t, s, jsonRequest(http.MethodPost, Prefix+"/reports/generate", model.ReportRequest{FileID: fileID, Format: "json"}))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var rep model.Report
		decode(t, resp, &rep)
		ids = append(ids, rep.ReportID)
	}

	resp := doRequest(t, s, httptest.NewRequest(http.MethodGet, Prefix+"/reports/list", nil))
	var all []model.Report
	decode(t, resp, &all)
	require.Len(t, all, 3)
	require.Equal(t, ids[2], all[0].ReportID)
	require.Equal(t, ids[0], all[2].ReportID)

	resp = doRequest(t, s, httptest.NewRequest(http.MethodGet, Prefix+"/reports/list?file_id="+a.FileID+"&page_size=1&page=2", nil))
	var page []model.Report
	decode(t, resp, &page)
	require.Len(t, page, 1)
	require.Equal(t, ids[0], page[0].ReportID)

	resp = doRequest(t, s, httptest.NewRequest(http.MethodGet, Prefix+"/reports/list?page_size=500", nil))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerationStoresResults(t *testing.T) {
	s := New(Options{Now: fixedNow})
	resp := doRequest(t, s, jsonRequest(http.MethodPost, Prefix+"/generation/generate", model.GenerationRequest{Count: 200, AnomalyRate: 0.1, CompanyName: "ACME"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var gen model.Generation
	decode(t, resp, &gen)
	require.NotEmpty(t, gen.GenerationID)
	require.Equal(t, 200, gen.Count)
	require.Equal(t, 20, gen.AnomalyCount)

	resp = doRequest(t, s, httptest.NewRequest(http.MethodGet, Prefix+"/generation/results/"+gen.GenerationID, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res model.GenerationResults
	decode(t, resp, &res)
	require.Len(t, res.Anomalies, 20)
	require.Equal(t, "ACME", res.Params["company_name"])

	resp = doRequest(t, s, httptest.NewRequest(http.MethodGet, Prefix+"/generation/results/nope", nil))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	for _, bad := range []model.GenerationRequest{{Count: 5, AnomalyRate: 0.1}, {Count: 100, AnomalyRate: 1.5}} {
		resp = doRequest(t, s, jsonRequest(http.MethodPost, Prefix+"/generation/generate", bad))
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func TestModelRegistryAndActivation(t *testing.T) {
	s := New(Options{Now: fixedNow})
	resp := doRequest(t, s, httptest.NewRequest(http.MethodGet, Prefix+"/models/list", nil))
	var list model.DetectorModelList
	decode(t, resp, &list)
	require.Len(t, list.Models, 1)
	require.Equal(t, "v1", list.ActiveVersion)

	resp = doRequest(t, s, jsonRequest(http.MethodPost, Prefix+"/models/activate", map[string]string{"version": "v9"}))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, s, jsonRequest(http.MethodPost, Prefix+"/models/activate", map[string]string{"version": "v1"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var act model.ModelActivation
	decode(t, resp, &act)
	require.True(t, act.Success)
	require.Equal(t, "v1", act.Version)

	resp = doRequest(t, s, httptest.NewRequest(http.MethodGet, Prefix+"/models/active", nil))
	var active model.DetectorModel
	decode(t, resp, &active)
	require.True(t, active.IsActive)
}

func TestTrainingAdvancesAndRegistersModel(t *testing.T) {
	s := New(Options{Now: fixedNow, Steps: 4})
	resp := doRequest(t, s, jsonRequest(http.MethodPost, Prefix+"/models/train", model.TrainingRequest{NumSets: 3, EntriesPerSet: 200, Activate: true, Description: "nightly"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var job model.TrainingJob
	decode(t, resp, &job)
	require.Equal(t, model.TrainingStarted, job.Status)

	var seen []string
	for range 5 {
		seen = append(seen, readTraining(t, s, job.JobID).Status)
	}
	require.Equal(t, []string{"initializing", "initializing", "running", "running", "completed"}, seen)
	require.Equal(t, model.StatusCompleted, readTraining(t, s, job.JobID).Status)

	models := s.Models()
	require.Len(t, models, 2)
	require.False(t, models[0].IsActive)
	require.True(t, models[1].IsActive)
	require.Equal(t, "v2", models[1].Version)
	require.Equal(t, "nightly", models[1].Metadata["description"])

	resp = doRequest(t, s, httptest.NewRequest(http.MethodGet, Prefix+"/models/training-status/nope", nil))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, s, jsonRequest(http.MethodPost, Prefix+"/models/train", model.TrainingRequest{NumSets: 0, EntriesPerSet: 200}))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFailedTrainingKeepsActiveModel(t *testing.T) {
	s := New(Options{Now: fixedNow, FailJobs: true, FailMessage: "not enough data"})
	resp := doRequest(t, s, jsonRequest(http.MethodPost, Prefix+"/models/train", model.TrainingRequest{NumSets: 1, EntriesPerSet: 100}))
	var job model.TrainingJob
	decode(t, resp, &job)

	st := readTraining(t, s, job.JobID)
	require.Equal(t, model.StatusFailed, st.Status)
	require.Equal(t, "not enough data", st.JobStatus().Error)
	require.Len(t, s.Models(), 1)
}

func TestHealthDetailAndReadiness(t *testing.T) {
	s := New(Options{Now: fixedNow})
	resp := doRequest(t, s, httptest.NewRequest(http.MethodGet, Prefix+"/healthz/health", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hd model.HealthDetail
	decode(t, resp, &hd)
	require.Equal(t, "healthy", hd.Status)
	require.Equal(t, "v1", hd.ModelInfo["active_version"])

	resp = doRequest(t, s, httptest.NewRequest(http.MethodGet, Prefix+"/healthz/ready", nil))
	var ready model.Readiness
	decode(t, resp, &ready)
	require.Equal(t, "ready", ready.Status)
	require.Equal(t, "loaded", ready.ModelStatus)
}
