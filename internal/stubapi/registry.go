package stubapi

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"auditctl/internal/model"
)

const stubVersion = "stub"

type trainingRecord struct {
	status model.TrainingStatus
	req    model.TrainingRequest
	reads  int
}

func seedModel(now time.Time) model.DetectorModel {
	return model.DetectorModel{
		Version:   "v1",
		CreatedAt: model.NewTimestamp(now),
		IsActive:  true,
		Metrics:   map[string]float64{"precision": 0.91, "recall": 0.84, "f1": 0.87},
		Metadata:  map[string]any{"description": "modèle initial"},
	}
}

func (s *Server) activeModelLocked() (model.DetectorModel, bool) {
	for _, m := range s.models {
		if m.IsActive {
			return m, true
		}
	}
	return model.DetectorModel{}, false
}

func (s *Server) handleListModels(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := model.DetectorModelList{Models: append([]model.DetectorModel{}, s.models...)}
	if m, ok := s.activeModelLocked(); ok {
		out.ActiveVersion = m.Version
	}
	return c.JSON(out)
}

func (s *Server) handleActiveModel(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.activeModelLocked()
	if !ok {
		return &apiError{status: fiber.StatusNotFound, kind: "HTTPException", detail: "Aucun modèle actif trouvé"}
	}
	return c.JSON(m)
}

func (s *Server) handleActivateModel(c *fiber.Ctx) error {
	var req struct {
		Version string `json:"version"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Version) == "" {
		return badRequest("ValidationError", "version requise")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.models {
		if s.models[i].Version == req.Version {
			found = true
		}
	}
	if !found {
		return &apiError{status: fiber.StatusNotFound, kind: "HTTPException", detail: fmt.Sprintf("Modèle version %s non trouvé", req.Version)}
	}
	for i := range s.models {
		s.models[i].IsActive = s.models[i].Version == req.Version
	}
	return c.JSON(model.ModelActivation{
		Success: true,
		Message: fmt.Sprintf("Modèle version %s activé avec succès", req.Version),
		Version: req.Version,
	})
}

func (s *Server) handleTrain(c *fiber.Ctx) error {
	req := model.TrainingRequest{NumSets: 10, EntriesPerSet: 500, Activate: true}
	if err := c.BodyParser(&req); err != nil {
		return badRequest("ValidationError", "corps de requête invalide")
	}
	if req.NumSets < 1 || req.NumSets > 50 {
		return badRequest("ValidationError", "num_sets doit être compris entre 1 et 50")
	}
	if req.EntriesPerSet < 100 || req.EntriesPerSet > 5000 {
		return badRequest("ValidationError", "entries_per_set doit être compris entre 100 et 5000")
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.trainings[id] = &trainingRecord{
		req: req,
		status: model.TrainingStatus{
			JobID:   id,
			Status:  model.TrainingInitializing,
			LogFile: "data/logs/train_" + id + ".log",
		},
	}
	s.mu.Unlock()

	return c.JSON(model.TrainingJob{
		JobID:   id,
		Status:  model.TrainingStarted,
		Message: "Entraînement du modèle démarré en arrière-plan",
	})
}

func (s *Server) handleTrainingStatus(c *fiber.Ctx) error {
	id := c.Params("job_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trainings[id]
	if !ok {
		return &apiError{status: fiber.StatusNotFound, kind: "HTTPException", detail: fmt.Sprintf("Aucun entraînement trouvé avec l'ID %s", id)}
	}
	if !model.IsTerminal(t.status.Status) {
		s.advanceTraining(t)
	}
	return c.JSON(t.status)
}

// advanceTraining moves a run one step per status read, on the same
// schedule as analysis jobs. A finished run registers a new model version.
func (s *Server) advanceTraining(t *trainingRecord) {
	t.reads++
	steps := s.opts.Steps
	switch {
	case t.reads > steps:
		t.status.Progress = 100
		if s.opts.FailJobs {
			t.status.Status = model.StatusFailed
			t.status.LastLogs += "Échec de l'entraînement (code 1)\n" + s.opts.FailMessage + "\n"
			return
		}
		t.status.Status = model.StatusCompleted
		t.status.LastLogs += "Entraînement terminé avec succès\n"
		s.registerModelLocked(t)
	case t.reads <= steps/2:
		t.status.Status = model.TrainingInitializing
		t.status.Progress = 0
	default:
		t.status.Status = model.TrainingRunning
		t.status.Progress = 10 + float64(t.reads*80)/float64(steps+1)
		t.status.LastLogs += fmt.Sprintf("jeu %d/%d généré\n", min(t.reads, t.req.NumSets), t.req.NumSets)
	}
}

func (s *Server) registerModelLocked(t *trainingRecord) {
	m := model.DetectorModel{
		Version:   fmt.Sprintf("v%d", len(s.models)+1),
		CreatedAt: model.NewTimestamp(s.opts.Now()),
		Metrics:   map[string]float64{"precision": 0.93, "recall": 0.86, "f1": 0.89},
		Metadata: map[string]any{
			"description":     t.req.Description,
			"num_sets":        t.req.NumSets,
			"entries_per_set": t.req.EntriesPerSet,
			"training_job_id": t.status.JobID,
		},
	}
	if t.req.Activate {
		for i := range s.models {
			s.models[i].IsActive = false
		}
		m.IsActive = true
	}
	s.models = append(s.models, m)
}

// Models returns the registry in registration order.
func (s *Server) Models() []model.DetectorModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DetectorModel(nil), s.models...)
}

func (s *Server) handleGenerate(c *fiber.Ctx) error {
	req := model.GenerationRequest{Count: 1000, AnomalyRate: 0.05}
	if err := c.BodyParser(&req); err != nil {
		return badRequest("ValidationError", "corps de requête invalide")
	}
	if req.Count < 10 || req.Count > 10000 {
		return badRequest("ValidationError", "count doit être compris entre 10 et 10000")
	}
	if req.AnomalyRate < 0 || req.AnomalyRate > 1 {
		return badRequest("ValidationError", "anomaly_rate doit être compris entre 0 et 1")
	}

	now := s.opts.Now()
	id := uuid.NewString()
	anomalies := generatedAnomalies(int(math.Round(float64(req.Count)*req.AnomalyRate)), req.Count, now)
	params := map[string]any{"count": req.Count, "anomaly_rate": req.AnomalyRate}
	for k, v := range map[string]string{"start_date": req.StartDate, "end_date": req.EndDate, "company_name": req.CompanyName} {
		if v != "" {
			params[k] = v
		}
	}
	res := model.GenerationResults{
		Generation: model.Generation{
			GenerationID: id,
			Count:        req.Count,
			AnomalyCount: len(anomalies),
			CSVPath:      "data/generated/generated_" + id + ".csv",
			ResultPath:   "data/generated/results_" + id + ".json",
			DurationMS:   42.5,
			GeneratedAt:  now.Format("2006-01-02T15:04:05.000000"),
		},
		AnomalyRate: req.AnomalyRate,
		Params:      params,
		Anomalies:   anomalies,
	}

	s.mu.Lock()
	s.generations[id] = res
	s.mu.Unlock()
	return c.JSON(res.Generation)
}

func (s *Server) handleGenerationResults(c *fiber.Ctx) error {
	id := c.Params("generation_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.generations[id]
	if !ok {
		return &apiError{status: fiber.StatusNotFound, kind: "HTTPException", detail: fmt.Sprintf("Résultats non trouvés pour l'ID %s", id)}
	}
	return c.JSON(res)
}

func (s *Server) handleHealthDetail(c *fiber.Ctx) error {
	s.mu.Lock()
	active, hasActive := s.activeModelLocked()
	count := len(s.models)
	s.mu.Unlock()

	info := fiber.Map{"has_active_model": hasActive, "active_version": nil, "model_count": count}
	if hasActive {
		info["active_version"] = active.Version
	}
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"timestamp":   s.opts.Now().Format("2006-01-02T15:04:05.000000"),
		"version":     stubVersion,
		"environment": stubVersion,
		"model_info":  info,
		"disk_usage":  fiber.Map{},
	})
}

func (s *Server) handleReady(c *fiber.Ctx) error {
	s.mu.Lock()
	_, hasActive := s.activeModelLocked()
	s.mu.Unlock()

	status := "rules_only"
	if hasActive {
		status = "loaded"
	}
	return c.JSON(model.Readiness{Status: "ready", ModelStatus: status})
}
