package stubapi

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"auditctl/internal/model"
)

const (
	Prefix          = "/api/v1"
	DefaultAddr     = "127.0.0.1:8000"
	DefaultSteps    = 4
	maxUploadBytes  = 50 * 1024 * 1024
	defaultPageSize = 20
)

var allowedExtensions = map[string]bool{
	".txt":  true,
	".csv":  true,
	".fec":  true,
	".xls":  true,
	".xlsx": true,
}

type Options struct {
	// Steps is the number of status reads a job spends in pending and
	// processing before it finishes. Zero finishes on the first read.
	Steps int
	// FailJobs makes every job end in failed with FailMessage.
	FailJobs    bool
	FailMessage string
	Now         func() time.Time
}

type fileRecord struct {
	meta    model.UploadedFile
	entries int
}

type jobRecord struct {
	status model.JobStatus
	reads  int
}

type reportRecord struct {
	report model.Report
	body   []byte
}

// Server is an in-memory stand-in for the audit backend.
type Server struct {
	opts   Options
	app    *fiber.App
	logger zerolog.Logger

	mu          sync.Mutex
	files       map[string]*fileRecord
	order       []string
	jobs        map[string]*jobRecord
	reports     map[string]*reportRecord
	reportOrder []string
	models      []model.DetectorModel
	trainings   map[string]*trainingRecord
	generations map[string]model.GenerationResults
}

func New(opts Options) *Server {
	if opts.Steps < 0 {
		opts.Steps = 0
	}
	if strings.TrimSpace(opts.FailMessage) == "" {
		opts.FailMessage = "analysis engine rejected the file"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:        opts,
		logger:      log.With().Str("component", "stubapi").Logger(),
		files:       map[string]*fileRecord{},
		jobs:        map[string]*jobRecord{},
		reports:     map[string]*reportRecord{},
		models:      []model.DetectorModel{seedModel(opts.Now())},
		trainings:   map[string]*trainingRecord{},
		generations: map[string]model.GenerationResults{},
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "auditctl stub backend",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
		BodyLimit:             maxUploadBytes,
	})
	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}))
	s.routes()
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	if strings.TrimSpace(addr) == "" {
		addr = DefaultAddr
	}
	s.logger.Info().Str("addr", addr).Msg("stub backend listening")
	return s.app.Listen(addr)
}

func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) routes() {
	api := s.app.Group(Prefix)

	analysis := api.Group("/analysis")
	analysis.Post("/upload", s.handleUpload)
	analysis.Post("/start", s.handleStart)
	analysis.Get("/status/:job_id", s.handleStatus)
	analysis.Get("/results/:file_id", s.handleResults)
	analysis.Get("/files", s.handleListFiles)
	analysis.Delete("/files/:file_id", s.handleDeleteFile)

	reports := api.Group("/reports")
	reports.Post("/generate", s.handleGenerateReport)
	reports.Get("/status/:report_id", s.handleReportStatus)
	reports.Get("/download/:report_id", s.handleDownloadReport)
	reports.Get("/list", s.handleListReports)

	generation := api.Group("/generation")
	generation.Post("/generate", s.handleGenerate)
	generation.Get("/results/:generation_id", s.handleGenerationResults)

	models := api.Group("/models")
	models.Get("/list", s.handleListModels)
	models.Get("/active", s.handleActiveModel)
	models.Post("/activate", s.handleActivateModel)
	models.Post("/train", s.handleTrain)
	models.Get("/training-status/:job_id", s.handleTrainingStatus)

	health := api.Group("/healthz")
	health.Get("/live", func(c *fiber.Ctx) error {
		return c.JSON(model.Health{Status: "alive"})
	})
	health.Get("/health", s.handleHealthDetail)
	health.Get("/ready", s.handleReady)

	s.app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "route not found: "+c.Method()+" "+c.Path())
	})
}

// apiError renders as the backend's {error_id, error, detail} envelope.
type apiError struct {
	status int
	kind   string
	detail string
}

func (e *apiError) Error() string {
	return e.kind + ": " + e.detail
}

func notFound(resource, id string) error {
	return &apiError{status: fiber.StatusNotFound, kind: "ResourceNotFoundError", detail: fmt.Sprintf("%s %s introuvable", resource, id)}
}

func badRequest(kind, detail string) error {
	return &apiError{status: fiber.StatusBadRequest, kind: kind, detail: detail}
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	kind := "InternalServerError"
	detail := "Une erreur interne est survenue"

	var ae *apiError
	var fe *fiber.Error
	switch {
	case errors.As(err, &ae):
		status, kind, detail = ae.status, ae.kind, ae.detail
	case errors.As(err, &fe):
		status, kind, detail = fe.Code, "HTTPException", fe.Message
	}

	errorID := uuid.NewString()
	s.logger.Debug().Err(err).Str("error_id", errorID).Str("path", c.Path()).Int("status", status).Msg("request error")
	return c.Status(status).JSON(fiber.Map{
		"error_id": errorID,
		"error":    kind,
		"detail":   detail,
	})
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest("ValidationError", "champ 'file' manquant")
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExtensions[ext] {
		return badRequest("FileProcessingError", fmt.Sprintf("Fichier invalide: extension %q non supportée", ext))
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	id := uuid.NewString()
	meta := model.UploadedFile{
		FileID:          id,
		Filename:        fh.Filename,
		SizeBytes:       int64(len(data)),
		UploadTimestamp: model.NewTimestamp(s.opts.Now()),
		ContentType:     fh.Header.Get("Content-Type"),
		Status:          "uploaded",
		Message:         "Fichier uploadé avec succès",
	}

	s.mu.Lock()
	s.files[id] = &fileRecord{meta: meta, entries: countEntries(data)}
	s.order = append(s.order, id)
	s.mu.Unlock()

	return c.JSON(meta)
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	var req struct {
		FileID       string `json:"file_id"`
		AnalysisType string `json:"analysis_type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest("ValidationError", "corps de requête invalide")
	}
	if strings.TrimSpace(req.FileID) == "" {
		return badRequest("ValidationError", "file_id requis")
	}
	if req.AnalysisType != "" && !contains(model.AnalysisTypes, req.AnalysisType) {
		return badRequest("ValidationError", fmt.Sprintf("analysis_type %q invalide", req.AnalysisType))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[req.FileID]
	if !ok {
		return notFound("Fichier", req.FileID)
	}
	job := &jobRecord{status: model.JobStatus{
		JobID:     uuid.NewString(),
		FileID:    req.FileID,
		Status:    model.StatusPending,
		CreatedAt: model.NewTimestamp(s.opts.Now()),
	}}
	s.jobs[job.status.JobID] = job
	f.meta.Status = "processing"
	return c.JSON(job.status)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	id := c.Params("job_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return notFound("Tâche", id)
	}
	if !model.IsTerminal(job.status.Status) {
		s.advance(job)
	}
	return c.JSON(job.status)
}

func (s *Server) advance(job *jobRecord) {
	job.reads++
	now := model.NewTimestamp(s.opts.Now())
	steps := s.opts.Steps
	if job.reads > steps {
		job.status.Progress = 100
		job.status.CompletedAt = now
		if job.status.StartedAt == nil {
			job.status.StartedAt = now
		}
		if s.opts.FailJobs {
			job.status.Status = model.StatusFailed
			job.status.Error = s.opts.FailMessage
		} else {
			job.status.Status = model.StatusCompleted
		}
		if f, ok := s.files[job.status.FileID]; ok {
			f.meta.Status = job.status.Status
		}
		return
	}
	if job.reads <= steps/2 {
		job.status.Status = model.StatusPending
		job.status.Progress = 0
		return
	}
	job.status.Status = model.StatusProcessing
	if job.status.StartedAt == nil {
		job.status.StartedAt = now
	}
	job.status.Progress = float64(job.reads*100) / float64(steps+1)
}

func (s *Server) handleResults(c *fiber.Ctx) error {
	id := c.Params("file_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return notFound("Fichier", id)
	}
	if !s.completedLocked(id) {
		return notFound("Résultats pour le fichier", id)
	}
	anomalies := sampleAnomalies(f.entries, s.opts.Now())
	return c.JSON(fiber.Map{
		"file_id":            id,
		"filename":           f.meta.Filename,
		"total_entries":      f.entries,
		"anomaly_count":      len(anomalies),
		"anomalies":          anomalies,
		"analysis_timestamp": model.NewTimestamp(s.opts.Now()),
		"processing_time_ms": 1250,
	})
}

func (s *Server) completedLocked(fileID string) bool {
	for _, j := range s.jobs {
		if j.status.FileID == fileID && j.status.Status == model.StatusCompleted {
			return true
		}
	}
	return false
}

func (s *Server) handleListFiles(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	size := c.QueryInt("page_size", defaultPageSize)
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.UploadedFile{}
	start := (page - 1) * size
	for i := start; i < len(s.order) && i < start+size; i++ {
		out = append(out, s.files[s.order[i]].meta)
	}
	return c.JSON(out)
}

func (s *Server) handleDeleteFile(c *fiber.Ctx) error {
	id := c.Params("file_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return notFound("Fichier", id)
	}
	delete(s.files, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for jobID, j := range s.jobs {
		if j.status.FileID == id {
			delete(s.jobs, jobID)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleGenerateReport(c *fiber.Ctx) error {
	var req model.ReportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("ValidationError", "corps de requête invalide")
	}
	if req.ReportType == "" {
		req.ReportType = model.ReportSummary
	}
	if req.Format == "" {
		req.Format = model.FormatPDF
	}
	if !contains(model.ReportTypes, req.ReportType) {
		return badRequest("ValidationError", fmt.Sprintf("report_type %q invalide", req.ReportType))
	}
	if !contains(model.ReportFormats, req.Format) {
		return badRequest("ValidationError", fmt.Sprintf("format %q invalide", req.Format))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[req.FileID]
	if !ok {
		return notFound("Fichier", req.FileID)
	}

	now := s.opts.Now()
	id := uuid.NewString()
	body, err := reportBody(id, f, req, sampleAnomalies(f.entries, now))
	if err != nil {
		return err
	}
	rep := model.Report{
		ReportID:   id,
		FileID:     req.FileID,
		ReportType: req.ReportType,
		Format:     req.Format,
		URL:        Prefix + "/reports/download/" + id,
		CreatedAt:  model.NewTimestamp(now),
		ExpiresAt:  model.NewTimestamp(now.Add(24 * time.Hour)),
		SizeBytes:  int64(len(body)),
	}
	s.reports[id] = &reportRecord{report: rep, body: body}
	s.reportOrder = append(s.reportOrder, id)
	return c.JSON(rep)
}

func (s *Server) handleReportStatus(c *fiber.Ctx) error {
	id := c.Params("report_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return notFound("Rapport", id)
	}
	return c.JSON(model.ReportStatus{
		ReportID:    id,
		Status:      model.StatusCompleted,
		CreatedAt:   r.report.CreatedAt,
		CompletedAt: r.report.CreatedAt,
		FileSize:    int64(len(r.body)),
	})
}

func (s *Server) handleDownloadReport(c *fiber.Ctx) error {
	id := c.Params("report_id")

	s.mu.Lock()
	r, ok := s.reports[id]
	s.mu.Unlock()
	if !ok {
		return notFound("Rapport", id)
	}
	filename := fmt.Sprintf("report_%s_%s.json", id, r.report.ReportType)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(r.body)
}

// handleListReports lists reports newest first, optionally for one file.
func (s *Server) handleListReports(c *fiber.Ctx) error {
	fileID := c.Query("file_id")
	page := c.QueryInt("page", 1)
	size := c.QueryInt("page_size", defaultPageSize)
	if page < 1 {
		return badRequest("ValidationError", "page doit être >= 1")
	}
	if size < 1 || size > 100 {
		return badRequest("ValidationError", "page_size doit être compris entre 1 et 100")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []model.Report{}
	for i := len(s.reportOrder) - 1; i >= 0; i-- {
		rep := s.reports[s.reportOrder[i]].report
		if fileID != "" && rep.FileID != fileID {
			continue
		}
		matched = append(matched, rep)
	}
	start := (page - 1) * size
	if start >= len(matched) {
		return c.JSON([]model.Report{})
	}
	return c.JSON(matched[start:min(start+size, len(matched))])
}

// Files returns the stored uploads in upload order.
func (s *Server) Files() []model.UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.UploadedFile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.files[id].meta)
	}
	return out
}

// JobIDs returns known job ids, sorted.
func (s *Server) JobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func countEntries(data []byte) int {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lines := 0
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			lines++
		}
	}
	// header row
	if lines > 0 {
		lines--
	}
	return lines
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
