package cli

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"auditctl/internal/api"
	"auditctl/internal/model"
	"auditctl/internal/poller"
	"auditctl/internal/settings"
)

type manualTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) poller.Timer {
	t := &manualTimer{f: f}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

func (s *manualScheduler) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// fireNext runs the oldest armed timer outside the scheduler lock.
func (s *manualScheduler) fireNext() bool {
	s.mu.Lock()
	var next *manualTimer
	for _, t := range s.timers {
		t.mu.Lock()
		armed := !t.stopped && !t.fired
		if armed {
			t.fired = true
		}
		t.mu.Unlock()
		if armed {
			next = t
			break
		}
	}
	s.mu.Unlock()
	if next == nil {
		return false
	}
	next.f()
	return true
}

type fakeBackend struct {
	mu       sync.Mutex
	files    []model.UploadedFile
	statuses map[string]model.JobStatus
	results  map[string]model.AnalysisResults
	listErr  error
	started  []string
	deleted  []string
	uploaded []string
	checks   int
}

func newFakeBackend(files ...model.UploadedFile) *fakeBackend {
	return &fakeBackend{
		files:    files,
		statuses: map[string]model.JobStatus{},
		results:  map[string]model.AnalysisResults{},
	}
}

func (b *fakeBackend) JobStatus(_ context.Context, jobID string) (model.JobStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checks++
	st, ok := b.statuses[jobID]
	if !ok {
		return model.JobStatus{}, &api.Error{Op: "job status", StatusCode: http.StatusNotFound}
	}
	return st, nil
}

func (b *fakeBackend) Results(_ context.Context, fileID string) (model.AnalysisResults, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.results[fileID]
	if !ok {
		return model.AnalysisResults{}, &api.Error{Op: "results", StatusCode: http.StatusNotFound}
	}
	return res, nil
}

func (b *fakeBackend) ReportStatus(_ context.Context, reportID string) (model.ReportStatus, error) {
	return model.ReportStatus{ReportID: reportID, Status: model.StatusCompleted}, nil
}

func (b *fakeBackend) ListFiles(context.Context, int, int) ([]model.UploadedFile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]model.UploadedFile(nil), b.files...), nil
}

func (b *fakeBackend) Upload(_ context.Context, path, _ string) (model.UploadedFile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploaded = append(b.uploaded, path)
	f := model.UploadedFile{FileID: "f-new", Filename: path, SizeBytes: 10}
	b.files = append(b.files, f)
	return f, nil
}

func (b *fakeBackend) StartAnalysis(_ context.Context, fileID, _ string) (model.JobStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, fileID)
	return model.JobStatus{JobID: "job-" + fileID, FileID: fileID, Status: model.StatusPending}, nil
}

func (b *fakeBackend) DeleteFile(_ context.Context, fileID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, fileID)
	return nil
}

func (b *fakeBackend) GenerateReport(_ context.Context, req model.ReportRequest) (model.Report, error) {
	return model.Report{ReportID: "r1", FileID: req.FileID, Format: req.Format, URL: "/reports/download/r1"}, nil
}

func (b *fakeBackend) DownloadReport(context.Context, string, string) (int64, error) {
	return 0, errors.New("download disabled in tests")
}

func (b *fakeBackend) setStatus(jobID, status string, progress float64, errText string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[jobID] = model.JobStatus{JobID: jobID, Status: status, Progress: progress, Error: errText}
}

func testFiles() []model.UploadedFile {
	return []model.UploadedFile{
		{FileID: "f1", Filename: "FEC2023.txt", SizeBytes: 2048},
		{FileID: "f2", Filename: "ledger.csv", SizeBytes: 512},
	}
}

func newTestDashboard(t *testing.T, backend *fakeBackend, lang string) (dashboardModel, *manualScheduler) {
	t.Helper()
	prefs := settings.Defaults()
	prefs.Language = lang
	sched := &manualScheduler{}
	m, err := newDashboardModel(context.Background(), backend, settings.Effective{Preferences: prefs}, sched)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.shutdown)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	next, _ = next.(dashboardModel).Update(dashFilesMsg{files: append([]model.UploadedFile(nil), backend.files...)})
	return next.(dashboardModel), sched
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m dashboardModel, keys ...string) (dashboardModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(key(k))
		m = next.(dashboardModel)
	}
	return m, cmd
}

func nextEvent(t *testing.T, m dashboardModel) poller.Event {
	t.Helper()
	select {
	case ev := <-m.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no poller event delivered")
		return poller.Event{}
	}
}

func deliver(t *testing.T, m dashboardModel, msg tea.Msg) dashboardModel {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(dashboardModel)
}

func TestDashboardInitialLoadErrorQuits(t *testing.T) {
	backend := newFakeBackend()
	sched := &manualScheduler{}
	m, err := newDashboardModel(context.Background(), backend, settings.Effective{Preferences: settings.Defaults()}, sched)
	if err != nil {
		t.Fatal(err)
	}
	defer m.shutdown()

	next, cmd := m.Update(dashFilesMsg{err: errors.New("connection refused")})
	if next.(dashboardModel).fatalErr == nil {
		t.Fatal("expected fatal error on first load failure")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.Quit")
	}
}

func TestDashboardAnalyseCompletesAndStoresResults(t *testing.T) {
	backend := newFakeBackend(testFiles()...)
	backend.results["f1"] = model.AnalysisResults{FileID: "f1", TotalEntries: 10, AnomalyCount: 1, Anomalies: []model.Anomaly{{ID: "a1", Type: "duplicate_entry", ConfidenceScore: 0.9, LineNumbers: []int{2}}}}
	m, sched := newTestDashboard(t, backend, "en")

	m, cmd := press(t, m, "a")
	if cmd == nil || m.busy == "" {
		t.Fatal("expected start command")
	}
	m = deliver(t, m, cmd())
	if m.view.target.JobID != "job-f1" || m.view.phase != poller.PhasePending {
		t.Fatalf("expected job-f1 to be watched, got %+v", m.view)
	}

	backend.setStatus("job-f1", model.StatusProcessing, 40, "")
	if !sched.fireNext() {
		t.Fatal("expected first poll to be armed")
	}
	m = deliver(t, m, dashPollMsg{ev: nextEvent(t, m)})
	if m.view.phase != poller.PhaseProcessing || m.view.progress != 40 {
		t.Fatalf("expected processing at 40%%, got %s %.0f", m.view.phase, m.view.progress)
	}
	if !strings.Contains(m.View(), "in progress") {
		t.Fatalf("expected progress message in view:\n%s", m.View())
	}

	backend.setStatus("job-f1", model.StatusCompleted, 100, "")
	sched.fireNext()
	m = deliver(t, m, dashPollMsg{ev: nextEvent(t, m)})
	if m.view.phase != poller.PhaseCompleted {
		t.Fatalf("expected completed, got %s", m.view.phase)
	}
	if res := m.results["f1"]; res == nil || res.AnomalyCount != 1 {
		t.Fatalf("expected stored results, got %+v", res)
	}
	if sched.active() != 0 {
		t.Fatalf("expected no timers after completion, got %d", sched.active())
	}

	m, _ = press(t, m, "enter")
	if m.mode != dashModeResults {
		t.Fatalf("expected results mode, got %v", m.mode)
	}
	if !strings.Contains(m.View(), "duplicate_entry") {
		t.Fatal("expected anomaly in results view")
	}
	m, _ = press(t, m, "esc")
	if m.mode != dashModeBrowse {
		t.Fatal("expected esc to return to browse")
	}
}

func TestDashboardCursorMoveResetsPoller(t *testing.T) {
	backend := newFakeBackend(testFiles()...)
	m, sched := newTestDashboard(t, backend, "en")

	m = deliver(t, m, dashStartedMsg{fileID: "f1", job: model.JobStatus{JobID: "job-f1"}})
	backend.setStatus("job-f1", model.StatusPending, 0, "")
	sched.fireNext()
	m = deliver(t, m, dashPollMsg{ev: nextEvent(t, m)})
	if st := m.poller.State(); st.Attempts != 1 || !st.TimerPending {
		t.Fatalf("expected one attempt and an armed timer, got %+v", st)
	}

	m, _ = press(t, m, "down")
	st := m.poller.State()
	if st.Attempts != 0 || st.Errors != 0 || st.TimerPending || st.Phase != poller.PhaseIdle {
		t.Fatalf("expected reset poller after cursor move, got %+v", st)
	}
	if sched.active() != 0 {
		t.Fatalf("expected zero armed timers, got %d", sched.active())
	}
	if m.view.phase != poller.PhaseIdle {
		t.Fatal("expected idle view for a file without job")
	}

	checks := backend.checks
	if sched.fireNext() {
		t.Fatal("no timer should remain for the old view")
	}
	if backend.checks != checks {
		t.Fatal("old view must not issue status requests")
	}

	m, _ = press(t, m, "up")
	if m.view.target.JobID != "job-f1" {
		t.Fatal("expected polling to resume for f1")
	}
	if st := m.poller.State(); st.Attempts != 0 || !st.TimerPending {
		t.Fatalf("expected fresh counters and an armed timer, got %+v", st)
	}
}

func TestDashboardIgnoresEventsForOtherJobs(t *testing.T) {
	backend := newFakeBackend(testFiles()...)
	m, _ := newTestDashboard(t, backend, "en")
	m = deliver(t, m, dashStartedMsg{fileID: "f1", job: model.JobStatus{JobID: "job-f1"}})

	m = deliver(t, m, dashPollMsg{ev: poller.Event{Kind: poller.EventFailed, JobID: "job-old", FileID: "f1", Phase: poller.PhaseFailed, Message: "stale"}})
	if m.view.phase != poller.PhasePending || m.view.message == "stale" {
		t.Fatalf("stale event changed the view: %+v", m.view)
	}
}

func TestDashboardDropsQueuedEventAfterReselect(t *testing.T) {
	backend := newFakeBackend(testFiles()...)
	m, sched := newTestDashboard(t, backend, "en")
	m = deliver(t, m, dashStartedMsg{fileID: "f1", job: model.JobStatus{JobID: "job-f1"}})

	backend.setStatus("job-f1", model.StatusProcessing, 80, "")
	sched.fireNext()
	queued := nextEvent(t, m)

	m, _ = press(t, m, "down", "up")
	if m.view.target.JobID != "job-f1" || m.view.phase != poller.PhasePending {
		t.Fatalf("expected a fresh pending view for job-f1, got %+v", m.view)
	}

	m = deliver(t, m, dashPollMsg{ev: queued})
	if m.view.phase != poller.PhasePending || m.view.progress != 0 {
		t.Fatalf("event from the previous poll reached the view: phase=%s progress=%.0f", m.view.phase, m.view.progress)
	}
	if st := m.poller.State(); st.Attempts != 0 || st.Phase != poller.PhasePending {
		t.Fatalf("poller state changed: %+v", st)
	}
}

func TestDashboardFailureOffersRetry(t *testing.T) {
	backend := newFakeBackend(testFiles()...)
	m, sched := newTestDashboard(t, backend, "fr")

	m, _ = press(t, m, "R")
	if m.statusMessage != "nothing to retry" {
		t.Fatalf("expected no retry before failure, got %q", m.statusMessage)
	}

	m = deliver(t, m, dashStartedMsg{fileID: "f1", job: model.JobStatus{JobID: "job-f1"}})
	backend.setStatus("job-f1", model.StatusFailed, 0, "colonnes manquantes")
	sched.fireNext()
	m = deliver(t, m, dashPollMsg{ev: nextEvent(t, m)})
	if m.view.retry == nil {
		t.Fatal("expected retry control after failure")
	}
	if !strings.Contains(m.view.message, "colonnes manquantes") {
		t.Fatalf("expected backend error in message, got %q", m.view.message)
	}
	if !strings.Contains(m.View(), "Relancer l'analyse") {
		t.Fatal("expected French retry label in view")
	}

	m, cmd := press(t, m, "R")
	if cmd != nil || len(backend.started) != 0 {
		t.Fatalf("retry must not start an analysis by itself, started=%v", backend.started)
	}
	if m.view.phase != poller.PhaseIdle || m.view.retry != nil {
		t.Fatalf("expected pre-analysis view after retry, got %+v", m.view)
	}
	if _, ok := m.jobs["f1"]; ok {
		t.Fatal("expected failed job to be forgotten")
	}
	if !strings.Contains(m.View(), "Press a to start an analysis.") {
		t.Fatalf("expected pre-analysis prompt:\n%s", m.View())
	}
	m, _ = press(t, m, "R")
	if m.statusMessage != "nothing to retry" {
		t.Fatalf("expected a single retry control, got %q", m.statusMessage)
	}

	_, cmd = press(t, m, "a")
	if cmd == nil {
		t.Fatal("expected a to start the analysis again")
	}
	if _, ok := cmd().(dashStartedMsg); !ok {
		t.Fatal("expected dashStartedMsg")
	}
	if len(backend.started) != 1 || backend.started[0] != "f1" {
		t.Fatalf("expected one restart for f1, got %v", backend.started)
	}
}

func TestDashboardDeleteConfirm(t *testing.T) {
	backend := newFakeBackend(testFiles()...)
	m, _ := newTestDashboard(t, backend, "en")

	m, _ = press(t, m, "d")
	if m.mode != dashModeDeleteConfirm || m.confirmDeleteID != "f1" {
		t.Fatalf("expected delete confirm for f1, got mode=%v id=%q", m.mode, m.confirmDeleteID)
	}
	if !strings.Contains(m.View(), "FEC2023.txt") {
		t.Fatal("expected filename in confirm dialog")
	}
	m, _ = press(t, m, "n")
	if m.mode != dashModeBrowse {
		t.Fatal("expected n to cancel")
	}

	m, cmd := press(t, m, "d", "y")
	if cmd == nil {
		t.Fatal("expected delete command")
	}
	msg := cmd()
	if len(backend.deleted) != 1 || backend.deleted[0] != "f1" {
		t.Fatalf("expected f1 deleted, got %v", backend.deleted)
	}
	m = deliver(t, m, msg)
	if m.mode != dashModeBrowse || m.statusMessage != "deleted f1" {
		t.Fatalf("unexpected state after delete: mode=%v status=%q", m.mode, m.statusMessage)
	}
}

func TestDashboardUploadInput(t *testing.T) {
	backend := newFakeBackend(testFiles()...)
	m, _ := newTestDashboard(t, backend, "en")

	m, _ = press(t, m, "u")
	if m.mode != dashModeUpload {
		t.Fatal("expected upload mode")
	}
	m, cmd := press(t, m, "enter")
	if cmd != nil || !strings.HasPrefix(m.statusMessage, "error:") {
		t.Fatal("expected empty path to be rejected")
	}

	m, _ = press(t, m, "new.txt")
	m, cmd = press(t, m, "enter")
	if cmd == nil || m.mode != dashModeBrowse {
		t.Fatal("expected upload command")
	}
	m = deliver(t, m, cmd())
	if len(backend.uploaded) != 1 || backend.uploaded[0] != "new.txt" {
		t.Fatalf("expected upload of new.txt, got %v", backend.uploaded)
	}
	if m.selectedFileID() != "f-new" {
		t.Fatalf("expected new file selected, got %q", m.selectedFileID())
	}
}

func TestDashboardResultsNotReady(t *testing.T) {
	backend := newFakeBackend(testFiles()...)
	m, _ := newTestDashboard(t, backend, "en")

	m, cmd := press(t, m, "enter")
	if cmd == nil {
		t.Fatal("expected results fetch")
	}
	m = deliver(t, m, cmd())
	if m.mode != dashModeBrowse || !strings.Contains(m.statusMessage, "no results yet") {
		t.Fatalf("unexpected state: mode=%v status=%q", m.mode, m.statusMessage)
	}
}

func TestDashboardLayouts(t *testing.T) {
	backend := newFakeBackend(testFiles()...)
	m, _ := newTestDashboard(t, backend, "en")
	wide := m.View()
	if !strings.Contains(wide, "FEC2023.txt") || !strings.Contains(wide, "File Details") {
		t.Fatalf("unexpected wide view:\n%s", wide)
	}

	m.compact = true
	compact := m.View()
	if !strings.Contains(compact, "ledger.csv") {
		t.Fatalf("unexpected compact view:\n%s", compact)
	}
	if wide == compact {
		t.Fatal("expected compact layout to differ from wide")
	}

	light := newDashTheme(false)
	if light.Title.GetForeground() == newDashTheme(true).Title.GetForeground() {
		t.Fatal("expected light and dark themes to differ")
	}
}
