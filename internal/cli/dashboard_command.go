package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"auditctl/internal/api"
	"auditctl/internal/model"
	"auditctl/internal/poller"
	"auditctl/internal/settings"
)

const dashboardPageSize = 100

type dashMode int

const (
	dashModeBrowse dashMode = iota
	dashModeUpload
	dashModeDeleteConfirm
	dashModeResults
)

// dashboardBackend is the part of api.Client the dashboard drives.
type dashboardBackend interface {
	poller.Source
	reportStatusSource
	ListFiles(ctx context.Context, page, pageSize int) ([]model.UploadedFile, error)
	Upload(ctx context.Context, path, description string) (model.UploadedFile, error)
	StartAnalysis(ctx context.Context, fileID, analysisType string) (model.JobStatus, error)
	DeleteFile(ctx context.Context, fileID string) error
	GenerateReport(ctx context.Context, req model.ReportRequest) (model.Report, error)
	DownloadReport(ctx context.Context, rawURL, dest string) (int64, error)
}

// jobView is what the details panel shows for the selected file's job.
type jobView struct {
	target   poller.Target
	phase    poller.Phase
	progress float64
	message  string
	retry    *poller.Retry
}

type dashboardModel struct {
	ctx     context.Context
	cancel  context.CancelFunc
	backend dashboardBackend
	poller  *poller.Poller
	events  chan poller.Event
	cat     poller.Catalog
	theme   dashTheme
	compact bool
	apiURL  string

	files   []model.UploadedFile
	loaded  bool
	cursor  int
	width   int
	height  int
	mode    dashMode
	input   textinput.Model
	spinner spinner.Model
	bar     progress.Model

	jobs    map[string]string
	results map[string]*model.AnalysisResults
	view    jobView
	scroll  int
	busy    string

	confirmDeleteID string
	statusMessage   string
	fatalErr        error
}

type dashFilesMsg struct {
	files []model.UploadedFile
	err   error
}

type dashUploadedMsg struct {
	file model.UploadedFile
	err  error
}

type dashStartedMsg struct {
	fileID string
	job    model.JobStatus
	err    error
}

type dashResultsMsg struct {
	fileID  string
	results model.AnalysisResults
	err     error
}

type dashDeletedMsg struct {
	fileID string
	err    error
}

type dashReportMsg struct {
	path  string
	bytes int64
	err   error
}

type dashPollMsg struct {
	ev poller.Event
}

// chanObserver hands poller events to the bubbletea loop.
type chanObserver struct {
	ch   chan<- poller.Event
	done <-chan struct{}
}

func (o chanObserver) Handle(ev poller.Event) {
	select {
	case o.ch <- ev:
	case <-o.done:
	}
}

func runDashboard(args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	conn := addConnFlags(fs)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("dashboard requires an interactive terminal (TTY)")
	}
	sess, err := conn.open()
	if err != nil {
		return err
	}

	m, err := newDashboardModel(context.Background(), sess.client, sess.eff, poller.TimerScheduler{})
	if err != nil {
		return err
	}
	defer m.shutdown()

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := finalModel.(dashboardModel); ok && fm.fatalErr != nil {
		return fm.fatalErr
	}
	return nil
}

func newDashboardModel(parent context.Context, backend dashboardBackend, eff settings.Effective, sched poller.Scheduler) (dashboardModel, error) {
	prefs := eff.Preferences
	ctx, cancel := context.WithCancel(parent)
	events := make(chan poller.Event, 32)
	cat := poller.CatalogFor(prefs.Language)
	pl, err := poller.New(poller.Config{
		Source:         backend,
		Scheduler:      sched,
		Observer:       chanObserver{ch: events, done: ctx.Done()},
		Catalog:        cat,
		RequestTimeout: eff.Timeout(),
	})
	if err != nil {
		cancel()
		return dashboardModel{}, err
	}

	in := textinput.New()
	in.Placeholder = "path/to/FEC2023.txt"
	in.CharLimit = 1024
	in.Width = 60

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))

	return dashboardModel{
		ctx:     ctx,
		cancel:  cancel,
		backend: backend,
		poller:  pl,
		events:  events,
		cat:     cat,
		theme:   newDashTheme(prefs.DarkMode),
		compact: prefs.Layout == settings.LayoutCompact,
		apiURL:  prefs.APIURL,
		mode:    dashModeBrowse,
		input:   in,
		spinner: sp,
		bar:     bar,
		jobs:    map[string]string{},
		results: map[string]*model.AnalysisResults{},
		view:    jobView{phase: poller.PhaseIdle},
	}, nil
}

func (m dashboardModel) shutdown() {
	m.poller.Reset()
	m.cancel()
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.loadFilesCmd(), m.waitForPollEvent(), m.spinner.Tick)
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = clampInt(m.width/2-8, 10, 60)
		m.input.Width = clampInt(m.width-12, 20, 120)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case dashFilesMsg:
		m.busy = ""
		if msg.err != nil {
			if !m.loaded {
				m.fatalErr = msg.err
				return m, tea.Quit
			}
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.loaded = true
		prev := m.selectedFileID()
		m.files = msg.files
		m.cursor = clampInt(m.cursor, 0, maxInt(len(m.files)-1, 0))
		if prev != m.selectedFileID() {
			return m.switchView()
		}
		return m, nil
	case dashUploadedMsg:
		m.busy = ""
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = fmt.Sprintf("uploaded %s (%s)", msg.file.Filename, formatBytesIEC(msg.file.SizeBytes))
		m.files = append(m.files, msg.file)
		m.cursor = len(m.files) - 1
		return m.switchView()
	case dashStartedMsg:
		m.busy = ""
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.jobs[msg.fileID] = msg.job.JobID
		delete(m.results, msg.fileID)
		m.statusMessage = "analysis started: job " + shortID(msg.job.JobID)
		if msg.fileID == m.selectedFileID() {
			m.watch(msg.fileID, msg.job.JobID)
		}
		return m, nil
	case dashResultsMsg:
		m.busy = ""
		if msg.err != nil {
			if errors.Is(msg.err, api.ErrNotFound) {
				m.statusMessage = "no results yet for this file (press a to analyse)"
			} else {
				m.statusMessage = "error: " + msg.err.Error()
			}
			return m, nil
		}
		res := msg.results
		m.results[msg.fileID] = &res
		if msg.fileID == m.selectedFileID() {
			m.mode = dashModeResults
			m.scroll = 0
		}
		return m, nil
	case dashDeletedMsg:
		m.busy = ""
		m.mode = dashModeBrowse
		m.confirmDeleteID = ""
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		delete(m.jobs, msg.fileID)
		delete(m.results, msg.fileID)
		m.statusMessage = "deleted " + msg.fileID
		return m, m.loadFilesCmd()
	case dashReportMsg:
		m.busy = ""
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = fmt.Sprintf("report saved: %s (%s)", msg.path, formatBytesIEC(msg.bytes))
		return m, nil
	case dashPollMsg:
		m.applyPollEvent(msg.ev)
		return m, m.waitForPollEvent()
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch m.mode {
	case dashModeUpload:
		return m.updateUpload(keyMsg)
	case dashModeDeleteConfirm:
		return m.updateDeleteConfirm(keyMsg)
	case dashModeResults:
		return m.updateResults(keyMsg)
	default:
		return m.updateBrowse(keyMsg)
	}
}

func (m dashboardModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.shutdown()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			return m.switchView()
		}
	case "down", "j":
		if m.cursor < len(m.files)-1 {
			m.cursor++
			return m.switchView()
		}
	case "r":
		m.statusMessage = "refreshing..."
		return m, m.loadFilesCmd()
	case "u":
		m.mode = dashModeUpload
		m.input.Reset()
		return m, m.input.Focus()
	case "a":
		return m.startAnalysis()
	case "R":
		if m.view.retry == nil || m.view.retry.FileID != m.selectedFileID() {
			m.statusMessage = "nothing to retry"
			return m, nil
		}
		return m.retryFailed()
	case "enter":
		id := m.selectedFileID()
		if id == "" {
			return m, nil
		}
		if _, ok := m.results[id]; ok {
			m.mode = dashModeResults
			m.scroll = 0
			return m, nil
		}
		m.busy = "loading results"
		return m, m.resultsCmd(id)
	case "d":
		id := m.selectedFileID()
		if id == "" {
			return m, nil
		}
		m.mode = dashModeDeleteConfirm
		m.confirmDeleteID = id
	case "g":
		id := m.selectedFileID()
		if id == "" {
			return m, nil
		}
		m.busy = "generating report"
		return m, m.reportCmd(id)
	}
	return m, nil
}

func (m dashboardModel) updateUpload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.shutdown()
		return m, tea.Quit
	case "esc":
		m.mode = dashModeBrowse
		m.input.Blur()
		return m, nil
	case "enter":
		path := strings.TrimSpace(m.input.Value())
		if path == "" {
			m.statusMessage = "error: a file path is required"
			return m, nil
		}
		m.mode = dashModeBrowse
		m.input.Blur()
		m.busy = "uploading " + path
		return m, m.uploadCmd(path)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m dashboardModel) updateDeleteConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.shutdown()
		return m, tea.Quit
	case "y", "enter":
		id := m.confirmDeleteID
		if id == "" {
			m.mode = dashModeBrowse
			return m, nil
		}
		if m.view.target.FileID == id {
			m.poller.Reset()
			m.view = jobView{phase: poller.PhaseIdle}
		}
		m.busy = "deleting"
		return m, m.deleteCmd(id)
	case "n", "esc":
		m.mode = dashModeBrowse
		m.confirmDeleteID = ""
	}
	return m, nil
}

func (m dashboardModel) updateResults(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.shutdown()
		return m, tea.Quit
	case "esc", "enter", "backspace":
		m.mode = dashModeBrowse
	case "up", "k":
		if m.scroll > 0 {
			m.scroll--
		}
	case "down", "j":
		if res := m.results[m.selectedFileID()]; res != nil && m.scroll < len(res.Anomalies)-1 {
			m.scroll++
		}
	case "g":
		if id := m.selectedFileID(); id != "" {
			m.busy = "generating report"
			return m, m.reportCmd(id)
		}
	}
	return m, nil
}

// switchView resets the poller before the newly selected file renders and
// resumes polling if that file has a job in flight.
func (m dashboardModel) switchView() (tea.Model, tea.Cmd) {
	m.poller.Reset()
	m.view = jobView{phase: poller.PhaseIdle}
	m.scroll = 0
	id := m.selectedFileID()
	if jobID, ok := m.jobs[id]; ok {
		if _, done := m.results[id]; !done {
			m.watch(id, jobID)
		}
	}
	return m, nil
}

func (m *dashboardModel) watch(fileID, jobID string) {
	target := poller.Target{JobID: jobID, FileID: fileID}
	m.view = jobView{target: target, phase: poller.PhasePending}
	if err := m.poller.Poll(m.ctx, target); err != nil {
		m.view.phase = poller.PhaseIdle
		m.statusMessage = "error: " + err.Error()
	}
}

func (m dashboardModel) startAnalysis() (tea.Model, tea.Cmd) {
	id := m.selectedFileID()
	if id == "" {
		m.statusMessage = "no file selected (press u to upload)"
		return m, nil
	}
	if m.view.target.FileID == id && m.view.phase.Polling() {
		m.statusMessage = "analysis already running"
		return m, nil
	}
	m.poller.Reset()
	m.view = jobView{phase: poller.PhaseIdle}
	m.busy = "starting analysis"
	return m, m.startCmd(id, model.AnalysisStandard)
}

// applyPollEvent drops events from any poll other than the current one,
// including an earlier poll of the same job.
// retryFailed puts the selected file back in its pre-analysis state. The
// next analysis is started with a.
func (m dashboardModel) retryFailed() (tea.Model, tea.Cmd) {
	id := m.selectedFileID()
	m.poller.Reset()
	delete(m.jobs, id)
	delete(m.results, id)
	m.view = jobView{phase: poller.PhaseIdle}
	m.statusMessage = "ready to analyse again (press a)"
	return m, nil
}

func (m *dashboardModel) applyPollEvent(ev poller.Event) {
	if ev.Generation != m.poller.State().Generation {
		return
	}
	if ev.JobID != m.view.target.JobID || ev.FileID != m.view.target.FileID {
		return
	}
	m.view.phase = ev.Phase
	m.view.message = ev.Message
	switch ev.Kind {
	case poller.EventProgress:
		m.view.progress = ev.Progress
	case poller.EventCompleted:
		m.view.progress = 100
		m.view.retry = nil
		if ev.Results != nil {
			m.results[ev.FileID] = ev.Results
		}
		m.statusMessage = m.cat.Completed
	case poller.EventFailed:
		m.view.retry = ev.Retry
	}
}

func (m dashboardModel) selectedFileID() string {
	if m.cursor < 0 || m.cursor >= len(m.files) {
		return ""
	}
	return m.files[m.cursor].FileID
}

func (m dashboardModel) selectedFile() (model.UploadedFile, bool) {
	if m.cursor < 0 || m.cursor >= len(m.files) {
		return model.UploadedFile{}, false
	}
	return m.files[m.cursor], true
}

func (m dashboardModel) waitForPollEvent() tea.Cmd {
	events, done := m.events, m.ctx.Done()
	return func() tea.Msg {
		select {
		case ev := <-events:
			return dashPollMsg{ev: ev}
		case <-done:
			return nil
		}
	}
}

func (m dashboardModel) loadFilesCmd() tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		files, err := backend.ListFiles(ctx, 1, dashboardPageSize)
		return dashFilesMsg{files: files, err: err}
	}
}

func (m dashboardModel) uploadCmd(path string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		f, err := backend.Upload(ctx, path, "")
		return dashUploadedMsg{file: f, err: err}
	}
}

func (m dashboardModel) startCmd(fileID, analysisType string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		job, err := backend.StartAnalysis(ctx, fileID, analysisType)
		return dashStartedMsg{fileID: fileID, job: job, err: err}
	}
}

func (m dashboardModel) resultsCmd(fileID string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		res, err := backend.Results(ctx, fileID)
		return dashResultsMsg{fileID: fileID, results: res, err: err}
	}
}

func (m dashboardModel) deleteCmd(fileID string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		return dashDeletedMsg{fileID: fileID, err: backend.DeleteFile(ctx, fileID)}
	}
}

func (m dashboardModel) reportCmd(fileID string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		rep, err := backend.GenerateReport(ctx, model.ReportRequest{
			FileID:                fileID,
			ReportType:            model.ReportSummary,
			Format:                model.FormatPDF,
			IncludeVisualizations: true,
		})
		if err != nil {
			return dashReportMsg{err: err}
		}
		if _, err := waitForReport(ctx, backend, rep.ReportID); err != nil {
			return dashReportMsg{err: err}
		}
		dest := defaultReportName(rep)
		n, err := backend.DownloadReport(ctx, rep.URL, dest)
		return dashReportMsg{path: dest, bytes: n, err: err}
	}
}
