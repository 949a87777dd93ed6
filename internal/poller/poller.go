package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"auditctl/internal/model"
)

var (
	ErrEmptyJobID       = errors.New("job id is required")
	ErrJobMismatch      = errors.New("status response is for another job")
	ErrTooManyAttempts  = errors.New("too many status checks")
	ErrTooManyErrors    = errors.New("aborted after repeated errors")
	ErrJobFailed        = errors.New("job failed")
	ErrResultsFetch     = errors.New("results fetch failed")
	ErrMissingSource    = errors.New("poller source is required")
	ErrMissingScheduler = errors.New("poller scheduler is required")
)

// StatusSource answers status checks. A source that also implements
// ResultsSource gets exactly one results fetch when its job completes.
type StatusSource interface {
	JobStatus(ctx context.Context, jobID string) (model.JobStatus, error)
}

type ResultsSource interface {
	Results(ctx context.Context, fileID string) (model.AnalysisResults, error)
}

// Source is the subset of the backend client an analysis poll needs.
type Source interface {
	StatusSource
	ResultsSource
}

type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhasePending         Phase = "pending"
	PhaseProcessing      Phase = "processing"
	PhaseCompleted       Phase = "completed"
	PhaseFailed          Phase = "failed"
	PhaseAbortedAttempts Phase = "aborted_attempts"
	PhaseAbortedErrors   Phase = "aborted_errors"
)

func (p Phase) Polling() bool {
	return p == PhasePending || p == PhaseProcessing
}

func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseAbortedAttempts, PhaseAbortedErrors:
		return true
	default:
		return false
	}
}

// Target identifies the job being watched and the file its results belong to.
type Target struct {
	JobID  string
	FileID string
}

type Config struct {
	Source    StatusSource
	Scheduler Scheduler
	Observer  Observer
	Catalog   Catalog
	// RequestTimeout bounds each status or results request. Zero disables it.
	RequestTimeout time.Duration
}

// State is a point-in-time copy of the poll state.
type State struct {
	Target       Target
	Phase        Phase
	Attempts     int
	Errors       int
	TimerPending bool
	Generation   uint64
	Message      string
	Job          model.JobStatus
}

// Poller drives one job at a time through its status lifecycle. Each tick
// issues a single status request and decides the next delay. All state is
// guarded by mu; requests run outside the lock and their responses are
// dropped when the generation moved on in the meantime.
type Poller struct {
	src     StatusSource
	sched   Scheduler
	obs     Observer
	cat     Catalog
	timeout time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	ctx      context.Context
	target   Target
	phase    Phase
	job      model.JobStatus
	attempts int
	errors   int
	timer    Timer
	timerTok uint64
	nextTok  uint64
	gen      uint64
	message  string
	// progressText is the last pending/processing status line.
	progressText string
}

func New(cfg Config) (*Poller, error) {
	if cfg.Source == nil {
		return nil, ErrMissingSource
	}
	if cfg.Scheduler == nil {
		return nil, ErrMissingScheduler
	}
	cat := cfg.Catalog
	if cat.Failed == "" {
		cat = CatalogFor(LangEN)
	}
	return &Poller{
		src:     cfg.Source,
		sched:   cfg.Scheduler,
		obs:     cfg.Observer,
		cat:     cat,
		timeout: cfg.RequestTimeout,
		logger:  log.With().Str("component", "poller").Logger(),
		ctx:     context.Background(),
		phase:   PhaseIdle,
	}, nil
}

// Poll starts watching target, replacing whatever was watched before.
// The first status request is scheduled immediately.
func (p *Poller) Poll(ctx context.Context, target Target) error {
	target.JobID = strings.TrimSpace(target.JobID)
	target.FileID = strings.TrimSpace(target.FileID)
	if target.JobID == "" {
		return ErrEmptyJobID
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	p.ctx = ctx
	p.target = target
	p.phase = PhasePending
	p.scheduleLocked(0)
	p.logger.Debug().Str("job_id", target.JobID).Str("file_id", target.FileID).Uint64("generation", p.gen).Msg("polling started")
	return nil
}

// Reset cancels the pending timer, zeroes both counters and invalidates any
// request still in flight. The poller returns to idle.
func (p *Poller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

// Tick runs one poll step for the current generation.
func (p *Poller) Tick() {
	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()
	p.tick(gen, 0)
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Target:       p.target,
		Phase:        p.phase,
		Attempts:     p.attempts,
		Errors:       p.errors,
		TimerPending: p.timer != nil,
		Generation:   p.gen,
		Message:      p.message,
		Job:          p.job,
	}
}

func (p *Poller) resetLocked() {
	p.stopTimerLocked()
	p.gen++
	p.attempts = 0
	p.errors = 0
	p.phase = PhaseIdle
	p.target = Target{}
	p.job = model.JobStatus{}
	p.message = ""
	p.progressText = ""
	p.ctx = context.Background()
}

func (p *Poller) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.timerTok = 0
}

func (p *Poller) scheduleLocked(d time.Duration) {
	p.stopTimerLocked()
	p.nextTok++
	gen, tok := p.gen, p.nextTok
	p.timerTok = tok
	p.timer = p.sched.AfterFunc(d, func() { p.tick(gen, tok) })
}

// tick runs one step for generation gen. A non-zero tok marks a timer
// callback, which is ignored unless it is the currently armed timer.
func (p *Poller) tick(gen, tok uint64) {
	p.mu.Lock()
	if gen != p.gen || !p.phase.Polling() || (tok != 0 && tok != p.timerTok) {
		p.mu.Unlock()
		return
	}

	p.attempts++
	if p.attempts > MaxAttempts {
		ev := p.abortLocked(PhaseAbortedAttempts, p.cat.TooManyChecks, ErrTooManyAttempts)
		p.mu.Unlock()
		p.emit(ev)
		return
	}
	p.stopTimerLocked()
	target, ctx, attempt := p.target, p.ctx, p.attempts
	p.mu.Unlock()

	status, err := p.fetchStatus(ctx, target)

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		p.logger.Debug().Str("job_id", target.JobID).Msg("discarding stale status response")
		return
	}
	if err == nil {
		err = model.ObserveStatus(&p.job, status)
	}
	if err != nil {
		ev := p.failureLocked(target, attempt, err)
		p.mu.Unlock()
		p.emit(ev)
		return
	}

	p.errors = 0
	ev := Event{Generation: gen, JobID: target.JobID, FileID: target.FileID, Attempt: attempt, Job: p.job, Progress: p.job.Progress}
	switch p.job.Status {
	case model.StatusPending:
		p.phase = PhasePending
		p.message = p.cat.pending(p.job.Progress)
		p.progressText = p.message
		p.scheduleLocked(PendingBackoff.Delay(attempt))
		ev.Kind = EventProgress
	case model.StatusProcessing:
		p.phase = PhaseProcessing
		p.message = p.cat.processing(p.job.Progress)
		p.progressText = p.message
		p.scheduleLocked(ProcessingBackoff.Delay(attempt))
		ev.Kind = EventProgress
	case model.StatusCompleted:
		p.phase = PhaseCompleted
		p.attempts = 0
		p.message = p.cat.Completed
		p.mu.Unlock()
		p.finishCompleted(gen, target, ev)
		return
	default:
		// failed and cancelled
		p.phase = PhaseFailed
		p.attempts = 0
		p.message = p.cat.failed(p.job.Error)
		ev.Kind = EventFailed
		ev.Err = fmt.Errorf("%w: %s", ErrJobFailed, p.message)
		ev.Retry = &Retry{JobID: target.JobID, FileID: target.FileID, Label: p.cat.RetryAvailable}
	}
	ev.Phase = p.phase
	ev.Message = p.message
	p.mu.Unlock()
	p.emit(ev)
}

func (p *Poller) fetchStatus(ctx context.Context, target Target) (model.JobStatus, error) {
	reqCtx, cancel := p.requestContext(ctx)
	defer cancel()
	status, err := p.src.JobStatus(reqCtx, target.JobID)
	if err != nil {
		return model.JobStatus{}, err
	}
	if status.JobID != "" && status.JobID != target.JobID {
		return model.JobStatus{}, fmt.Errorf("%w: got %s want %s", ErrJobMismatch, status.JobID, target.JobID)
	}
	if status.JobID == "" {
		status.JobID = target.JobID
	}
	if status.FileID == "" {
		status.FileID = target.FileID
	}
	return status, nil
}

func (p *Poller) finishCompleted(gen uint64, target Target, ev Event) {
	var (
		results model.AnalysisResults
		err     error
	)
	rs, fetch := p.src.(ResultsSource)
	if fetch {
		p.mu.Lock()
		ctx := p.ctx
		p.mu.Unlock()

		reqCtx, cancel := p.requestContext(ctx)
		results, err = rs.Results(reqCtx, target.FileID)
		cancel()
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		p.logger.Debug().Str("file_id", target.FileID).Msg("discarding stale results response")
		return
	}
	ev.Phase = PhaseCompleted
	switch {
	case err != nil:
		p.message = p.cat.resultsFailed(err)
		ev.Kind = EventResultsError
		ev.Err = fmt.Errorf("%w: %w", ErrResultsFetch, err)
	case fetch:
		ev.Kind = EventCompleted
		ev.Results = &results
	default:
		ev.Kind = EventCompleted
	}
	ev.Message = p.message
	p.mu.Unlock()
	p.emit(ev)
}

func (p *Poller) failureLocked(target Target, attempt int, err error) Event {
	p.errors++
	p.logger.Warn().Err(err).Str("job_id", target.JobID).Int("errors", p.errors).Msg("status check failed")
	if p.errors >= MaxConsecutiveErrors {
		return p.abortLocked(PhaseAbortedErrors, p.cat.abortedErrors(p.progressText), fmt.Errorf("%w: %w", ErrTooManyErrors, err))
	}
	p.message = p.cat.retrying(p.errors)
	p.scheduleLocked(ErrorRetryDelay)
	return Event{
		Kind:       EventRetrying,
		Generation: p.gen,
		JobID:      target.JobID,
		FileID:     target.FileID,
		Phase:      p.phase,
		Attempt:    attempt,
		Errors:     p.errors,
		Message:    p.message,
		Err:        err,
		Job:        p.job,
		Progress:   p.job.Progress,
	}
}

// abortLocked stops polling for good. The phase sticks until Reset or Poll.
func (p *Poller) abortLocked(phase Phase, message string, err error) Event {
	attempt := p.attempts
	p.stopTimerLocked()
	p.phase = phase
	p.message = message
	p.attempts = 0
	p.errors = 0
	return Event{
		Kind:       EventAborted,
		Generation: p.gen,
		JobID:      p.target.JobID,
		FileID:     p.target.FileID,
		Phase:      phase,
		Attempt:    attempt,
		Message:    message,
		Err:        err,
		Job:        p.job,
		Progress:   p.job.Progress,
	}
}

func (p *Poller) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

// emit hands ev to the observer unless a Reset or Poll moved the generation
// on after ev was built.
func (p *Poller) emit(ev Event) {
	if p.obs == nil {
		return
	}
	p.mu.Lock()
	stale := ev.Generation != p.gen
	p.mu.Unlock()
	if stale {
		p.logger.Debug().Str("job_id", ev.JobID).Str("kind", ev.Kind.String()).Msg("dropping event from a previous poll")
		return
	}
	p.obs.Handle(ev)
}
