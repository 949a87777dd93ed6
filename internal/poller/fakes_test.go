package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"auditctl/internal/model"
)

type fakeTimer struct {
	s       *fakeScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

// fakeScheduler keeps timers until the test fires them.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) active() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*fakeTimer{}
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireNext runs the oldest armed timer and reports whether one existed.
func (s *fakeScheduler) fireNext() bool {
	s.mu.Lock()
	var next *fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next == nil {
		s.mu.Unlock()
		return false
	}
	next.fired = true
	s.mu.Unlock()
	next.f()
	return true
}

func (s *fakeScheduler) lastDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return -1
	}
	return s.timers[len(s.timers)-1].d
}

// goScheduler fires every timer right away on its own goroutine.
type goScheduler struct{}

type noopTimer struct{}

func (noopTimer) Stop() bool { return false }

func (goScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	go f()
	return noopTimer{}
}

type statusReply struct {
	status model.JobStatus
	err    error
}

func reply(status string) statusReply {
	return statusReply{status: model.JobStatus{Status: status}}
}

var errNetwork = errors.New("connection refused")

type fakeSource struct {
	mu           sync.Mutex
	replies      []statusReply
	fallback     *statusReply
	requested    []string
	resultsCalls int
	results      model.AnalysisResults
	resultsErr   error
	onStatus     func(jobID string)
}

func (f *fakeSource) JobStatus(_ context.Context, jobID string) (model.JobStatus, error) {
	f.mu.Lock()
	f.requested = append(f.requested, jobID)
	var r statusReply
	switch {
	case len(f.replies) > 0:
		r = f.replies[0]
		f.replies = f.replies[1:]
	case f.fallback != nil:
		r = *f.fallback
	default:
		r = statusReply{err: errors.New("no scripted reply")}
	}
	hook := f.onStatus
	f.mu.Unlock()

	if hook != nil {
		hook(jobID)
	}
	return r.status, r.err
}

func (f *fakeSource) Results(_ context.Context, fileID string) (model.AnalysisResults, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultsCalls++
	if f.resultsErr != nil {
		return model.AnalysisResults{}, f.resultsErr
	}
	res := f.results
	res.FileID = fileID
	return res, nil
}

func (f *fakeSource) statusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requested)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) last() Event {
	evs := r.all()
	if len(evs) == 0 {
		return Event{}
	}
	return evs[len(evs)-1]
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
