package poller

import "auditctl/internal/model"

type EventKind int

const (
	EventProgress EventKind = iota + 1
	EventRetrying
	EventCompleted
	EventResultsError
	EventFailed
	EventAborted
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventRetrying:
		return "retrying"
	case EventCompleted:
		return "completed"
	case EventResultsError:
		return "results_error"
	case EventFailed:
		return "failed"
	case EventAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events follow for the same poll.
func (k EventKind) Terminal() bool {
	switch k {
	case EventCompleted, EventResultsError, EventFailed, EventAborted:
		return true
	default:
		return false
	}
}

// Retry is the manual retry affordance offered once per failed job.
// Acting on it means resetting the poller and starting a new analysis
// of FileID.
type Retry struct {
	JobID  string
	FileID string
	Label  string
}

// Event is one observable step of a poll. Generation identifies the poll it
// belongs to; it matches State().Generation until the next Reset or Poll.
type Event struct {
	Kind       EventKind
	Generation uint64
	JobID      string
	FileID     string
	Phase      Phase
	Attempt    int
	Errors     int
	Progress   float64
	Message    string
	Job        model.JobStatus
	Results    *model.AnalysisResults
	Retry      *Retry
	Err        error
}

// Observer receives poll events. Handle is never called with the poller
// lock held, so implementations may call back into the poller.
type Observer interface {
	Handle(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Handle(ev Event) {
	f(ev)
}
