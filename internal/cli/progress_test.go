package cli

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"auditctl/internal/poller"
)

func TestWatchProgressPrintsEachMessageOnce(t *testing.T) {
	var out bytes.Buffer
	prev := stdout
	stdout = &out
	defer func() { stdout = prev }()

	p := newWatchProgress(false, "0123456789abcdef")
	p.Start()
	p.Handle(poller.Event{Kind: poller.EventProgress, Phase: poller.PhasePending, Message: "Analysis queued (0%)"})
	p.Handle(poller.Event{Kind: poller.EventProgress, Phase: poller.PhasePending, Message: "Analysis queued (0%)"})
	p.Handle(poller.Event{Kind: poller.EventProgress, Phase: poller.PhaseProcessing, Progress: 40, Message: "Analysis in progress (40%)"})
	p.Handle(poller.Event{Kind: poller.EventCompleted, Phase: poller.PhaseCompleted, Message: "Analysis completed"})
	p.Stop("Analysis completed")
	p.Stop("Analysis completed")

	want := "Analysis queued (0%)\nAnalysis in progress (40%)\nAnalysis completed\nAnalysis completed\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%q\nwant\n%q", out.String(), want)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchProgressStopJoinsRedrawLoop(t *testing.T) {
	out := &lockedBuffer{}
	prev, prevInterval := stdout, liveRedrawInterval
	stdout = out
	liveRedrawInterval = time.Millisecond
	defer func() { stdout, liveRedrawInterval = prev, prevInterval }()

	p := newWatchProgress(true, "0123456789abcdef")
	p.Start()
	time.Sleep(20 * time.Millisecond)
	p.Stop("Analysis completed")

	final := out.String()
	if !strings.HasSuffix(final, "\r\033[2KAnalysis completed\n") {
		t.Fatalf("expected final line last, got %q", final)
	}
	time.Sleep(20 * time.Millisecond)
	if got := out.String(); got != final {
		t.Fatalf("redraw after Stop: %q", strings.TrimPrefix(got, final))
	}
}

func TestWatchProgressRender(t *testing.T) {
	p := newWatchProgress(true, "0123456789abcdef")
	p.Handle(poller.Event{Kind: poller.EventProgress, Phase: poller.PhaseProcessing, Attempt: 3, Progress: 50, Message: "Analysis in progress (50%)"})
	p.Handle(poller.Event{Kind: poller.EventRetrying, Phase: poller.PhaseProcessing, Attempt: 4, Errors: 1, Message: "Status check failed, retrying (1/3)"})

	line := p.render()
	for _, want := range []string{"[job 01234567]", "processing", "[##########..........] 50%", "check 4/120", "errors 1/3", "retrying (1/3)"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestProgressBarBounds(t *testing.T) {
	if got := progressBar(150, 4); got != "[####] 150%" {
		t.Fatalf("unexpected bar %q", got)
	}
	if got := progressBar(-5, 4); got != "[....] -5%" {
		t.Fatalf("unexpected bar %q", got)
	}
}
