package cli

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"auditctl/internal/poller"
)

// watchProgress renders poller events on one terminal line. When not
// attached to a terminal it prints one line per status message instead.
type watchProgress struct {
	live  bool
	jobID string

	mu       sync.Mutex
	started  time.Time
	phase    poller.Phase
	progress float64
	attempt  int
	errors   int
	message  string
	printed  string

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var liveRedrawInterval = 700 * time.Millisecond

func newWatchProgress(live bool, jobID string) *watchProgress {
	return &watchProgress{
		live:    live,
		jobID:   jobID,
		started: time.Now(),
		phase:   poller.PhasePending,
		stop:    make(chan struct{}),
	}
}

func (p *watchProgress) Start() {
	if !p.live {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTicker(liveRedrawInterval)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-t.C:
				fmt.Fprintf(stdout, "\r\033[2K%s", p.render())
			}
		}
	}()
}

// Stop ends the redraw loop and waits for it before printing final.
func (p *watchProgress) Stop(final string) {
	p.once.Do(func() { close(p.stop) })
	p.wg.Wait()
	if p.live {
		fmt.Fprintf(stdout, "\r\033[2K%s\n", final)
		return
	}
	if strings.TrimSpace(final) != "" {
		fmt.Fprintln(stdout, final)
	}
}

func (p *watchProgress) Handle(ev poller.Event) {
	p.mu.Lock()
	p.phase = ev.Phase
	p.attempt = ev.Attempt
	p.errors = ev.Errors
	if ev.Kind == poller.EventProgress {
		p.progress = ev.Progress
	}
	p.message = ev.Message
	line := ""
	if !p.live && !ev.Kind.Terminal() && ev.Message != "" && ev.Message != p.printed {
		p.printed = ev.Message
		line = ev.Message
	}
	p.mu.Unlock()

	if line != "" {
		fmt.Fprintln(stdout, line)
	}
}

func (p *watchProgress) render() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	parts := []string{"[job " + shortID(p.jobID) + "]", string(p.phase), progressBar(p.progress, 20)}
	if p.attempt > 0 {
		parts = append(parts, fmt.Sprintf("check %d/%d", p.attempt, poller.MaxAttempts))
	}
	if p.errors > 0 {
		parts = append(parts, fmt.Sprintf("errors %d/%d", p.errors, poller.MaxConsecutiveErrors))
	}
	parts = append(parts, formatElapsed(time.Since(p.started)))
	if p.message != "" {
		parts = append(parts, "| "+p.message)
	}
	return strings.Join(parts, "  ")
}

func progressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(pct / 100 * float64(width))
	filled = clampInt(filled, 0, width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "] " + formatPercent(pct)
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d:%02d", m, s)
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
