package poller

import "time"

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Implementations must not call f inline.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// TimerScheduler schedules on real wall-clock timers.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
