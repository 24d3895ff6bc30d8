// Package clock owns the authoritative elapsed time of timer sessions. Open
// sessions are tracked in memory against a monotonic anchor; the session rows
// only receive checkpoints on lifecycle changes, which is what Recover reads
// after a restart.
package clock

import (
	"errors"
	"time"
)

var (
	ErrUnavailable     = errors.New("clock service is not running")
	ErrSessionNotFound = errors.New("no open timer session")
	ErrSessionActive   = errors.New("habit already has an open timer session")
	ErrInvalidExtend   = errors.New("extension must be positive")
)

// Clock is the time source. Times returned by the system clock carry a
// monotonic reading, so in-process elapsed time survives wall clock changes.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Observer receives clock telemetry.
type Observer interface {
	ObserveTick()
	ObserveTransition(t EventType)
	SetActiveSessions(n int)
}

type noopObserver struct{}

func (noopObserver) ObserveTick()                  {}
func (noopObserver) ObserveTransition(_ EventType) {}
func (noopObserver) SetActiveSessions(_ int)       {}
