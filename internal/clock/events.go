package clock

import (
	"time"

	"github.com/alexanderramin/streak/internal/domain"
)

type EventType string

const (
	EventStarted       EventType = "started"
	EventTick          EventType = "tick"
	EventPaused        EventType = "paused"
	EventResumed       EventType = "resumed"
	EventCompleted     EventType = "completed"
	EventDiscarded     EventType = "discarded"
	EventAutoPaused    EventType = "auto_paused"
	EventExtended      EventType = "extended"
	EventTargetReached EventType = "target_reached"
	EventRecovered     EventType = "recovered"
)

// Event is one session lifecycle notification. RemainingMs is zero for
// sessions without a target.
type Event struct {
	Type        EventType
	SessionID   string
	HabitID     string
	Mode        domain.TimerMode
	Source      domain.Source
	ElapsedMs   int64
	RemainingMs int64
	TargetMs    int64
	Paused      bool
	At          time.Time

	// AutoPaused: the habit whose timer took over.
	OtherHabitID string
}

// Ends reports whether the event closes its session.
func (e Event) Ends() bool {
	return e.Type == EventCompleted || e.Type == EventDiscarded
}

// Snapshot is the current reading of an open session.
type Snapshot struct {
	SessionID     string
	HabitID       string
	Mode          domain.TimerMode
	State         domain.SessionState
	Source        domain.Source
	StartedAt     time.Time
	ElapsedMs     int64
	TargetMs      int64
	RemainingMs   int64
	TargetReached bool
}

func (s Snapshot) Running() bool {
	return s.State == domain.SessionRunning
}

func remaining(targetMs, elapsedMs int64) int64 {
	if targetMs <= 0 || elapsedMs >= targetMs {
		return 0
	}
	return targetMs - elapsedMs
}
