package app

import (
	"time"

	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/domain"
)

type StatusRequest struct {
	Now             *time.Time
	HabitScope      []string
	IncludeArchived bool
}

func NewStatusRequest() StatusRequest {
	return StatusRequest{}
}

type HabitStatusView struct {
	HabitID   string
	Name      string
	Frequency domain.Frequency
	Mode      domain.TimerMode
	Archived  bool

	PeriodKey string
	Completed bool
	LoggedMs  int64
	Sessions  int

	TimerState  decision.TimerState
	SessionID   string
	ElapsedMs   int64
	RemainingMs int64
	TargetMs    int64
}

type StatusSummary struct {
	GeneratedAt     time.Time
	CountsTotal     int
	CountsCompleted int
	CountsPending   int
	ActiveHabitID   string
	PausedHabitID   string
	LastError       string
}

type StatusResponse struct {
	Summary StatusSummary
	Habits  []HabitStatusView
}

type StatusErrorCode string

const (
	StatusErrInvalidScope StatusErrorCode = "INVALID_SCOPE"
)

type StatusError struct {
	Code    StatusErrorCode
	Message string
}

func (e *StatusError) Error() string {
	return string(e.Code) + ": " + e.Message
}
