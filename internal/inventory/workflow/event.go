package workflow

import (
	"time"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

// EventType identifies a scheduler event.
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventRunRetrying  EventType = "run_retrying"
	EventRunFinished  EventType = "run_finished"
	EventStepFinished EventType = "step_finished"
)

// Event is emitted to hooks registered with Scheduler.OnEvent.
type Event struct {
	Type EventType          `json:"type"`
	Time time.Time          `json:"time"`
	Run  schema.RunRecord   `json:"run"`
	Step *schema.StepRecord `json:"step,omitempty"`
	Err  string             `json:"error,omitempty"`
}
