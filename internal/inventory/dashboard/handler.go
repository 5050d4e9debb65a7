package dashboard

import (
	"encoding/json"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
	"github.com/huangc28/kikichoice-be/internal/inventory/workflow"
)

// StatsData summarizes runs seen since the server started.
type StatsData struct {
	Runs     int                         `json:"runs"`
	ByStatus map[string]int              `json:"by_status"`
	Last     map[string]schema.RunRecord `json:"last"` // latest finished run per pipeline
	Running  int                         `json:"running"`
	Products int                         `json:"products,omitempty"`
	Variants int                         `json:"variants,omitempty"`
}

// RunData is the payload of a run message.
type RunData struct {
	Event string           `json:"event"`
	Run   schema.RunRecord `json:"run"`
	Error string           `json:"error,omitempty"`
}

// Broadcaster accepts dashboard messages. *Server implements it.
type Broadcaster interface {
	Broadcast(msg Message)
}

// Handler turns scheduler events into dashboard messages and keeps
// run counters.
type Handler struct {
	out    Broadcaster
	logger *zap.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a Handler that broadcasts through out.
func NewHandler(out Broadcaster, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		out:    out,
		logger: logger,
		stats: StatsData{
			ByStatus: make(map[string]int),
			Last:     make(map[string]schema.RunRecord),
		},
	}
}

// OnEvent handles one scheduler event. It does not block.
func (h *Handler) OnEvent(e workflow.Event) {
	switch e.Type {
	case workflow.EventRunStarted:
		h.mu.Lock()
		h.stats.Running++
		h.mu.Unlock()
		h.send(MessageTypeRun, e.Time, RunData{Event: string(e.Type), Run: e.Run})

	case workflow.EventRunRetrying:
		h.send(MessageTypeRun, e.Time, RunData{Event: string(e.Type), Run: e.Run, Error: e.Err})

	case workflow.EventRunFinished:
		h.mu.Lock()
		if h.stats.Running > 0 {
			h.stats.Running--
		}
		h.stats.Runs++
		h.stats.ByStatus[e.Run.Status]++
		h.stats.Last[e.Run.Pipeline] = e.Run
		h.mu.Unlock()
		h.send(MessageTypeRun, e.Time, RunData{Event: string(e.Type), Run: e.Run, Error: e.Run.Error})
		h.out.Broadcast(h.statsMessage())

	case workflow.EventStepFinished:
		if e.Step != nil {
			h.send(MessageTypeStep, e.Time, e.Step)
		}
	}
}

// Stats returns a copy of the counters.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := h.stats
	out.ByStatus = maps.Clone(h.stats.ByStatus)
	out.Last = maps.Clone(h.stats.Last)
	return out
}

func (h *Handler) statsMessage() Message {
	data, _ := json.Marshal(h.Stats())
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(t MessageType, at time.Time, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("failed to marshal event", zap.String("type", string(t)), zap.Error(err))
		return
	}
	h.out.Broadcast(Message{Type: t, Timestamp: at, Data: data})
}
