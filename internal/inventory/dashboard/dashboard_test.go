package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/huangc28/kikichoice-be/internal/inventory/catalog"
	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
	"github.com/huangc28/kikichoice-be/internal/inventory/workflow"
)

func setupStore(t *testing.T) *catalog.DB {
	t.Helper()
	db, err := catalog.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema())
	return db
}

func seedRun(t *testing.T, db *catalog.DB, id, pipeline, status string, started time.Time) {
	t.Helper()
	ctx := context.Background()
	run := schema.RunRecord{ID: id, Pipeline: pipeline, Status: schema.RunStatusRunning, StartedAt: started}
	require.NoError(t, db.StartRun(ctx, run))
	require.NoError(t, db.SaveStep(ctx, schema.StepRecord{
		RunID: id, Attempt: 1, Name: "fetch-sheet-data", Status: schema.StepStatusSucceeded, StartedAt: started,
	}))
	finished := started.Add(time.Second)
	run.Status = status
	run.Attempts = 1
	run.FinishedAt = &finished
	require.NoError(t, db.FinishRun(ctx, run))
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	s := NewServer(Config{}, nil, zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["clients"])
}

func TestRunsAPI(t *testing.T) {
	db := setupStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, db, "r1", "products", schema.RunStatusSucceeded, base)
	seedRun(t, db, "r2", "variants", schema.RunStatusFailed, base.Add(time.Minute))
	seedRun(t, db, "r3", "products", schema.RunStatusNoop, base.Add(2*time.Minute))

	s := NewServer(Config{}, db, zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	t.Run("newest first", func(t *testing.T) {
		var runs []schema.RunRecord
		require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/runs", &runs))
		require.Len(t, runs, 3)
		assert.Equal(t, "r3", runs[0].ID)
		assert.Equal(t, "r1", runs[2].ID)
	})

	t.Run("filters", func(t *testing.T) {
		var runs []schema.RunRecord
		require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/runs?pipeline=products&limit=1", &runs))
		require.Len(t, runs, 1)
		assert.Equal(t, "r3", runs[0].ID)

		since := base.Add(30 * time.Second).Format(time.RFC3339)
		require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/runs?since="+since, &runs))
		assert.Len(t, runs, 2)
	})

	t.Run("bad query", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/runs?limit=x", nil))
		assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/runs?since=yesterday", nil))
	})

	t.Run("detail", func(t *testing.T) {
		var detail RunDetail
		require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/runs/r2", &detail))
		assert.Equal(t, schema.RunStatusFailed, detail.Status)
		require.Len(t, detail.Steps, 1)
		assert.Equal(t, "fetch-sheet-data", detail.Steps[0].Name)
	})

	t.Run("missing", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/runs/nope", nil))
	})
}

func TestRunsAPI_NoStore(t *testing.T) {
	s := NewServer(Config{}, nil, zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/runs", nil))
}

type captured struct{ msgs []Message }

func (c *captured) Broadcast(m Message) { c.msgs = append(c.msgs, m) }

func TestHandler_OnEvent(t *testing.T) {
	out := &captured{}
	h := NewHandler(out, zaptest.NewLogger(t))

	run := schema.RunRecord{ID: "r1", Pipeline: "products", Status: schema.RunStatusRunning}
	h.OnEvent(workflow.Event{Type: workflow.EventRunStarted, Run: run})
	assert.Equal(t, 1, h.Stats().Running)

	h.OnEvent(workflow.Event{Type: workflow.EventStepFinished, Step: &schema.StepRecord{RunID: "r1", Name: "upsert-products"}})

	run.Status = schema.RunStatusSucceeded
	run.Result = schema.RunResult{Inserted: 2, Total: 2}
	h.OnEvent(workflow.Event{Type: workflow.EventRunFinished, Run: run})

	stats := h.Stats()
	assert.Equal(t, 0, stats.Running)
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, 1, stats.ByStatus[schema.RunStatusSucceeded])
	assert.Equal(t, 2, stats.Last["products"].Result.Inserted)

	var types []MessageType
	for _, m := range out.msgs {
		types = append(types, m.Type)
	}
	assert.Equal(t, []MessageType{MessageTypeRun, MessageTypeStep, MessageTypeRun, MessageTypeStats}, types)

	var data RunData
	require.NoError(t, json.Unmarshal(out.msgs[2].Data, &data))
	assert.Equal(t, string(workflow.EventRunFinished), data.Event)
	assert.Equal(t, "r1", data.Run.ID)
}

func TestHandler_StatsIsACopy(t *testing.T) {
	h := NewHandler(&captured{}, nil)
	h.OnEvent(workflow.Event{Type: workflow.EventRunFinished, Run: schema.RunRecord{Pipeline: "products", Status: "succeeded"}})

	stats := h.Stats()
	stats.ByStatus["succeeded"] = 99
	assert.Equal(t, 1, h.Stats().ByStatus["succeeded"])
}

func TestWebSocketBroadcast(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0"}, nil, zaptest.NewLogger(t))
	require.NoError(t, s.Start())
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	read := func() Message {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var m Message
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	}

	assert.Equal(t, MessageTypeStats, read().Type, "snapshot on connect")
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	s.Events().OnEvent(workflow.Event{
		Type: workflow.EventRunFinished,
		Time: time.Now(),
		Run:  schema.RunRecord{ID: "r9", Pipeline: "variants", Status: schema.RunStatusSucceeded},
	})

	m := read()
	require.Equal(t, MessageTypeRun, m.Type)
	var data RunData
	require.NoError(t, json.Unmarshal(m.Data, &data))
	assert.Equal(t, "r9", data.Run.ID)
	assert.Equal(t, MessageTypeStats, read().Type)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}
