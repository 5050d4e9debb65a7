package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

// fakeRunner records calls and optionally blocks until released.
type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	err     error
	release chan struct{}
	called  chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{called: make(chan struct{}, 16)}
}

func (r *fakeRunner) SyncAll(ctx context.Context) ([]*schema.RunRecord, error) {
	r.mu.Lock()
	r.calls++
	release := r.release
	err := r.err
	r.mu.Unlock()

	r.called <- struct{}{}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
	return []*schema.RunRecord{{Pipeline: "products", Status: schema.RunStatusSucceeded, Attempts: 1}}, err
}

func (r *fakeRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func waitCall(t *testing.T, r *fakeRunner) {
	t.Helper()
	select {
	case <-r.called:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for a sync")
	}
}

func startDaemon(t *testing.T, d *Daemon) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()
	return cancelFn, errc
}

func stopDaemon(t *testing.T, cancel func(), done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "daemon did not stop")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		runner  Runner
		config  Config
		wantErr bool
	}{
		{name: "default config", runner: newFakeRunner(), config: DefaultConfig()},
		{name: "nil runner", runner: nil, config: DefaultConfig(), wantErr: true},
		{name: "negative interval", runner: newFakeRunner(), config: Config{Interval: -time.Second}, wantErr: true},
		{name: "no trigger source", runner: newFakeRunner(), config: Config{}, wantErr: true},
		{name: "run on start only", runner: newFakeRunner(), config: Config{RunOnStart: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.runner, tt.config, zaptest.NewLogger(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, d)
		})
	}
}

func TestDaemon_RunOnStart(t *testing.T) {
	runner := newFakeRunner()
	d, err := New(runner, Config{RunOnStart: true}, zaptest.NewLogger(t))
	require.NoError(t, err)

	cancel, done := startDaemon(t, d)
	waitCall(t, runner)
	stopDaemon(t, cancel, done)

	assert.Equal(t, 1, d.Stats().Runs)
}

func TestDaemon_Interval(t *testing.T) {
	runner := newFakeRunner()
	d, err := New(runner, Config{Interval: 20 * time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)

	cancel, done := startDaemon(t, d)
	waitCall(t, runner)
	waitCall(t, runner)
	stopDaemon(t, cancel, done)

	assert.GreaterOrEqual(t, runner.Calls(), 2)
}

func TestDaemon_CoalescesTriggers(t *testing.T) {
	runner := newFakeRunner()
	runner.release = make(chan struct{})
	d, err := New(runner, Config{RunOnStart: true}, zaptest.NewLogger(t))
	require.NoError(t, err)

	cancel, done := startDaemon(t, d)
	waitCall(t, runner)

	// The first sync is blocked; these collapse into one queued sync.
	for range 5 {
		d.Trigger("test")
	}

	runner.mu.Lock()
	close(runner.release)
	runner.release = nil
	runner.mu.Unlock()

	waitCall(t, runner)
	stopDaemon(t, cancel, done)

	assert.Equal(t, 2, runner.Calls())
	assert.Equal(t, 4, d.Stats().Coalesced)
}

func TestDaemon_RecordsFailures(t *testing.T) {
	runner := newFakeRunner()
	runner.err = errors.New("sheet unavailable")
	d, err := New(runner, Config{RunOnStart: true}, zaptest.NewLogger(t))
	require.NoError(t, err)

	cancel, done := startDaemon(t, d)
	waitCall(t, runner)
	stopDaemon(t, cancel, done)

	stats := d.Stats()
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, "sheet unavailable", stats.LastError)
}

func TestDaemon_RunTwice(t *testing.T) {
	runner := newFakeRunner()
	d, err := New(runner, Config{RunOnStart: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	cancel, done := startDaemon(t, d)
	waitCall(t, runner)

	assert.Error(t, d.Run(context.Background()), "second Run() should fail")
	stopDaemon(t, cancel, done)
}

func TestDaemon_FileChangeTriggersSync(t *testing.T) {
	dir := t.TempDir()
	tab := filepath.Join(dir, "Sheet1.csv")
	require.NoError(t, os.WriteFile(tab, []byte("sku,name\nSKU1,x\n"), 0o644))

	runner := newFakeRunner()
	d, err := New(runner, Config{WatchDir: dir, Debounce: 20 * time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)
	cancel, done := startDaemon(t, d)
	defer stopDaemon(t, cancel, done)

	// Give the watcher time to register.
	waitFor(t, d.watcher.IsRunning)

	// Several quick edits become one sync.
	for i := range 3 {
		content := []byte("sku,name\nSKU1,x\nSKU2," + string(rune('a'+i)) + "\n")
		require.NoError(t, os.WriteFile(tab, content, 0o644))
	}
	waitCall(t, runner)

	select {
	case <-runner.called:
		assert.Fail(t, "debounced edits triggered more than one sync")
	case <-time.After(200 * time.Millisecond):
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond)
}
