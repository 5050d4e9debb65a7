package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

// Runner performs one full reconciliation. *sync.Syncer implements it.
type Runner interface {
	SyncAll(ctx context.Context) ([]*schema.RunRecord, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval between scheduled syncs. Zero disables the ticker.
	Interval time.Duration

	// RunOnStart triggers a sync as soon as the daemon starts.
	RunOnStart bool

	// WatchDir, when set, is a CSV workbook directory whose changes
	// trigger a sync.
	WatchDir string

	// Debounce is how long file events must be quiet before a sync is
	// triggered. Editors often write a file several times in a row.
	Debounce time.Duration
}

// DefaultConfig matches the half-hourly schedule of the hosted job.
func DefaultConfig() Config {
	return Config{
		Interval:   30 * time.Minute,
		RunOnStart: true,
		Debounce:   500 * time.Millisecond,
	}
}

// Stats counts what the daemon has done since it started.
type Stats struct {
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	Coalesced int       `json:"coalesced"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Daemon schedules syncs.
type Daemon struct {
	runner  Runner
	config  Config
	logger  *zap.Logger
	watcher *FileWatcher

	trigger chan string

	mu    sync.Mutex
	stats Stats

	started bool
	wg      sync.WaitGroup
}

// New creates a Daemon. The file watcher is created here so a bad WatchDir
// is reported before Run is called.
func New(runner Runner, config Config, logger *zap.Logger) (*Daemon, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if config.Interval < 0 {
		return nil, fmt.Errorf("interval must be non-negative, got %v", config.Interval)
	}
	if config.Interval == 0 && config.WatchDir == "" && !config.RunOnStart {
		return nil, errors.New("nothing would ever trigger a sync: set an interval, a watch directory or run-on-start")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Daemon{
		runner:  runner,
		config:  config,
		logger:  logger.Named("daemon"),
		trigger: make(chan string, 1),
	}

	if config.WatchDir != "" {
		w, err := NewFileWatcher()
		if err != nil {
			return nil, err
		}
		d.watcher = w
	}
	return d, nil
}

// Trigger requests a sync. It never blocks: if a sync is already queued the
// request is folded into it.
func (d *Daemon) Trigger(reason string) {
	select {
	case d.trigger <- reason:
		d.logger.Debug("sync queued", zap.String("reason", reason))
	default:
		d.mu.Lock()
		d.stats.Coalesced++
		d.mu.Unlock()
		d.logger.Debug("sync already queued", zap.String("reason", reason))
	}
}

// Stats returns a copy of the daemon's counters.
func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Run blocks until ctx is canceled, running a sync for every trigger.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	d.logger.Info("starting daemon",
		zap.Duration("interval", d.config.Interval),
		zap.String("watch_dir", d.config.WatchDir))

	if d.watcher != nil {
		if err := d.watcher.Start(d.config.WatchDir); err != nil {
			return err
		}
		d.wg.Add(1)
		go d.watchFiles(ctx)
	}
	if d.config.Interval > 0 {
		d.wg.Add(1)
		go d.tick(ctx)
	}
	if d.config.RunOnStart {
		d.Trigger("startup")
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutdown signal received")
			return d.stop()
		case reason := <-d.trigger:
			d.runOnce(ctx, reason)
		}
	}
}

func (d *Daemon) stop() error {
	var err error
	if d.watcher != nil {
		err = d.watcher.Stop()
	}
	d.wg.Wait()
	d.logger.Info("daemon stopped")
	return err
}

func (d *Daemon) runOnce(ctx context.Context, reason string) {
	log := d.logger.With(zap.String("reason", reason))
	log.Info("sync triggered")

	runs, err := d.runner.SyncAll(ctx)

	d.mu.Lock()
	d.stats.Runs++
	d.stats.LastRun = time.Now()
	d.stats.LastError = ""
	if err != nil {
		d.stats.Failures++
		d.stats.LastError = err.Error()
	}
	d.mu.Unlock()

	for _, r := range runs {
		log.Info("pipeline finished",
			zap.String("pipeline", r.Pipeline),
			zap.String("status", r.Status),
			zap.Int("attempts", r.Attempts))
	}
	if err != nil {
		log.Error("sync failed", zap.Error(err))
	}

	if d.watcher != nil {
		d.watcher.Snapshot()
	}
}

func (d *Daemon) tick(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Trigger("interval")
		}
	}
}

// watchFiles turns bursts of file events into a single trigger once the
// directory has been quiet for the debounce interval.
func (d *Daemon) watchFiles(ctx context.Context) {
	defer d.wg.Done()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending []string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.logger.Debug("workbook changed", zap.String("tab", ev.Tab), zap.Stringer("op", ev.Op))
			pending = append(pending, ev.Tab)
			if timer == nil {
				timer = time.NewTimer(d.config.Debounce)
			} else {
				timer.Reset(d.config.Debounce)
			}
			timerC = timer.C

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Warn("watcher error", zap.Error(err))

		case <-timerC:
			timerC = nil
			d.logger.Info("workbook changed", zap.Strings("tabs", pending))
			pending = pending[:0]
			d.Trigger("file-change")
		}
	}
}
