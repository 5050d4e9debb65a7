// Package workflow runs pipelines as sequences of named, memoized steps.
//
// A run is retried as a whole when it fails. Steps that already succeeded
// in an earlier attempt of the same run are not executed again; their
// recorded output is replayed instead, so a retry resumes at the step that
// failed. Each step outcome is persisted through a Recorder.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

// Recorder persists run history. *catalog.DB implements it.
type Recorder interface {
	StartRun(ctx context.Context, run schema.RunRecord) error
	FinishRun(ctx context.Context, run schema.RunRecord) error
	SaveStep(ctx context.Context, step schema.StepRecord) error
}

// Config holds retry settings.
type Config struct {
	// Retries is the number of additional attempts after a failed one.
	Retries int

	// Backoff is the pause between attempts.
	Backoff time.Duration

	// MaxOutput caps the persisted size of a step's JSON output in bytes.
	// Memoization always uses the full output.
	MaxOutput int
}

// DefaultConfig returns the default retry settings.
func DefaultConfig() Config {
	return Config{
		Retries:   3,
		Backoff:   10 * time.Second,
		MaxOutput: 8 << 10,
	}
}

// Func is a pipeline body. It calls Do for each of its steps.
type Func func(ctx context.Context, run *Run) (schema.RunResult, error)

// Scheduler executes pipelines with retries and step memoization.
type Scheduler struct {
	config   Config
	recorder Recorder
	logger   *zap.Logger
	hooks    []func(Event)

	newID func() string
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Scheduler. A nil recorder disables persistence.
func New(config Config, recorder Recorder, newID func() string, logger *zap.Logger) (*Scheduler, error) {
	if config.Retries < 0 {
		return nil, fmt.Errorf("retries must be non-negative, got %d", config.Retries)
	}
	if config.Backoff < 0 {
		return nil, fmt.Errorf("backoff must be non-negative, got %v", config.Backoff)
	}
	if newID == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		recorder: recorder,
		logger:   logger.Named("workflow"),
		newID:    newID,
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// OnEvent registers a hook called synchronously for every run and step
// event. Hooks must not block.
func (s *Scheduler) OnEvent(fn func(Event)) {
	s.hooks = append(s.hooks, fn)
}

// Run executes fn under the named pipeline until it succeeds, returns a
// final error, or runs out of attempts. A run ending in ErrNothingToDo is
// returned with status noop and a nil error.
func (s *Scheduler) Run(ctx context.Context, pipeline string, fn Func) (*schema.RunRecord, error) {
	record := schema.RunRecord{
		ID:        s.newID(),
		Pipeline:  pipeline,
		Status:    schema.RunStatusRunning,
		StartedAt: s.now(),
	}
	log := s.logger.With(zap.String("pipeline", pipeline), zap.String("run_id", record.ID))

	if s.recorder != nil {
		if err := s.recorder.StartRun(ctx, record); err != nil {
			log.Warn("failed to record run start", zap.Error(err))
		}
	}
	s.emit(Event{Type: EventRunStarted, Run: record})

	memo := make(map[string][]byte)
	var runErr error
	for attempt := 1; ; attempt++ {
		record.Attempts = attempt
		run := &Run{
			ID:        record.ID,
			Pipeline:  pipeline,
			Attempt:   attempt,
			scheduler: s,
			memo:      memo,
			logger:    log.With(zap.Int("attempt", attempt)),
		}

		result, err := fn(ctx, run)
		if err == nil {
			record.Status = schema.RunStatusSucceeded
			record.Result = result
			runErr = nil
			break
		}
		if IsNothingToDo(err) {
			log.Info("nothing to do")
			record.Status = schema.RunStatusNoop
			record.Result = result
			runErr = nil
			break
		}

		runErr = err
		if !IsRetryable(err) || attempt > s.config.Retries {
			record.Status = schema.RunStatusFailed
			record.Error = err.Error()
			break
		}

		log.Warn("run attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", s.config.Backoff),
			zap.Error(err))
		s.emit(Event{Type: EventRunRetrying, Run: record, Err: err.Error()})

		if err := s.sleep(ctx, s.config.Backoff); err != nil {
			record.Status = schema.RunStatusFailed
			record.Error = runErr.Error()
			break
		}
	}

	finished := s.now()
	record.FinishedAt = &finished

	if s.recorder != nil {
		// The run's own context may be canceled by now; history is still written.
		if err := s.recorder.FinishRun(context.WithoutCancel(ctx), record); err != nil {
			log.Warn("failed to record run result", zap.Error(err))
		}
	}
	s.emit(Event{Type: EventRunFinished, Run: record})

	log.Info("run finished",
		zap.String("status", record.Status),
		zap.Int("attempts", record.Attempts),
		zap.Int("inserted", record.Result.Inserted),
		zap.Int("updated", record.Result.Updated),
		zap.Int("skipped", record.Result.Skipped),
		zap.Duration("duration", record.Duration()))

	return &record, runErr
}

func (s *Scheduler) saveStep(ctx context.Context, step schema.StepRecord, log *zap.Logger) {
	if limit := s.config.MaxOutput; limit > 0 && len(step.Output) > limit {
		step.Output = step.Output[:limit] + "...(truncated)"
	}
	if s.recorder != nil {
		if err := s.recorder.SaveStep(context.WithoutCancel(ctx), step); err != nil {
			log.Warn("failed to record step", zap.String("step", step.Name), zap.Error(err))
		}
	}
	s.emit(Event{Type: EventStepFinished, Step: &step})
}

func (s *Scheduler) emit(e Event) {
	e.Time = s.now()
	for _, h := range s.hooks {
		h(e)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
