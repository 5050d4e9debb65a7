package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

// Run is one attempt of a pipeline run, passed to the pipeline body.
type Run struct {
	ID       string
	Pipeline string
	Attempt  int

	scheduler *Scheduler
	memo      map[string][]byte
	logger    *zap.Logger
}

// Logger returns a logger tagged with the run id, pipeline and attempt.
func (r *Run) Logger() *zap.Logger {
	return r.logger
}

// Do executes a named step and returns its result.
//
// If a step with the same name succeeded in an earlier attempt of this run,
// fn is not called and the earlier result is decoded and returned. Results
// must therefore round-trip through encoding/json. The context is checked
// before the step starts; steps are the only cancellation points.
func Do[T any](ctx context.Context, run *Run, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	s := run.scheduler
	log := run.logger.With(zap.String("step", name))
	start := s.now()
	step := schema.StepRecord{
		RunID:     run.ID,
		Attempt:   run.Attempt,
		Name:      name,
		StartedAt: start,
	}

	if raw, ok := run.memo[name]; ok {
		var out T
		if err := json.Unmarshal(raw, &out); err == nil {
			step.Status = schema.StepStatusMemoized
			step.Output = string(raw)
			s.saveStep(ctx, step, log)
			log.Debug("step replayed from earlier attempt")
			return out, nil
		}
		// Undecodable memo: run the step again.
		delete(run.memo, name)
	}

	out, err := fn(ctx)
	step.Duration = s.now().Sub(start)
	if err != nil {
		step.Status = schema.StepStatusFailed
		step.Error = err.Error()
		s.saveStep(ctx, step, log)
		log.Warn("step failed", zap.Duration("duration", step.Duration), zap.Error(err))
		return zero, err
	}

	raw, err := json.Marshal(out)
	if err != nil {
		step.Status = schema.StepStatusFailed
		step.Error = err.Error()
		s.saveStep(ctx, step, log)
		return zero, NonRetriable(fmt.Errorf("step %s: failed to encode result: %w", name, err))
	}
	run.memo[name] = raw

	step.Status = schema.StepStatusSucceeded
	step.Output = string(raw)
	s.saveStep(ctx, step, log)
	log.Debug("step succeeded", zap.Duration("duration", step.Duration))
	return out, nil
}
