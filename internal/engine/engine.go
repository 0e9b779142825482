// Package engine is the boundary between a parsed batch file and the
// simulation engine that consumes it. The physics lives outside this module;
// engines here either plan a run or hand it to an external program.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"heatbatch/internal/model"
)

// Engine executes one run of a schedule.
type Engine interface {
	Name() string
	Run(ctx context.Context, plan RunPlan) error
}

// ErrMissingFiles is returned by DryRun when a run references files that do not exist.
var ErrMissingFiles = errors.New("referenced files missing")

// DryRun logs what each run would do and checks that its files exist.
type DryRun struct {
	Logger *zap.Logger
}

func (d *DryRun) Name() string {
	return "dry-run"
}

func (d *DryRun) Run(ctx context.Context, plan RunPlan) error {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Run planned",
		zap.String("machine", plan.Machine),
		zap.String("tag", plan.Tag),
		zap.Int("shot", plan.Shot),
		zap.Int("timesteps", len(plan.Steps)),
		zap.Strings("outputs", plan.Outputs),
		zap.String("output_dir", plan.OutputDir))

	diags := Check([]RunPlan{plan})
	for _, d := range diags {
		logger.Warn("Missing file", zap.Int("line", d.Line), zap.String("detail", d.Message))
	}
	if len(diags) > 0 {
		return fmt.Errorf("run %q: %d %w", plan.Tag, len(diags), ErrMissingFiles)
	}
	return ctx.Err()
}

// RunError is the failure of a single run inside RunAll.
type RunError struct {
	Tag string
	Err error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %q: %v", e.Tag, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// RunAll executes the runs of sched one at a time, in schedule order. It
// stops at the first failing run unless keepGoing is set, in which case all
// failures are joined.
func RunAll(ctx context.Context, eng Engine, sched *model.Schedule, layout Layout, keepGoing bool, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var errs []error
	for i, plan := range Plan(sched, layout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info("Starting run",
			zap.String("engine", eng.Name()),
			zap.Int("run", i+1),
			zap.Int("of", len(sched.Runs)),
			zap.String("machine", plan.Machine),
			zap.String("tag", plan.Tag))

		if err := eng.Run(ctx, plan); err != nil {
			runErr := &RunError{Tag: plan.Tag, Err: err}
			if !keepGoing || ctx.Err() != nil {
				return runErr
			}
			logger.Error("Run failed", zap.String("tag", plan.Tag), zap.Error(err))
			errs = append(errs, runErr)
			continue
		}
		logger.Info("Run complete", zap.String("tag", plan.Tag))
	}
	return errors.Join(errs...)
}
