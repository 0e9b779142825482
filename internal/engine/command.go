package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const stderrChunk = 64 * 1024

// Command hands each run to an external simulator executable, for example a
// wrapper that starts the HEAT container. The run is described through
// HEAT_* environment variables; list values are separated by ':'.
type Command struct {
	Argv   []string
	Env    []string // Extra KEY=VALUE pairs, appended after the inherited environment
	Stdout io.Writer
	Logger *zap.Logger
}

func (c *Command) Name() string {
	if len(c.Argv) == 0 {
		return "command"
	}
	return c.Argv[0]
}

// Environ returns the HEAT_* variables describing plan.
func Environ(plan RunPlan) []string {
	var times, geqdsks, inputs []string
	for _, s := range plan.Steps {
		times = append(times, s.Time)
		geqdsks = append(geqdsks, s.GEQDSK)
		inputs = append(inputs, s.Input)
	}
	return []string{
		"HEAT_MACHINE=" + plan.Machine,
		"HEAT_TAG=" + plan.Tag,
		"HEAT_SHOT=" + strconv.Itoa(plan.Shot),
		"HEAT_TIMESTEPS=" + strings.Join(times, ":"),
		"HEAT_GEQDSK=" + strings.Join(geqdsks, ":"),
		"HEAT_INPUTS=" + strings.Join(inputs, ":"),
		"HEAT_CAD=" + plan.CAD,
		"HEAT_PFC=" + plan.PFC,
		"HEAT_OUTPUTS=" + strings.Join(plan.Outputs, ":"),
		"HEAT_OUTPUT_DIR=" + plan.OutputDir,
	}
}

// Run starts the executable and waits for it. Stderr is forwarded line by
// line to the logger; cancelling ctx kills the process.
func (c *Command) Run(ctx context.Context, plan RunPlan) error {
	if len(c.Argv) == 0 {
		return errors.New("no engine command configured")
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(plan.OutputDir, 0o775); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Env = append(cmd.Env, Environ(plan)...)
	cmd.Dir = plan.OutputDir
	cmd.Stdout = c.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Argv[0], err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		forwardLines(stderr, logger.With(zap.String("tag", plan.Tag), zap.String("stream", "stderr")))
	}()

	// Wait closes the pipe, so every stderr line has to be read first.
	wg.Wait()
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", c.Argv[0], err)
	}
	return nil
}

// forwardLines logs r line by line until EOF. Lines longer than the read
// buffer are logged in pieces so the writer is never left blocked on a full pipe.
func forwardLines(r io.Reader, logger *zap.Logger) {
	br := bufio.NewReaderSize(r, stderrChunk)
	for {
		line, _, err := br.ReadLine()
		if len(line) > 0 {
			logger.Info(string(line))
		}
		if err != nil {
			if err != io.EOF {
				logger.Warn("Stopped reading engine output", zap.Error(err))
				io.Copy(io.Discard, r)
			}
			return
		}
	}
}
