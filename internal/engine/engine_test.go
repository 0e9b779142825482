package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"heatbatch/internal/batch"
	"heatbatch/internal/model"
)

const batchText = `MachFlag, Tag, Shot, TimeStep, GEQDSK, CAD, PFC, Input, Output
nstx, run1, 204118, 0.005, g204118.00005, IBDH.step, PFCs.csv, NSTXU_input.csv, hfOpt:B
nstx, run1, 204118, 0.004, g204118.00004, IBDH.step, PFCs.csv, NSTXU_input.csv, hfOpt:B
d3d, run2, 1, 1.5, g1.01500, tiles.step, pfc.csv, in.csv, T
`

// fixture writes the batch file and, when complete is set, every file it references.
func fixture(t *testing.T, complete bool) (*model.Schedule, Layout) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "batchFile.dat")
	require.NoError(t, os.WriteFile(path, []byte(batchText), 0o644))

	sched, err := batch.NewParser(nil).Parse(path)
	require.NoError(t, err)

	if complete {
		for _, run := range sched.Runs {
			require.NoError(t, os.MkdirAll(filepath.Join(dir, run.Machine), 0o755))
			files := []string{run.CAD, run.PFC}
			for _, ts := range run.Timesteps() {
				files = append(files, ts.GEQDSK, ts.Input)
			}
			for _, f := range files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, run.Machine, f), nil, 0o644))
			}
		}
	}
	return sched, NewLayout(sched, filepath.Join(dir, "data"), 6, 9)
}

func TestLayout(t *testing.T) {
	l := Layout{BatchDir: "/cases", DataPath: "/data", ShotDigits: 6, TimeDigits: 3}
	run := model.RunDescriptor{Machine: "nstx", Tag: "run1", Shot: 4118}

	assert.Equal(t, "/cases/nstx/g.00004", l.Resolve("nstx", "g.00004"))
	assert.Equal(t, "/data/nstx_004118_run1", l.OutputDir(run))
	assert.Equal(t, "0.004", l.FormatTime(0.004))
}

func TestPlan(t *testing.T) {
	sched, layout := fixture(t, false)
	plans := Plan(sched, layout)
	require.Len(t, plans, 2)

	p := plans[0]
	assert.Equal(t, "run1", p.Tag)
	assert.Equal(t, filepath.Join(layout.BatchDir, "nstx", "IBDH.step"), p.CAD)
	assert.Equal(t, filepath.Join(layout.DataPath, "nstx_204118_run1"), p.OutputDir)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "0.004000000", p.Steps[0].Time)
	assert.Equal(t, filepath.Join(layout.BatchDir, "nstx", "g204118.00004"), p.Steps[0].GEQDSK)
	assert.Equal(t, 3, p.Steps[0].Line)
}

func TestCheck(t *testing.T) {
	sched, layout := fixture(t, false)
	diags := Check(Plan(sched, layout))
	// run1: CAD, PFC, two GEQDSK, one shared input; run2: CAD, PFC, GEQDSK, input.
	assert.Len(t, diags, 9)
	assert.Equal(t, model.SeverityError, diags[0].Severity)
	assert.Equal(t, 2, diags[0].Line)
	assert.Contains(t, diags[0].Message, "CAD file")

	sched, layout = fixture(t, true)
	assert.Empty(t, Check(Plan(sched, layout)))
}

func TestDryRun(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	eng := &DryRun{Logger: zap.New(core)}

	sched, layout := fixture(t, true)
	require.NoError(t, RunAll(context.Background(), eng, sched, layout, false, nil))
	assert.Equal(t, 2, logs.FilterMessage("Run planned").Len())

	sched, layout = fixture(t, false)
	err := RunAll(context.Background(), eng, sched, layout, false, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFiles))
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, "run1", runErr.Tag)
}

type recordingEngine struct {
	fail map[string]bool
	ran  []string
}

func (r *recordingEngine) Name() string { return "recording" }

func (r *recordingEngine) Run(ctx context.Context, plan RunPlan) error {
	r.ran = append(r.ran, plan.Tag)
	if r.fail[plan.Tag] {
		return errors.New("boom")
	}
	return nil
}

func TestRunAll(t *testing.T) {
	sched, layout := fixture(t, false)

	t.Run("stops at first failure", func(t *testing.T) {
		eng := &recordingEngine{fail: map[string]bool{"run1": true}}
		err := RunAll(context.Background(), eng, sched, layout, false, nil)
		require.Error(t, err)
		assert.Equal(t, []string{"run1"}, eng.ran)
	})

	t.Run("keep going joins failures", func(t *testing.T) {
		eng := &recordingEngine{fail: map[string]bool{"run1": true, "run2": true}}
		err := RunAll(context.Background(), eng, sched, layout, true, nil)
		require.Error(t, err)
		assert.Equal(t, []string{"run1", "run2"}, eng.ran)
		assert.Contains(t, err.Error(), `run "run2"`)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		eng := &recordingEngine{}
		err := RunAll(ctx, eng, sched, layout, true, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, eng.ran)
	})
}

func TestEnviron(t *testing.T) {
	sched, layout := fixture(t, false)
	env := Environ(PlanRun(sched.Runs[0], layout))

	assert.Contains(t, env, "HEAT_MACHINE=nstx")
	assert.Contains(t, env, "HEAT_SHOT=204118")
	assert.Contains(t, env, "HEAT_TIMESTEPS=0.004000000:0.005000000")
	assert.Contains(t, env, "HEAT_OUTPUTS=hfOpt:B")
}

func TestCommand(t *testing.T) {
	sched, layout := fixture(t, true)
	core, logs := observer.New(zapcore.InfoLevel)
	var stdout bytes.Buffer

	eng := &Command{
		Argv:   []string{"sh", "-c", `echo "$HEAT_TAG $HEAT_GEQDSK"; echo "solver warming up" >&2`},
		Stdout: &stdout,
		Logger: zap.New(core),
	}
	plan := PlanRun(sched.Runs[0], layout)
	require.NoError(t, eng.Run(context.Background(), plan))

	assert.True(t, strings.HasPrefix(stdout.String(), "run1 "+filepath.Join(layout.BatchDir, "nstx", "g204118.00004")))
	assert.Equal(t, 1, logs.FilterMessage("solver warming up").Len())
	assert.DirExists(t, plan.OutputDir)
	assert.Equal(t, "sh", eng.Name())
}

func TestCommandFailure(t *testing.T) {
	sched, layout := fixture(t, false)
	eng := &Command{Argv: []string{"sh", "-c", "exit 3"}}
	err := eng.Run(context.Background(), PlanRun(sched.Runs[1], layout))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")

	err = (&Command{}).Run(context.Background(), PlanRun(sched.Runs[1], layout))
	assert.Error(t, err)
}

func TestCommandCancel(t *testing.T) {
	sched, layout := fixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	eng := &Command{Argv: []string{"sh", "-c", "exec sleep 10"}}

	errCh := make(chan error, 1)
	go func() { errCh <- eng.Run(ctx, PlanRun(sched.Runs[0], layout)) }()
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestForwardLinesSplitsLongLines(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	long := strings.Repeat("x", 3*stderrChunk+10)
	forwardLines(strings.NewReader(long+"\nnext\n"), zap.New(core))

	var got strings.Builder
	entries := logs.AllUntimed()
	require.Len(t, entries, 5)
	for _, e := range entries[:4] {
		got.WriteString(e.Message)
	}
	assert.Equal(t, long, got.String())
	assert.Equal(t, "next", entries[4].Message)
}

func TestCommandLongStderrLine(t *testing.T) {
	sched, layout := fixture(t, false)
	core, logs := observer.New(zapcore.InfoLevel)
	// 2 MiB without a newline, then a short line, then 1 MiB more.
	script := `head -c 2097152 /dev/zero | tr '\0' x >&2; echo >&2; echo done >&2; head -c 1048576 /dev/zero | tr '\0' y >&2`
	eng := &Command{Argv: []string{"sh", "-c", script}, Logger: zap.New(core)}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, eng.Run(ctx, PlanRun(sched.Runs[0], layout)))
	assert.Equal(t, 1, logs.FilterMessage("done").Len())
}
