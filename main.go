package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"github.com/tcnksm/go-latest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"heatbatch/internal/batch"
	"heatbatch/internal/config"
	"heatbatch/internal/engine"
	"heatbatch/internal/model"
	"heatbatch/internal/tui"
	"heatbatch/internal/web"
)

// Exit statuses. A batch file that fails validation is distinguished from a
// run that fails in the engine.
const (
	exitOK         = 0
	exitFailure    = 1
	exitParseError = 2
)

// releaseTag returns the GitHub repository releases are published to.
func releaseTag() (*latest.GithubTag, error) {
	if model.ReleaseOwner == "" || model.ReleaseRepo == "" {
		return nil, errors.New("this build has no release repository configured")
	}
	return &latest.GithubTag{
		Owner:      model.ReleaseOwner,
		Repository: model.ReleaseRepo,
	}, nil
}

func checkUpdate(currentVer string) {
	githubTag, err := releaseTag()
	if err != nil {
		fmt.Printf("Cannot check for updates: %v\n", err)
		return
	}

	res, err := latest.Check(githubTag, currentVer)
	if err != nil {
		return // Silently fail
	}

	if res.Outdated {
		fmt.Printf("\n✨ A new version is available: %s (you have %s)\n", res.Current, currentVer)
		fmt.Printf("👉 Download it from https://github.com/%s/%s/releases\n", githubTag.Owner, githubTag.Repository)
	} else if pflag.Lookup("update").Changed {
		fmt.Printf("✅ You are using the latest version: %s\n", currentVer)
	}
}

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: heatbatch [options] BATCHFILE\n\n")
		fmt.Fprintf(os.Stderr, "heatbatch validates a HEAT batch file and shows the runs it describes.\n")
		fmt.Fprintf(os.Stderr, "Rows sharing a Tag are grouped into one run and ordered by TimeStep.\n")
		fmt.Fprintf(os.Stderr, "With --run each run is handed to the simulation engine in turn.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  HEAT_DATA_PATH, HEAT_REGISTRY, HEAT_SHOT_DIGITS, HEAT_TIME_DIGITS,\n")
		fmt.Fprintf(os.Stderr, "  HEAT_LOG_FORMAT (json|console), HEAT_WEB_ADDR, HEAT_ENGINE_CMD\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  heatbatch batchFile.dat              # Browse the runs (TUI)\n")
		fmt.Fprintf(os.Stderr, "  heatbatch --watch batchFile.dat      # TUI, reloading on every save\n")
		fmt.Fprintf(os.Stderr, "  heatbatch -r -o r.txt batchFile.dat  # Save report to file\n")
		fmt.Fprintf(os.Stderr, "  heatbatch --json batchFile.dat       # Schedule and run plan as JSON\n")
		fmt.Fprintf(os.Stderr, "  heatbatch --run batchFile.dat        # Dry run, or HEAT_ENGINE_CMD per run\n")
		fmt.Fprintf(os.Stderr, "  heatbatch --template batchFile.dat   # Write a commented template\n")
	}

	jsonFlag := pflag.BoolP("json", "j", false, "Output the parsed schedule and run plan as JSON")
	reportFlag := pflag.BoolP("report", "r", false, "Generate a text report of the batch file (CLI mode)")
	outputFlag := pflag.StringP("output", "o", "", "Save report to the specified file (combined with --report)")
	verboseFlag := pflag.BoolP("verbose", "v", false, "Debug logging, and line numbers plus output descriptions in the report")
	webFlag := pflag.BoolP("web", "w", false, "Start Web Mode (address from --addr)")
	versionFlag := pflag.BoolP("version", "V", false, "Print version information")
	updateFlag := pflag.BoolP("update", "u", false, "Check for latest version")
	helpFlag := pflag.BoolP("help", "h", false, "Show this help message")
	templateFlag := pflag.Bool("template", false, "Write a commented batch file template to BATCHFILE")
	runFlag := pflag.Bool("run", false, "Hand every run to the engine, one at a time")
	engineCmdFlag := pflag.StringSlice("engine-cmd", nil, "Engine executable and arguments (overrides HEAT_ENGINE_CMD; empty means dry run)")
	keepGoingFlag := pflag.BoolP("keep-going", "k", false, "With --run, continue past invalid rows and failing runs")
	failFastFlag := pflag.Bool("fail-fast", false, "Stop at the first invalid line instead of reporting all of them")
	watchFlag := pflag.Bool("watch", false, "Reload the TUI whenever the batch file changes")
	registryFlag := pflag.String("registry", "", "YAML file of machines and output kinds (overrides HEAT_REGISTRY)")
	dataPathFlag := pflag.String("data-path", "", "Root of run output directories (overrides HEAT_DATA_PATH)")
	addrFlag := pflag.String("addr", "", "Listen address for --web (overrides HEAT_WEB_ADDR)")
	pflag.Parse()

	if *helpFlag {
		pflag.Usage()
		return
	}

	if *versionFlag {
		fmt.Printf("heatbatch version %s\n", model.Version)
		return
	}

	if *updateFlag {
		checkUpdate(model.Version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
	if *registryFlag != "" {
		cfg.RegistryPath = *registryFlag
	}
	if *dataPathFlag != "" {
		cfg.DataPath = *dataPathFlag
	}
	if *addrFlag != "" {
		cfg.WebAddr = *addrFlag
	}
	if pflag.Lookup("engine-cmd").Changed {
		cfg.EngineCmd = *engineCmdFlag
	}

	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(exitFailure)
	}
	path := pflag.Arg(0)

	reg, err := cfg.Registry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading registry: %v\n", err)
		os.Exit(exitFailure)
	}

	if *templateFlag {
		if err := batch.SaveTemplate(path, reg); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing template: %v\n", err)
			os.Exit(exitFailure)
		}
		fmt.Printf("Template saved to %s\n", path)
		return
	}

	// The TUI owns the terminal, so it never logs.
	logger := zap.NewNop()
	if *webFlag || *reportFlag || *jsonFlag || *runFlag {
		logger, err = newLogger(cfg.LogFormat, *verboseFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
			os.Exit(exitFailure)
		}
	}
	parser := batch.NewParser(reg, batch.WithLogger(logger), batch.WithFailFast(*failFastFlag))

	code := exitOK
	switch {
	case *webFlag:
		s := web.NewServer(path, parser, web.Options{
			DataPath:   cfg.DataPath,
			ShotDigits: cfg.ShotDigits,
			TimeDigits: cfg.TimeDigits,
			Logger:     logger,
		})
		if err := web.StartServer(cfg.WebAddr, s); err != nil {
			logger.Error("Web server stopped", zap.Error(err))
			code = exitFailure
		}
	case *reportFlag:
		code = runReportMode(parser, path, *outputFlag, *verboseFlag)
	case *jsonFlag:
		code = runJSONMode(parser, cfg, path)
	case *runFlag:
		code = runEngineMode(parser, cfg, path, *keepGoingFlag, logger)
	default:
		code = runTuiMode(parser, path, *watchFlag)
	}
	logger.Sync()
	os.Exit(code)
}

func newLogger(format string, verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zcfg.Build()
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var pe *batch.ParseError
	var list *batch.ErrorList
	if errors.As(err, &pe) || errors.As(err, &list) {
		return exitParseError
	}
	return exitFailure
}

func runReportMode(parser *batch.Parser, path, outputFile string, verbose bool) int {
	sched, err := parser.Parse(path)
	if err != nil && exitCode(err) != exitParseError {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	report := batch.GenerateReport(sched, err, parser.Registry(), verbose)

	if outputFile != "" {
		if werr := os.WriteFile(outputFile, []byte(report), 0644); werr != nil {
			fmt.Fprintf(os.Stderr, "Error writing report to %s: %v\n", outputFile, werr)
			return exitFailure
		}
		fmt.Printf("Report saved to %s\n", outputFile)
	} else {
		fmt.Println(report)
	}
	return exitCode(err)
}

type jsonOutput struct {
	Source      string
	Runs        []model.RunDescriptor
	Diagnostics []model.Diagnostic
	Plans       []engine.RunPlan
	Missing     []model.Diagnostic
}

func runJSONMode(parser *batch.Parser, cfg *config.Config, path string) int {
	sched, err := parser.Parse(path)
	if err != nil && exitCode(err) != exitParseError {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	out := jsonOutput{
		Source:      path,
		Runs:        []model.RunDescriptor{},
		Diagnostics: batch.Diagnostics(err),
	}
	if sched != nil {
		layout := engine.NewLayout(sched, cfg.DataPath, cfg.ShotDigits, cfg.TimeDigits)
		out.Source = sched.Source
		out.Runs = sched.Runs
		out.Diagnostics = append(out.Diagnostics, sched.Warnings...)
		out.Plans = engine.Plan(sched, layout)
		out.Missing = engine.Check(out.Plans)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if eerr := enc.Encode(out); eerr != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", eerr)
		return exitFailure
	}
	return exitCode(err)
}

func runEngineMode(parser *batch.Parser, cfg *config.Config, path string, keepGoing bool, logger *zap.Logger) int {
	sched, err := parser.Parse(path)
	if err != nil {
		for _, d := range batch.Diagnostics(err) {
			logger.Error("Invalid batch row", zap.Int("line", d.Line), zap.String("detail", d.Message))
		}
		if sched == nil || !keepGoing {
			logger.Error("Not running batch file", zap.String("path", path), zap.Error(err))
			return exitCode(err)
		}
		logger.Warn("Running the remaining valid runs", zap.Int("runs", len(sched.Runs)))
	}

	var eng engine.Engine = &engine.DryRun{Logger: logger}
	if len(cfg.EngineCmd) > 0 {
		eng = &engine.Command{Argv: cfg.EngineCmd, Stdout: os.Stdout, Logger: logger}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	layout := engine.NewLayout(sched, cfg.DataPath, cfg.ShotDigits, cfg.TimeDigits)
	if rerr := engine.RunAll(ctx, eng, sched, layout, keepGoing, logger); rerr != nil {
		logger.Error("Batch failed", zap.String("engine", eng.Name()), zap.Error(rerr))
		return exitFailure
	}
	logger.Info("Batch complete", zap.String("engine", eng.Name()), zap.Int("runs", len(sched.Runs)))
	if err != nil {
		return exitCode(err)
	}
	return exitOK
}

func runTuiMode(parser *batch.Parser, path string, watch bool) int {
	var watcher *batch.Watcher
	if watch {
		w, err := batch.NewWatcher(path, parser)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error watching %s: %v\n", path, err)
			return exitFailure
		}
		defer w.Stop()
		if err := w.Start(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error watching %s: %v\n", path, err)
			return exitFailure
		}
		watcher = w
	}

	m := tui.InitialModel(path, parser, watcher)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		return exitFailure
	}
	return exitOK
}
