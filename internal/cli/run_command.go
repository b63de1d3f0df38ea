package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ytbatch/internal/batch"
	"ytbatch/internal/configstore"
	"ytbatch/internal/profile"
	"ytbatch/internal/resolve"
	"ytbatch/internal/runstore"
	"ytbatch/internal/ytdlp"
)

var (
	summaryOKStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	summaryFailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

func runBatch(args []string) error {
	fs := newFlagSet("run")
	config := configFlag(fs)
	input := fs.String("input", "", "batch file: one \"[args] <url>\" per line")
	fs.StringVar(input, "i", "", "shorthand for --input")
	output := fs.String("output", "", "directory yt-dlp runs in")
	fs.StringVar(output, "o", "", "shorthand for --output")
	verbose := fs.Bool("verbose", false, "pass -v to yt-dlp and log debug output")
	fs.BoolVar(verbose, "v", false, "shorthand for --verbose")
	dryRun := fs.Bool("dry-run", false, "classify and resolve, print composed args, download nothing")
	yes := fs.Bool("yes", false, "accept every closest-match suggestion")
	no := fs.Bool("no", false, "decline every closest-match suggestion")
	reportPath := fs.String("report", "", "write a JSON report to this path")
	concurrency := fs.Int("concurrency", 0, "parallel classification calls (0 = config)")
	progress := fs.Bool("progress", true, "show a spinner while classifying (TTY only)")
	jsonOut := fs.Bool("json", false, "print the report as JSON instead of a summary line")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *yes && *no {
		return errors.New("--yes and --no are mutually exclusive")
	}

	urls := fs.Args()
	var lines []string
	if strings.TrimSpace(*input) != "" {
		path, err := configstore.ExpandPath(*input)
		if err != nil {
			return err
		}
		lines, err = batch.ReadFile(path)
		if err != nil {
			return err
		}
	}
	if len(lines) == 0 && len(urls) == 0 {
		return errors.New("nothing to download: pass --input and/or one or more URLs")
	}

	settings, err := configstore.LoadSettings(*config)
	if err != nil {
		return err
	}
	if *concurrency > 0 {
		settings.Engine.Concurrency = *concurrency
	}

	runID := uuid.NewString()
	log := newLogger(os.Stderr, *verbose, runID)
	defer func() { _ = log.Sync() }()

	lock, err := configstore.Lock(*config)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("release config lock", zap.Error(err))
		}
	}()

	doc, err := configstore.Load(*config)
	if err != nil {
		return err
	}

	confirm, err := confirmer(settings.Engine, *yes, *no, stdinIsTTY(), log)
	if err != nil {
		return err
	}

	outDir, err := configstore.ExpandPath(*output)
	if err != nil {
		return err
	}
	engine := &ytdlp.Engine{
		Binary:     settings.Engine.Binary,
		Directory:  settings.Engine.Directory,
		OutputDir:  outDir,
		Verbose:    *verbose,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		EchoOutput: true,
		Logger:     log,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := doc.Store()
	pipeline := &batch.Pipeline{
		Engine:   engine,
		Store:    store,
		Resolver: resolve.New(store, confirm, log),
		Persist: func(s *profile.Store) error {
			return doc.Save(s)
		},
		Out:             os.Stdout,
		Logger:          log,
		RunID:           runID,
		Concurrency:     settings.Engine.Concurrency,
		ClassifyTimeout: settings.Engine.ClassifyTimeout,
		DownloadTimeout: settings.Engine.DownloadTimeout,
		DryRun:          *dryRun,
	}
	if *progress && !*jsonOut && stdoutIsTTY() {
		if total := countInputs(lines, urls); total > 0 {
			hook, stop := classifyProgress(os.Stdout, total)
			pipeline.Progress = hook
			defer stop()
		}
	}

	report, runErr := pipeline.Run(ctx, lines, urls)
	if errors.Is(runErr, batch.ErrClassificationMismatch) {
		return fmt.Errorf("fatal: %w", runErr)
	}
	if runErr != nil {
		return runErr
	}

	if p := strings.TrimSpace(*reportPath); p != "" {
		path, err := configstore.ExpandPath(p)
		if err != nil {
			return err
		}
		if err := runstore.WriteJSON(path, report); err != nil {
			return err
		}
	}
	if *jsonOut {
		return printJSON(report)
	}
	printSummary(report)
	return nil
}

// confirmer picks the decision source for closest-match suggestions.
// --yes and --no win over everything; per-profile rules from the config
// come next, then the confirm mode.
func confirmer(engine configstore.EngineSettings, yes, no, interactive bool, log *zap.Logger) (resolve.Confirmer, error) {
	switch {
	case yes:
		return resolve.Always, nil
	case no:
		return resolve.Never, nil
	}
	c, err := resolve.ParsePolicy(engine.Confirm)
	if err != nil {
		return nil, err
	}
	if c == nil {
		if interactive {
			c = resolve.NewPrompt(os.Stdin, os.Stdout)
		} else {
			log.Warn("stdin is not a terminal; closest-match suggestions are declined (use --yes to accept)")
			c = resolve.Never
		}
	}
	if len(engine.ConfirmRules) > 0 {
		return resolve.NewRules(engine.ConfirmRules, c), nil
	}
	return c, nil
}

func printSummary(report batch.Report) {
	failed := report.Failures()
	total := len(report.Entries)
	if total == 0 {
		fmt.Println("nothing to do")
		return
	}
	line := fmt.Sprintf("done: %d url(s), %d ok", total, total-failed)
	if failed > 0 {
		fmt.Println(summaryOKStyle.Render(line) + ", " + summaryFailStyle.Render(fmt.Sprintf("%d failed", failed)))
	} else {
		fmt.Println(summaryOKStyle.Render(line))
	}
	for _, l := range report.Learned {
		fmt.Printf("learned alias %s -> %s\n", l.Alias, l.Profile)
	}
}
