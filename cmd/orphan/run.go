package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/panbanda/orphan/internal/fileproc"
	"github.com/panbanda/orphan/internal/logging"
	"github.com/panbanda/orphan/internal/output"
	"github.com/panbanda/orphan/internal/progress"
	"github.com/panbanda/orphan/pkg/analyzer"
	"github.com/panbanda/orphan/pkg/analyzer/unused"
	"github.com/panbanda/orphan/pkg/ast"
	"github.com/panbanda/orphan/pkg/ast/clang"
	"github.com/panbanda/orphan/pkg/ast/treesitter"
	"github.com/panbanda/orphan/pkg/compdb"
	"github.com/panbanda/orphan/pkg/config"
	"github.com/panbanda/orphan/pkg/invocation"
	"github.com/panbanda/orphan/pkg/report"
	"github.com/panbanda/orphan/pkg/sysinclude"
	"github.com/urfave/cli/v2"
)

// loadConfig reads the config file selected by --config (or found in the
// working directory) and layers explicitly set flags on top.
func loadConfig(c *cli.Context) (*config.Config, string, error) {
	var opts []config.LoadOption
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}
	result, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, "", err
	}

	cfg := result.Config
	if c.IsSet("compile-commands") {
		cfg.CompileCommands = c.String("compile-commands")
	}
	if c.IsSet("root") {
		cfg.Root = c.String("root")
	}
	if c.IsSet("skip-static") {
		cfg.SkipStatic = c.Bool("skip-static")
	}
	if c.IsSet("skip-inline") {
		cfg.SkipInline = c.Bool("skip-inline")
	}
	if c.IsSet("jobs") {
		cfg.Jobs = c.Int("jobs")
	}
	if c.IsSet("frontend") {
		cfg.Frontend = c.String("frontend")
	}
	if c.IsSet("clang") {
		cfg.Clang = c.String("clang")
	}
	if c.IsSet("format") {
		cfg.Format = c.String("format")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, result.Source, nil
}

func runAnalysis(c *cli.Context) error {
	cfg, source, err := loadConfig(c)
	if err != nil {
		return exitf("invalid configuration: %v", err)
	}
	log := logging.New(c.App.ErrWriter, cfg.Verbose)
	if source != "" {
		log.Debugf("Using configuration from %s", source)
	}

	entries, err := compdb.Load(cfg.CompileCommands)
	if err != nil {
		var cfgErr *compdb.ConfigurationError
		if errors.As(err, &cfgErr) {
			return exitf("%v", cfgErr)
		}
		return err
	}

	root, err := cfg.ProjectRoot()
	if err != nil {
		return exitf("invalid project root: %v", err)
	}

	frontend, prober, err := selectFrontend(cfg)
	if err != nil {
		return exitf("%v", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	invocations := prepare(ctx, entries, prober, log)
	units := unused.Dedupe(invocations)
	log.Debugf("Parsing %d unique translation units using %d worker(s)...", len(units), fileproc.Workers(cfg.Jobs))

	display := progress.NewDisplay("Parsing translation units", log)
	tracker := analyzer.NewTracker(display.Update)
	ctx = analyzer.WithTracker(ctx, tracker)

	a := unused.New(frontend, root,
		unused.WithJobs(cfg.Jobs),
		unused.WithErrorHandler(func(file string, err error) {
			var workerErr *fileproc.WorkerError
			if errors.As(err, &workerErr) {
				log.Errorf("Exception while parsing %s: %v", file, err)
				log.Debugf("%s", workerErr.Stack)
				return
			}
			log.Errorf("Failed to parse %s: %v", file, err)
		}),
	)

	result, err := a.Analyze(ctx, units)
	display.Finish()
	if err != nil {
		return err
	}
	log.Debugf("Collected %d functions from %d translation units", result.Table.Len(), result.Units)
	if failed := tracker.Failed(); failed > 0 {
		log.Warnf("%d of %d translation units could not be parsed", failed, tracker.Total())
	}

	r := report.Build(result.Table, report.Policy{
		SkipStatic: cfg.SkipStatic,
		SkipInline: cfg.SkipInline,
	})
	if err := write(c, cfg, r); err != nil {
		return err
	}
	if cfg.Output != "" {
		log.Infof("Report written to %s", cfg.Output)
	}
	return nil
}

func write(c *cli.Context, cfg *config.Config, r *report.Report) error {
	format := output.ParseFormat(cfg.Format)
	if cfg.Output == "" {
		return output.NewWriterFormatter(format, c.App.Writer, logging.Terminal(c.App.Writer)).Output(r)
	}

	f, err := output.NewFormatter(format, cfg.Output, false)
	if err != nil {
		return err
	}
	if err := f.Output(r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// selectFrontend builds the configured front end. Only the clang front end
// consumes system include arguments, so only it gets a prober.
func selectFrontend(cfg *config.Config) (ast.Frontend, invocation.IncludeProber, error) {
	switch cfg.Frontend {
	case config.FrontendTreeSitter:
		return treesitter.New(), nil, nil
	default:
		fe := clang.New(clang.WithBinary(cfg.Clang))
		if !fe.Available() {
			return nil, nil, fmt.Errorf("%s not found on PATH; install clang or use --frontend treesitter", cfg.Clang)
		}
		return fe, sysinclude.New(), nil
	}
}

// prepare normalizes every entry. Entries that cannot be prepared are
// skipped with a diagnostic.
func prepare(ctx context.Context, entries []compdb.Entry, prober invocation.IncludeProber, log *logging.Logger) []invocation.Prepared {
	n := invocation.NewNormalizer(prober, func(compiler, language string, err error) {
		log.Debugf("No system include paths for %s (%s): %v", compiler, language, err)
	})

	out := make([]invocation.Prepared, 0, len(entries))
	for _, entry := range entries {
		inv, ok, err := n.Prepare(ctx, entry)
		if err != nil {
			log.Warnf("Skipping %s: %v", entry.File, err)
			continue
		}
		if !ok {
			log.Debugf("Skipping %s: no compiler invocation", entry.File)
			continue
		}
		out = append(out, inv)
	}
	return out
}
