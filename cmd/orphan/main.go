package main

import (
	"fmt"
	"io"
	"os"

	"github.com/panbanda/orphan/internal/logging"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		logging.Stderr(false).Errorf("%v", err)
		code := 1
		if ec, ok := err.(cli.ExitCoder); ok && ec.ExitCode() != 0 {
			code = ec.ExitCode()
		}
		os.Exit(code)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:    "orphan",
		Usage:   "Find C and C++ functions that are never used outside their defining file",
		Version: version,
		Description: `orphan reads a compilation database, parses every translation unit and
reports functions that are only referenced from the file that defines them,
or never referenced at all.`,
		Writer:    stdout,
		ErrWriter: stderr,
		// Exit codes are decided in main so that tests can run the app.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags:          analysisFlags(),
		Action:         runAnalysis,
		Commands: []*cli.Command{
			configCmd(),
		},
	}
}

func analysisFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to config file (TOML, YAML, or JSON)",
			EnvVars: []string{"ORPHAN_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "compile-commands",
			Aliases: []string{"p"},
			Usage:   "Path to compile_commands.json",
		},
		&cli.StringFlag{
			Name:  "root",
			Usage: "Project root (default: directory of the compilation database)",
		},
		&cli.BoolFlag{
			Name:  "skip-static",
			Usage: "Do not report functions with internal linkage",
		},
		&cli.BoolFlag{
			Name:  "skip-inline",
			Usage: "Do not report inline functions",
		},
		&cli.IntFlag{
			Name:    "jobs",
			Aliases: []string{"j"},
			Usage:   "Parallel workers (0 = all CPUs)",
		},
		&cli.StringFlag{
			Name:  "frontend",
			Usage: "Parser front end: clang, treesitter",
		},
		&cli.StringFlag{
			Name:  "clang",
			Usage: "clang binary used by the clang front end",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: text, table, json, markdown, toon",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write output to file",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Print progress information to stderr",
		},
	}
}

// exitf builds a configuration failure that exits with status 1.
func exitf(format string, args ...any) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(format, args...), 1)
}
