package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/panbanda/orphan/pkg/config"
	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the effective configuration",
				Description: `Shows the configuration after applying the config file and flags.

Examples:
  orphan config show                   # TOML
  orphan --jobs 0 config show --yaml   # YAML, with flag overrides`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yaml",
						Usage: "Print YAML instead of TOML",
					},
				},
				Action: runConfigShow,
			},
			{
				Name:      "validate",
				Usage:     "Validate a configuration file",
				ArgsUsage: "[file]",
				Description: `Validates an orphan configuration file for syntax errors and invalid values.

Examples:
  orphan config validate               # Validates default config locations
  orphan config validate orphan.toml   # Validates a specific file`,
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigShow(c *cli.Context) error {
	cfg, source, err := loadConfig(c)
	if err != nil {
		return exitf("invalid configuration: %v", err)
	}

	w := c.App.Writer
	if source != "" {
		fmt.Fprintf(w, "# Configuration from: %s\n\n", source)
	} else {
		fmt.Fprintln(w, "# Default configuration (no config file found)")
	}

	var content []byte
	if c.Bool("yaml") {
		content, err = yaml.Marshal(cfg)
	} else {
		content, err = toml.Marshal(*cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(w, string(content))
	return nil
}

func runConfigValidate(c *cli.Context) error {
	var opts []config.LoadOption
	if path := c.Args().First(); path != "" {
		opts = append(opts, config.WithPath(path))
	} else if path := c.String("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}

	result, err := config.LoadConfig(opts...)
	if err != nil {
		fmt.Fprintln(c.App.ErrWriter, color.RedString("Configuration validation failed:"))
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(c.App.ErrWriter, "  - %s\n", line)
		}
		return exitf("invalid configuration")
	}

	if result.Source != "" {
		fmt.Fprintln(c.App.Writer, color.GreenString("Configuration valid: %s", result.Source))
	} else {
		fmt.Fprintln(c.App.Writer, color.YellowString("No config file found. Default configuration is valid."))
	}
	return nil
}
