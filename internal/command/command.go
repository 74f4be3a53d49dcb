// Package command defines the grouparchive and groupreplay command lines.
//
// Both use urfave/cli/v2. Flags come before the single positional
// argument:
//
//	grouparchive --download_attachment "Family"
//	groupreplay --resume '#family-archive'
package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/matheus3301/grouparchive/internal/app"
	"github.com/matheus3301/grouparchive/internal/config"
	"github.com/matheus3301/grouparchive/internal/paths"
	"github.com/matheus3301/grouparchive/internal/replay"
)

// Build information, set via ldflags.
var Version = "dev"

// Extract creates the grouparchive application.
func Extract() *cli.App {
	return &cli.App{
		Name:      "grouparchive",
		Usage:     "Snapshot a group's full message history into SQLite",
		UsageText: "grouparchive [flags] GROUP\n\nReads " + config.GroupMeTokenEnv + " from the environment or ./.env.",
		ArgsUsage: "GROUP",
		Version:   Version,
		Flags: append(commonFlags(),
			&cli.BoolFlag{
				Name:  "download_attachment",
				Usage: "Save image attachments locally",
			},
			&cli.StringFlag{
				Name:  "download_location",
				Usage: "Directory for saved attachments (default from config, attachments)",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Print snapshot counts when done",
			},
		),
		Before: loadEnv,
		Action: func(c *cli.Context) error {
			if c.Bool("write_config") {
				return writeConfig(c)
			}
			p, err := extractParams(c)
			if err != nil {
				return err
			}
			return run(app.ExtractModule(p))
		},
		HideHelpCommand: true,
	}
}

// Replay creates the groupreplay application.
func Replay() *cli.App {
	return &cli.App{
		Name:      "groupreplay",
		Usage:     "Post a snapshot into a chat channel in chronological order",
		UsageText: "groupreplay [flags] CHANNEL\n\nReads " + config.SlackTokenEnv + " from the environment or ./.env.",
		ArgsUsage: "CHANNEL",
		Version:   Version,
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:  "attachment_location",
				Usage: "Directory attachments were saved to",
			},
			&cli.IntFlag{
				Name:  "start_index",
				Usage: "Ordinal of the first row to deliver",
			},
			&cli.BoolFlag{
				Name:  "resume",
				Usage: "Start from the last checkpoint for this channel (ignored with --start_index)",
			},
		),
		Before: loadEnv,
		Action: func(c *cli.Context) error {
			if c.Bool("write_config") {
				return writeConfig(c)
			}
			p, err := replayParams(c)
			if err != nil {
				return err
			}
			return run(app.ReplayModule(p))
		},
		HideHelpCommand: true,
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "database",
			Usage: "Snapshot database path (default from config, database.db)",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Config file (default $GROUPARCHIVE_CONFIG or ~/.grouparchive/config.toml)",
		},
		&cli.StringFlag{
			Name:  "metrics_file",
			Usage: "Write run counters in Prometheus text format",
		},
		&cli.BoolFlag{
			Name:  "write_config",
			Usage: "Write the effective config (file, defaults and --database) to the config path and exit",
		},
	}
}

// writeConfig saves the effective config so later runs can drop the flags.
func writeConfig(c *cli.Context) error {
	path := paths.ResolveConfig(c.String("config"))
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if db := c.String("database"); db != "" {
		cfg.Database = db
	}
	if loc := c.String("download_location"); loc != "" {
		cfg.DownloadLocation = loc
	}
	if loc := c.String("attachment_location"); loc != "" {
		cfg.AttachmentLocation = loc
	}
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("save config %s: %w", path, err)
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}

func loadEnv(_ *cli.Context) error {
	return config.LoadEnv(".env")
}

func settings(c *cli.Context) app.Settings {
	return app.Settings{
		ConfigPath:  c.String("config"),
		Database:    c.String("database"),
		MetricsFile: c.String("metrics_file"),
	}
}

func positional(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 || c.Args().First() == "" {
		return "", fmt.Errorf("expected exactly one %s argument after the flags, got %d", name, c.NArg())
	}
	return c.Args().First(), nil
}

func extractParams(c *cli.Context) (app.ExtractParams, error) {
	group, err := positional(c, "GROUP")
	if err != nil {
		return app.ExtractParams{}, err
	}
	return app.ExtractParams{
		Settings:         settings(c),
		Group:            group,
		Download:         c.Bool("download_attachment"),
		DownloadLocation: c.String("download_location"),
		Stats:            c.Bool("stats"),
	}, nil
}

func replayParams(c *cli.Context) (app.ReplayParams, error) {
	channel, err := positional(c, "CHANNEL")
	if err != nil {
		return app.ReplayParams{}, err
	}
	start := c.Int("start_index")
	if start < 0 {
		return app.ReplayParams{}, fmt.Errorf("--start_index must not be negative, got %d", start)
	}
	return app.ReplayParams{
		Settings:           settings(c),
		Channel:            channel,
		AttachmentLocation: c.String("attachment_location"),
		StartIndex:         start,
		StartSet:           c.IsSet("start_index"),
		Resume:             c.Bool("resume"),
	}, nil
}

func run(stage fx.Option) error {
	code, err := app.Run(stage)
	if err != nil {
		return err
	}
	if code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// ResumeHint tells the operator how to retry the row a replay stopped on.
// It returns "" for errors that did not come from a delivered row.
func ResumeHint(err error) string {
	var fatal *replay.FatalError
	if !errors.As(err, &fatal) {
		return ""
	}
	return fmt.Sprintf("rerun with --start_index %d to retry message %s", fatal.Ordinal, fatal.MessageID)
}
