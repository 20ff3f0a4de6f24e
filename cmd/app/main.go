package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/clickup-notes/internal"
	pkgconfig "github.com/starford/clickup-notes/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	loaded, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !loaded {
		slog.Info("config file not found, using defaults", slog.String("config", configPath))
	}
	return cfg, nil
}

func convert(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if _, err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("conversion error: %w", err)
	}
	return nil
}

func verify(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rep, err := internal.Verify(ctx, internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("verify error: %w", err)
	}
	if !rep.OK() {
		return fmt.Errorf("output tree %s failed verification", cfg.Output.Path)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "clickup-notes",
		Usage:  "Convert a ClickUp CSV task export into a tree of plain-text notes",
		Action: convert,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "convert",
				Usage:  "Convert the configured export (default action)",
				Action: convert,
			},
			{
				Name:   "verify",
				Usage:  "Re-parse every written note and compare against the run manifest",
				Action: verify,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
