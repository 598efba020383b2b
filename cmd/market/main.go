package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-history/internal/config"
	"github.com/rxtech-lab/argo-history/internal/logger"
	"github.com/rxtech-lab/argo-history/internal/version"
)

// app carries what the subcommands share once the root Before hook has run.
type app struct {
	out    io.Writer
	errOut io.Writer
	config *config.Config
	logger *logger.Logger
	// prompt asks for missing download parameters; replaced in tests.
	prompt func(PromptValues) (PromptValues, error)
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:    out,
		errOut: errOut,
		logger: logger.NewNopLogger(),
		prompt: func(values PromptValues) (PromptValues, error) {
			return RunPrompt(values)
		},
	}
}

// before loads .env and the YAML config, then builds the logger.
func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := config.LoadDotenv(cmd.String("env-file")); err != nil {
		return ctx, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}

	a.config = cfg

	log, err := logger.NewLoggerWithOptions(loggerOptions(cfg, cmd.Bool("verbose")))
	if err != nil {
		return ctx, err
	}

	a.logger = log
	a.logger.Debug("Configuration loaded",
		zap.String("config", cmd.String("config")),
		zap.String("provider", cfg.Provider.Name),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	return ctx, nil
}

// loggerOptions follows the config; verbose switches to debug output on the console encoder.
func loggerOptions(cfg *config.Config, verbose bool) logger.Options {
	if verbose {
		return logger.Options{Level: "debug", Format: "console"}
	}

	return logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:    "market",
		Usage:   "Download and inspect historical OHLCV bars",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config `FILE`",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env `FILE` with credentials",
				Value: ".env",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before: a.before,
		After: func(ctx context.Context, cmd *cli.Command) error {
			_ = a.logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			a.downloadCommand(),
			a.countCommand(),
			a.planCommand(),
			a.fixTZCommand(),
			a.checkCommand(),
			a.providersCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).command().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
