package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/oauthkeeper/internal/app"
	"github.com/florianilch/oauthkeeper/internal/observability"
	"github.com/florianilch/oauthkeeper/internal/tokenmanager"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand().Run(ctx, args)
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "oauthkeeper",
		Usage: "OAuth2 access token keeper and authenticating proxy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Sources: cli.EnvVars(envPrefix + "CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "storage--type",
				Usage: "storage backend (memory|file|env|keyring|redis|sqlite)",
			},
			&cli.StringFlag{
				Name:  "storage--file",
				Usage: "path to the JSON document for file storage",
			},
			&cli.StringFlag{
				Name:  "token-endpoint--url",
				Usage: "authorization server token endpoint",
			},
		},
		Commands: []*cli.Command{
			proxyStartCommand(),
			refreshCommand(),
			confirmCommand(),
			tokenCommand(),
			stateCommand(),
			getCommand(),
			setCommand(),
			statusCommand(),
		},
	}
}

func proxyStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "run the authenticating proxy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.StringFlag{
				Name:  "upstream--base-url",
				Usage: "upstream API base URL",
			},
		},
		Action: proxyStartAction,
	}
}

func proxyStartAction(ctx context.Context, cmd *cli.Command) (err error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := instrument(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, shutdown(context.WithoutCancel(ctx)))
	}()

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

func instrument(ctx context.Context, cfg *app.Config) (func(context.Context) error, error) {
	shutdown, err := observability.Instrument(ctx, observability.Config{
		Level:    cfg.LogLevel,
		Format:   string(cfg.LogFormat),
		Exporter: cfg.Telemetry.Exporter,
		Endpoint: cfg.Telemetry.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	return shutdown, nil
}

// managerAction wraps fn with config loading, logging setup and store lifecycle.
func managerAction(fn func(ctx context.Context, cmd *cli.Command, cfg *app.Config, m *tokenmanager.Manager) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) (err error) {
		cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		shutdown, err := instrument(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, shutdown(context.WithoutCancel(ctx)))
		}()

		manager, closeStore, err := app.NewManager(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := closeStore(); closeErr != nil {
				err = errors.Join(err, fmt.Errorf("closing store: %w", closeErr))
			}
		}()

		return fn(ctx, cmd, cfg, manager)
	}
}
