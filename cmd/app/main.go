package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/brightline/internal"
	pkgconfig "github.com/starford/brightline/pkg/config"
)

const defaultConfigPath = "config/config.yaml"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// commandLogger logs to stderr (or the configured file) so stdout stays
// clean for command output and the MCP stdio transport.
func commandLogger(cfg *internal.Config, w io.Writer) (*slog.Logger, func() error) {
	return internal.NewLogger(cfg.App, w)
}

func serve(components ...internal.Component) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithComponents(components...),
		}

		if err := internal.Run(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "brightline",
		Usage: "Agency site and blog front-end with a reference backend, Markdown importer and MCP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigPath,
				Value:       defaultConfigPath,
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the web front-end (plus the embedded backend and importer watch when configured)",
				Action: serve(),
			},
			{
				Name:   "backend",
				Usage:  "Run only the reference backend",
				Action: serve(internal.ComponentBackend),
			},
			loginCommand(),
			logoutCommand(),
			whoamiCommand(),
			postsCommand(),
			importCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
