package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/teologia/internal"
	pkgconfig "github.com/starford/teologia/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func importStudies(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("import: at least one file or directory is required")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	// Keep stdout for the summary.
	opts = append(opts, internal.WithLogOutput(os.Stderr))

	res, err := internal.Import(ctx, paths, opts...)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	for _, s := range res.Created {
		fmt.Fprintf(cmd.Root().Writer, "+ %s  [%s]  %s\n", s.ID, s.Topic, s.Title)
	}
	fmt.Fprintf(cmd.Root().Writer, "created: %d, skipped: %d\n", len(res.Created), res.Skipped)
	return nil
}

func topics(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	opts = append(opts, internal.WithLogOutput(os.Stderr))

	counts, err := internal.Topics(ctx, opts...)
	if err != nil {
		return fmt.Errorf("topics: %w", err)
	}
	w := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
	for _, tc := range counts {
		fmt.Fprintf(w, "%s\t%d\n", tc.Topic, tc.Count)
	}
	return w.Flush()
}

func main() {
	cmd := &cli.Command{
		Name:    "teologia",
		Usage:   "Personal theology study notebook backed by a single JSON file",
		Version: version,
		Action:  serve,
		// Flags are inherited by the subcommands.
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
				Name:   "serve",
				Usage:  "Start the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the library to MCP clients over stdio",
				Action: mcp,
			},
			{
				Name:      "import",
				Usage:     "Record one study per Markdown file",
				ArgsUsage: "<file-or-dir>...",
				Action:    importStudies,
			},
			{
				Name:   "topics",
				Usage:  "Print the number of studies per topic",
				Action: topics,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
