package formexport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the CLI. Configuration comes from the environment
// (a .env file is loaded when present); flags only override the basics.
func NewRootCommand() *cobra.Command {
	var (
		port      string
		cachePath string
		debug     bool
	)

	root := &cobra.Command{
		Use:           "formexport",
		Short:         "Construction forms export service",
		Long:          "formexport serves a construction-cloud forms browsing and export API:\nnormalized form documents, linked-asset resolution, and PDF batch export.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&port, "port", "", "listen port (overrides FORMEXPORT_PORT)")
	root.PersistentFlags().StringVar(&cachePath, "cache", "", "cache file path (overrides FORMEXPORT_CACHE_PATH)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	buildApp := func() (*App, error) {
		// Missing .env is fine; the environment may be set directly.
		_ = godotenv.Load()

		cfg := FromEnv()
		if port != "" {
			cfg.ServerPort = port
		}
		if cachePath != "" {
			cfg.CachePath = cachePath
		}
		return New(cfg, newLogger(debug))
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.config.Validate(); err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the relationship cache",
	}
	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Print cache size and entry counts",
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := buildApp()
				if err != nil {
					return err
				}
				defer app.Close()
				stats, err := app.cache.CollectStats(cmd.Context())
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(stats, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Drop and reinitialize the cache",
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := buildApp()
				if err != nil {
					return err
				}
				defer app.Close()
				if err := app.cache.ClearAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return nil
			},
		},
	)

	root.AddCommand(serve, cacheCmd)
	return root
}

// Main is the entry point shared by the binary and tests.
func Main(ctx context.Context, args []string) error {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
