package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deepreport/internal/config"
	"deepreport/internal/database"
	"deepreport/internal/docs"
	"deepreport/internal/log"
	"deepreport/internal/metrics"
	"deepreport/internal/server"
	"deepreport/internal/services/tracker"
	"deepreport/internal/store"
)

var seedFile string

var rootCmd = &cobra.Command{
	Use:           "deepreport",
	Short:         "Research report tracker and Google Docs publisher",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the scheduler and the metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer zap.S().Sync() //nolint:errcheck

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		app, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.shutdown()

		if resumed, err := app.tracker.ResumeAll(ctx); err != nil {
			zap.S().Warnw("failed to resume tracking", "error", err)
		} else if resumed > 0 {
			zap.S().Infof("resumed tracking for %d reports", resumed)
		}

		if err := app.startScheduler(); err != nil {
			zap.S().Warnw("failed to start scheduler", "error", err)
			app.scheduler.Stop()
			app.scheduler = nil
		}

		deps, err := app.serverDeps()
		if err != nil {
			return err
		}
		deps.Metrics = metrics.NewMiddleware("api_server")
		deps.Metrics.MustRegisterDefault()

		srv, err := server.New(cfg, deps)
		if err != nil {
			return err
		}

		listener, err := net.Listen("tcp", cfg.Service.Address)
		if err != nil {
			return fmt.Errorf("creating listener: %w", err)
		}
		return srv.Run(ctx, listener)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the database and optionally apply a seed file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer zap.S().Sync() //nolint:errcheck

		db, err := database.Init(cfg)
		if err != nil {
			return err
		}
		defer database.Close(db) //nolint:errcheck

		path := seedFile
		if path == "" {
			path = cfg.Service.SeedFile
		}
		if path == "" {
			zap.S().Info("database migrated")
			return nil
		}

		seed, err := config.LoadSeed(path)
		if err != nil {
			return err
		}
		if err := store.NewStore(db).Seed(cmd.Context(), seed); err != nil {
			return fmt.Errorf("applying seed: %w", err)
		}
		zap.S().Infow("database migrated and seeded", "users", len(seed.Users), "report_types", len(seed.ReportTypes))
		return nil
	},
}

var trackCmd = &cobra.Command{
	Use:   "track <reportID>",
	Short: "Poll one researching report in the foreground until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer zap.S().Sync() //nolint:errcheck

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		app, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.shutdown()

		reportID := args[0]
		updates, unsubscribe := app.broker.Subscribe(tracker.EventTopic(reportID))
		defer unsubscribe()

		out := json.NewEncoder(cmd.OutOrStdout())
		go func() {
			for event := range updates {
				_ = out.Encode(event.Payload)
			}
		}()

		if _, err := app.tracker.StartTracking(reportID); err != nil {
			return err
		}
		if err := app.tracker.Wait(ctx, reportID); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		report, err := app.store.Report().Get(context.Background(), reportID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "report %s is %s\n", report.ID, report.Status)
		if report.ErrorMessage != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", report.ErrorMessage)
		}
		return nil
	},
}

var translateCmd = &cobra.Command{
	Use:   "translate <file>",
	Short: "Print the Docs batchUpdate requests for a Markdown file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		out := json.NewEncoder(cmd.OutOrStdout())
		out.SetIndent("", "  ")
		return out.Encode(map[string]any{"requests": docs.Translate(string(content), 1)})
	},
}

func init() {
	migrateCmd.Flags().StringVar(&seedFile, "seed", "", "YAML seed file with users and report types")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(translateCmd)
}

// setup reads the configuration and installs the global logger.
func setup() (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel))
	zap.ReplaceGlobals(logger)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
