// Command noteboard-api serves the note API with runtime fault injection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuitang/noteboard/internal/api"
	"github.com/kuitang/noteboard/internal/config"
	"github.com/kuitang/noteboard/internal/db"
	"github.com/kuitang/noteboard/internal/fault"
	"github.com/kuitang/noteboard/internal/httpserver"
	"github.com/kuitang/noteboard/internal/notes"
	"github.com/kuitang/noteboard/internal/obs"
)

const appName = "noteboard-api"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Note API with runtime latency and error injection",
		SilenceUsage: true,
	}

	var (
		devMode    bool
		configPath string
		addr       string
	)
	run := &cobra.Command{
		Use:   "run",
		Short: "Serve the note API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), devMode, configPath, addr)
		},
	}
	run.Flags().BoolVar(&devMode, "dev", false, "Human-readable logs")
	run.Flags().StringVar(&configPath, "config", "", "YAML file with settings (environment variables override it)")
	run.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HOST and PORT)")
	root.AddCommand(run)
	return root
}

func serve(ctx context.Context, devMode bool, configPath, addr string) error {
	obs.Init(devMode)
	logger := obs.Pkg("main")

	cfg, err := config.LoadAPI(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ResolveSecrets(ctx, nil); err != nil {
		return err
	}
	key, err := cfg.StoreKey()
	if err != nil {
		return err
	}

	sqlDB, err := db.Open(ctx, db.Options{Path: cfg.DatabaseURL, Key: key})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer sqlDB.Close()

	faults := fault.NewState()
	metrics := obs.NewMetrics(appName)
	handler := api.NewServer(api.ServerConfig{
		Prefix:   cfg.APIPrefix,
		Store:    notes.NewSQLStore(sqlDB),
		Faults:   faults,
		Injector: fault.NewInjector(faults, fault.WithRecorder(metrics)),
		Metrics:  metrics,
	})

	listen := cfg.ListenAddr()
	if addr != "" {
		listen = addr
	}
	cfg.LogSummary(logger)
	return httpserver.ListenAndServe(ctx, listen, handler, cfg.ShutdownTimeout)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
