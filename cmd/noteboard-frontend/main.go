// Command noteboard-frontend serves the notes board and proxies the note API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuitang/noteboard/internal/config"
	"github.com/kuitang/noteboard/internal/httpserver"
	"github.com/kuitang/noteboard/internal/obs"
	"github.com/kuitang/noteboard/internal/ratelimit"
	"github.com/kuitang/noteboard/internal/urlutil"
	"github.com/kuitang/noteboard/internal/web"
)

const appName = "noteboard-frontend"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Notes board frontend for the noteboard API",
		SilenceUsage: true,
	}

	var (
		devMode    bool
		configPath string
		addr       string
	)
	run := &cobra.Command{
		Use:   "run",
		Short: "Serve the frontend",
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

	cfg, err := config.LoadFrontend(configPath)
	if err != nil {
		return err
	}
	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}

	limiter := ratelimit.NewRateLimiter(cfg.RateLimit)
	defer limiter.Stop()

	clientKey := urlutil.ClientIP
	if !cfg.TrustForwardedFor {
		clientKey = urlutil.RemoteIP
	}

	handler := web.NewServer(web.ServerConfig{
		Prefix:      cfg.FrontendPrefix,
		Title:       cfg.ProjectName,
		API:         web.NewAPIClient(cfg.APIURL, cfg.UpstreamTimeout, nil),
		Renderer:    renderer,
		RateLimiter: limiter,
		ClientKey:   clientKey,
		Metrics:     obs.NewMetrics(appName),
		HSTSMaxAge:  cfg.HSTSMaxAge,
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
