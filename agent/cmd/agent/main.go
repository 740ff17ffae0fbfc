package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/valuemetric/agent/internal/config"
	"github.com/obsidianstack/valuemetric/agent/internal/ingest"
	"github.com/obsidianstack/valuemetric/agent/internal/pipeline"
	"github.com/obsidianstack/valuemetric/agent/internal/scraper"
	"github.com/obsidianstack/valuemetric/agent/internal/shipper"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "valuemetric-agent",
	Short: "Aggregates pulled and pushed values into bucketed reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
	SilenceUsage: true,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d sources, %d conditions, %d metrics\n",
			len(cfg.Agent.Sources), len(cfg.Agent.Conditions), len(cfg.Agent.Metrics))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log at debug level")
	rootCmd.AddCommand(validateCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("valuemetric-agent starting", "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return err
	}
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"sources", len(cfg.Agent.Sources),
		"conditions", len(cfg.Agent.Conditions),
		"metrics", len(cfg.Agent.Metrics),
	)

	pulls := scraper.NewManager(cfg.Agent.PullCooldown)
	for _, src := range cfg.Agent.Sources {
		s, err := scraper.New(src)
		if err != nil {
			return fmt.Errorf("source %q: %w", src.ID, err)
		}
		pulls.AddSource(src.ID, s)
		slog.Info("registered source", "id", src.ID, "endpoint", src.Endpoint)
	}

	ship := shipper.New(cfg.Agent)
	pipe, err := pipeline.New(cfg.Agent, pulls, ship, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/v1/", ingest.New(pipe, cfg.Agent.MaxClockSkew))
	httpSrv := &http.Server{Addr: cfg.Agent.HTTPListen, Handler: mux}

	// The shipper outlives the pipeline so the final reports get sent.
	shipCtx, stopShip := context.WithCancel(context.Background())
	defer stopShip()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ship.Run(shipCtx)
		return nil
	})
	g.Go(func() error {
		defer stopShip()
		return pipe.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", cfg.Agent.HTTPListen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		// Changes take effect on restart; the reload only reports them.
		err := config.Watch(gctx, configPath, func(updated *config.Config) {
			slog.Info("config changed on disk, restart to apply",
				"metrics_changed", config.ChangedMetrics(cfg, updated))
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("valuemetric-agent stopped")
	return err
}
