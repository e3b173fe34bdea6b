package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/vidpipe/internal/api"
	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/metrics"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/pipeline/blocks"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
	"github.com/jmylchreest/vidpipe/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline-file>",
	Short: "Run a pipeline from a document",
	Long: `Load a pipeline document (YAML or JSON), instantiate its blocks, and
run the pipeline until interrupted.

When the API is enabled the pipeline can be inspected and controlled over
HTTP, with OpenAPI documentation at /docs and Prometheus metrics at the
configured metrics path.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("api", false, "Enable the HTTP API server")
	runCmd.Flags().String("host", "0.0.0.0", "Host to bind the API server to")
	runCmd.Flags().Int("port", 8080, "Port for the API server")

	mustBindPFlag("api.enabled", runCmd.Flags().Lookup("api"))
	mustBindPFlag("api.host", runCmd.Flags().Lookup("host"))
	mustBindPFlag("api.port", runCmd.Flags().Lookup("port"))
}

func runPipeline(_ *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pipelineCfg, err := config.LoadPipeline(args[0])
	if err != nil {
		return fmt.Errorf("loading pipeline document: %w", err)
	}

	registry := core.NewRegistry(observability.WithComponent(logger, "registry"))
	if err := blocks.RegisterAll(registry); err != nil {
		return fmt.Errorf("registering blocks: %w", err)
	}

	p := core.NewPipeline(registry, observability.WithComponent(logger, "pipeline"))
	if err := p.Initialize(*pipelineCfg); err != nil {
		return fmt.Errorf("initializing pipeline: %w", err)
	}
	defer func() {
		if err := p.Shutdown(); err != nil {
			logger.Error("pipeline shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if err := p.Start(); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	logger.Info("pipeline running",
		slog.String("pipeline", p.Name()),
		slog.String("run_id", p.RunID()),
		slog.Int("blocks", len(p.BlockNames())),
		slog.String("version", version.Version),
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	serverErr := make(chan error, 1)
	if cfg.API.Enabled {
		server := api.NewServer(cfg.API, observability.WithComponent(logger, "api"), version.Version)
		api.NewPipelineHandler(p).Register(server.API())

		if cfg.Metrics.Enabled {
			reg := metrics.NewRegistry(p)
			server.Router().Handle(cfg.Metrics.Path, metrics.Handler(reg))
		}

		go func() {
			serverErr <- server.ListenAndServe(ctx)
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("API server failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	if err := p.Stop(); err != nil {
		return fmt.Errorf("stopping pipeline: %w", err)
	}

	logger.Info("pipeline stopped", slog.String("pipeline", p.Name()))
	return nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
