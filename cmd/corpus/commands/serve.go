package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/logging"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/server"
)

// NewServeCmd constructs the `corpus serve` command, which starts the HTTP
// API server over the retrieval core.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the corpus HTTP API server",
		Long: `Start the HTTP server exposing ingestion, search, deletion, and
retrieval quality metrics as a REST API, plus Prometheus /metrics.

The background decay sweep runs inside the server process on the configured
interval. Set CORPUS_API_KEY to require Bearer authentication.

Examples:
  corpus serve
  corpus serve --port 9090
  CORPUS_API_KEY=sekret corpus serve --host 0.0.0.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			cfg := loadedCfg
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			rt, err := buildRuntime(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.close()

			if err := rt.service.Start(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.service.Stop()
			log.Info("retrieval core ready",
				slog.String("tuning_revision", cfg.Tuning.Revision),
				slog.Bool("rerank", cfg.Rerank.Enabled),
				slog.Bool("decay_sweep", cfg.Decay.Enabled),
			)

			pingers := []server.Pinger{
				server.NewStorePinger(rt.vectors),
				server.NewEndpointPinger(cfg.Embedding.Endpoint, "embedder"),
			}
			if cfg.Rerank.Enabled && cfg.Rerank.Endpoint != "" {
				pingers = append(pingers, server.NewEndpointPinger(cfg.Rerank.Endpoint, "reranker"))
			}

			srv, err := server.New(rt.service, &server.Config{
				Host:      cfg.Server.Host,
				Port:      cfg.Server.Port,
				Logger:    log,
				Pingers:   pingers,
				RateLimit: cfg.Server.RateLimit,
				RateBurst: cfg.Server.RateBurst,
				APIKey:    cfg.Server.APIKey,
				Registry:  rt.registry,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
