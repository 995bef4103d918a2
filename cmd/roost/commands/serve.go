package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/roost/internal/config"
	"github.com/dyluth/roost/internal/printer"
	"github.com/dyluth/roost/internal/transport"
	"github.com/dyluth/roost/pkg/backplane"
	"github.com/dyluth/roost/pkg/hub"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a roost hub server",
	Long: `Run a roost hub server using the configuration in roost.yml.

The server accepts WebSocket connections on the configured endpoint. When a
Redis backplane is configured (roost.yml or the REDIS_URL environment
variable), broadcasts are replicated to every peer process on the same
instance channel; without one the hub runs local-only.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "roost.yml", "Path to configuration file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return printer.Error("Invalid configuration",
			err.Error(),
			[]string{"Check " + serveConfigPath + " against the documented schema"})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Environment overrides, matching container deployments where the
	// Redis location is injected rather than baked into the config file.
	redisURL := os.Getenv("REDIS_URL")
	instanceName := os.Getenv("ROOST_INSTANCE_NAME")
	if cfg.Redis != nil {
		if redisURL == "" {
			redisURL = cfg.Redis.URL
		}
		if instanceName == "" {
			instanceName = cfg.Redis.Instance
		}
	}

	var bp *backplane.Adapter
	if redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			return printer.Error("Invalid Redis URL",
				err.Error(),
				[]string{"Set redis.url in roost.yml or the REDIS_URL environment variable to a redis:// URL"})
		}

		bp, err = backplane.New(redisOpts, instanceName)
		if err != nil {
			return printer.Error("Invalid backplane configuration", err.Error(), nil)
		}
		defer bp.Close()

		if err := bp.Ping(ctx); err != nil {
			// Not fatal: the adapter reconnects with backoff and the hub
			// serves local traffic meanwhile.
			printer.Warning("Redis not reachable yet, starting in local-only mode: %v\n", err)
		}
	}

	registry := hub.NewRegistry(hub.RegistryConfig{
		ShardCount:     cfg.ShardCount(),
		MaxConnections: cfg.Server.MaxConnections,
	})
	groups := hub.NewGroupManager(registry)
	registry.OnUnregister(groups.RemoveConnectionEverywhere)

	dispatcher := newDispatcher(registry, groups, bp)

	if bp != nil {
		go bp.Run(ctx, dispatcher)
		printer.Info("Backplane enabled on instance '%s' (node %s)\n", instanceName, bp.NodeID())
	} else {
		printer.Info("No backplane configured, running local-only\n")
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.EndpointPath(), transport.NewServer(registry, groups, dispatcher))

	server := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	printer.Success("Roost listening on %s%s\n", cfg.Server.Listen, cfg.Server.EndpointPath())

	select {
	case <-ctx.Done():
		printer.Info("Shutting down...\n")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return printer.Error("Server failed", err.Error(), nil)
	}
}

// newDispatcher builds the dispatcher with the server's built-in targets and
// filter chain. The hub.Backplane interface cannot hold a typed nil adapter,
// hence the split construction.
func newDispatcher(registry *hub.Registry, groups *hub.GroupManager, bp *backplane.Adapter) *hub.Dispatcher {
	chain := hub.NewChain(newLoggingFilter())

	var dispatcher *hub.Dispatcher
	if bp != nil {
		dispatcher = hub.NewDispatcher(registry, groups, chain, bp)
	} else {
		dispatcher = hub.NewDispatcher(registry, groups, chain, nil)
	}

	// Diagnostic target so deployments can verify end-to-end dispatch.
	dispatcher.Handle("ping", func(ctx context.Context, inv *hub.Invocation) ([]byte, error) {
		return []byte(`"pong"`), nil
	})

	return dispatcher
}
