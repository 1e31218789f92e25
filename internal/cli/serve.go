package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/conflux/internal/observability"
	"github.com/harun/conflux/internal/tracing"
	"github.com/harun/conflux/pkg/agent"
	"github.com/harun/conflux/pkg/chat"
	"github.com/harun/conflux/pkg/commandqueue"
	"github.com/harun/conflux/pkg/conversation"
	"github.com/harun/conflux/pkg/gateway"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	queueDrainTimeout = 30 * time.Second
	pruneInterval     = time.Hour
)

var retention time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat gateway",
	Long: `Start the HTTP and WebSocket chat gateway.
The server runs until it receives SIGINT or SIGTERM, then stops accepting
turns and waits for in-flight ones to finish.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&retention, "retention", 0, "delete conversations idle for longer than this (0 keeps them)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := prepareDataDir(cfg); err != nil {
		return err
	}
	defer observability.GetAuditLogger().Close()

	lg, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer lg.Close()
	log := lg.GetZerolog()

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
	}

	store, err := openCredentials(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	conversations, err := conversation.NewStore(cfg.Storage.ConversationsDir, lg.Component("conversation"))
	if err != nil {
		return err
	}

	var runner *agent.Runner
	if cfg.HasLLM() {
		runner, err = newRunner(cfg, log)
		if err != nil {
			return err
		}
	} else {
		log.Warn().Msg("No AI profile configured, chat turns will be rejected")
	}

	exec, err := newCoordinator(cfg, runner, log)
	if err != nil {
		return err
	}

	queue := commandqueue.New(lg.Component("queue"))
	defer func() {
		if !queue.WaitForActive(queueDrainTimeout) {
			log.Warn().Msg("Queue drain timed out")
		}
		_ = queue.Close()
	}()

	svc, err := chat.New(chat.Config{
		Resolver: store,
		Backend:  newBackend(cfg),
		Planner:  newPlanner(runner, log),
		Executor: exec,
		Recorder: conversations,
		Queue:    queue,
		HasLLM:   runner != nil,
		Logger:   lg.Component("chat"),
	})
	if err != nil {
		return err
	}

	server, err := gateway.NewServer(gateway.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		Chat:              svc,
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
		MaxConcurrent:     cfg.Server.RateLimit.MaxConcurrent,
		Logger:            lg.Component("gateway"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("version", version).
		Str("addr", server.Addr()).
		Str("mode", cfg.Orchestrator.Mode).
		Bool("demoMode", cfg.Integrations.DemoMode).
		Msg("Conflux starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	if retention > 0 {
		g.Go(func() error {
			pruneConversations(gctx, conversations, retention, lg.Component("conversation"))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Conflux stopped")
	return nil
}

// pruneConversations deletes idle conversation logs until ctx is done
func pruneConversations(ctx context.Context, store *conversation.Store, maxAge time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		if _, err := store.Prune(ctx, maxAge); err != nil {
			log.Warn().Err(err).Msg("Failed to prune conversations")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
