// Command summarizerd runs the Discord summarizer bot: a streaming
// conversation engine over the Anthropic API with Discord tools, scheduled
// tasks, and per-server memory.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/namielle/summabot/internal/artifacts"
	"github.com/namielle/summabot/internal/config"
	"github.com/namielle/summabot/internal/discord"
	"github.com/namielle/summabot/internal/engine"
	"github.com/namielle/summabot/internal/memory"
	"github.com/namielle/summabot/internal/observability"
	"github.com/namielle/summabot/internal/scheduler"
	"github.com/namielle/summabot/internal/tools"
	"github.com/namielle/summabot/internal/tools/guild"
)

var version = "dev"

const defaultPersona = "You are {{BOT_NAME}}, a helpful Discord bot. You keep answers short, " +
	"concrete, and friendly, and you use your tools when they help."

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "summarizerd",
		Short:        "Discord summarizer bot with a streaming tool-orchestration engine",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	metrics := observability.NewMetrics()

	state, err := config.LoadState(cfg.Store.StatePath)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	memories, err := memory.NewWithDB(db)
	if err != nil {
		return err
	}
	schedStore, err := scheduler.NewStoreWithDB(db)
	if err != nil {
		return err
	}

	persona := defaultPersona
	if cfg.PersonaPath != "" {
		data, err := os.ReadFile(cfg.PersonaPath)
		if err != nil {
			return fmt.Errorf("read persona: %w", err)
		}
		persona = string(data)
	}

	provider, err := engine.NewAnthropicProvider(engine.AnthropicConfig{
		APIKey:        cfg.Anthropic.APIKey,
		Model:         cfg.Anthropic.Model,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		WebSearch:     cfg.Engine.WebSearch,
		WebFetch:      cfg.Engine.WebFetch,
		CodeExecution: cfg.Engine.CodeExecution,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return err
	}

	resolver := artifacts.NewResolver(
		artifacts.NewAnthropicFileStore(provider.Client()),
		artifacts.WithMaxBytes(cfg.Engine.MaxArtifactBytes),
		artifacts.WithLogger(logger),
		artifacts.WithMetrics(metrics),
	)

	eng := engine.New(provider,
		engine.WithResolver(resolver),
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithCeilings(cfg.Engine.MaxServerContinuations, cfg.Engine.MaxToolRounds),
	)

	registry := tools.NewRegistry(tools.WithLogger(logger), tools.WithMetrics(metrics))

	bot, err := discord.New(discord.Deps{
		Config:   cfg,
		State:    state,
		Engine:   eng,
		Registry: registry,
		Memories: memories,
		Logger:   logger,
		Metrics:  metrics,
		Persona:  persona,
	})
	if err != nil {
		return err
	}

	sched := scheduler.NewService(schedStore, bot,
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(metrics),
	)

	session := bot.ToolSession()
	registry.MustRegister(
		guild.NewMembersTool(session),
		guild.NewChannelsTool(session),
		guild.NewHistoryTool(session),
		guild.NewDeleteMessagesTool(session),
		guild.NewReactionTool(session),
		guild.NewTimeoutTool(session),
		guild.NewScheduleTool(session, sched),
		guild.NewListTasksTool(sched),
		guild.NewCancelTaskTool(sched),
		guild.NewSaveMemoryTool(memories),
		guild.NewDeleteMemoryTool(memories),
	)

	if err := bot.Start(ctx); err != nil {
		return err
	}
	defer bot.Stop()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	logger.Info(ctx, "summarizerd running", "version", version)
	<-ctx.Done()
	logger.Info(ctx, "shutting down")
	return nil
}
