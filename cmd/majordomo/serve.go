package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/majordomo-labs/majordomo/internal/bulk"
	"github.com/majordomo-labs/majordomo/internal/config"
	"github.com/majordomo-labs/majordomo/internal/egress"
	"github.com/majordomo-labs/majordomo/internal/flows"
	"github.com/majordomo-labs/majordomo/internal/googleauth"
	"github.com/majordomo-labs/majordomo/internal/ingress"
	"github.com/majordomo-labs/majordomo/internal/llm"
	"github.com/majordomo-labs/majordomo/internal/memory"
	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/orchestrator"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/ratelimit"
	"github.com/majordomo-labs/majordomo/internal/services/gcal"
	"github.com/majordomo-labs/majordomo/internal/services/gmail"
	"github.com/majordomo-labs/majordomo/internal/services/trello"
	"github.com/majordomo-labs/majordomo/internal/tools"
	"github.com/majordomo-labs/majordomo/internal/voice"
)

// staleFlowAge is how long an idle bulk browsing session may sit before
// the periodic sweep removes it. Confirmation and continuation flows are
// never swept; they stay answerable until the user replies or resets.
const staleFlowAge = 30 * time.Minute

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant gateway",
		Long: `Run the assistant gateway: the Telegram adapter, the turn
orchestrator, the flow handlers and the metrics endpoint. Shuts down
cleanly on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("MAJORDOMO_CONFIG"),
		"Path to YAML configuration file (optional; env vars suffice)")
	return cmd
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics(nil)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	store, err := pending.NewStore(cfg.DataDir)
	if err != nil {
		return err
	}

	memStore, err := openMemory(cfg)
	if err != nil {
		return err
	}
	defer memStore.Close()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	summarizer := memory.NewSummarizer(memStore, summaryGenerate(provider, cfg.LLM.MaxTokens), cfg.Memory.SummaryWindow)

	// One token source backs both Google services.
	tokenSource := googleauth.NewTokenSource(googleauth.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RefreshToken: cfg.Google.RefreshToken,
		Timeout:      cfg.Google.Timeout,
	})
	googleHTTP := tokenSource.Client(cfg.Google.Timeout)
	gmailClient := gmail.NewClient(googleHTTP)
	gcalClient := gcal.NewClient(googleHTTP)
	trelloClient := trello.NewClient(cfg.Trello.APIKey, cfg.Trello.Token, cfg.Trello.Timeout)

	bulkController, err := buildBulkController(gmailClient, store, logger, metrics)
	if err != nil {
		return err
	}
	registry := buildToolRegistry(gmailClient, gcalClient, trelloClient, bulkController, loc)

	chain := flows.NewChain(logger, metrics,
		flows.NewBulkGate(bulkController),
		flows.NewToolConfirmHandler(store, registry),
		flows.NewClarifyHandler(store, registry),
		flows.NewDispatchHandler(store, registry),
		flows.NewCommentHandler(store, registry),
		flows.NewMailDeleteHandler(store, gmailClient, logger),
		flows.NewMarkReadHandler(store, gmailClient, logger),
		flows.NewSpamCleanHandler(store, gmailClient, logger),
		flows.NewMailSendHandler(store, registry),
		flows.NewCalendarNoteHandler(store, registry),
		flows.NewCalendarCancelHandler(store, registry),
	)

	orch := orchestrator.New(chain, provider, registry, store, memStore, summarizer, logger, metrics)
	defer orch.Flush()

	var (
		transcriber ingress.Transcriber
		synth       egress.Synthesizer
	)
	if cfg.Voice.Enabled && cfg.LLM.OpenAIAPIKey != "" {
		voiceClient := openai.NewClient(cfg.LLM.OpenAIAPIKey)
		transcriber = voice.NewTranscriber(voiceClient, cfg.Voice.Model)
		synth = voice.NewSynthesizer(voiceClient, cfg.Voice.TTSWord, cfg.Voice.OutputDir)
	}

	b, err := bot.New(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	sender := egress.NewSender(b, synth, logger)
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		MessagesPerWindow: cfg.Limits.MessagesPerWindow,
		Window:            cfg.Limits.Window,
		Enabled:           true,
	})
	adapter := ingress.NewAdapter(ingress.Config{
		Token:      cfg.Telegram.BotToken,
		WebhookURL: cfg.Telegram.WebhookURL,
		ListenAddr: cfg.Telegram.ListenAddr,
	}, b, orch, sender, transcriber, limiter, store, logger, metrics)

	scheduler := startJobs(ctx, store, memStore, summarizer, logger, metrics)
	defer scheduler.Stop()

	go serveMetrics(ctx, cfg.Server.MetricsAddr, logger)

	logger.Info(ctx, "majordomo serving", "version", version, "timezone", cfg.Timezone)
	return adapter.Run(ctx)
}

func openMemory(cfg *config.Config) (memory.Store, error) {
	if cfg.Memory.PostgresURL != "" {
		return memory.OpenPostgres(cfg.Memory.PostgresURL)
	}
	if dir := filepath.Dir(cfg.Memory.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create memory dir: %w", err)
		}
	}
	return memory.OpenSQLite(cfg.Memory.SQLitePath)
}

func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return llm.NewOpenAIProvider(cfg.LLM.OpenAIAPIKey, cfg.LLM.Model), nil
	case "anthropic":
		return llm.NewAnthropicProvider(cfg.LLM.AnthropicAPIKey, cfg.LLM.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// summaryGenerate adapts the chat provider to the summarizer's contract.
func summaryGenerate(provider llm.Provider, maxTokens int) memory.GenerateFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		resp, err := provider.Call(ctx, &llm.Request{
			Messages:  []llm.Message{{Role: "user", Content: prompt}},
			MaxTokens: maxTokens,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}
}

func buildBulkController(gmailClient *gmail.Client, store *pending.Store, logger *observability.Logger, metrics *observability.Metrics) (*bulk.Controller, error) {
	reg := bulk.NewRegistry()
	for _, action := range []string{bulk.ActionTrash, bulk.ActionMarkRead, bulk.ActionArchive, bulk.ActionDelete, bulk.ActionLabel} {
		adapter, err := bulk.NewGmailAdapter(gmailClient, action)
		if err != nil {
			return nil, err
		}
		reg.Register("mail", action, adapter)
	}
	return bulk.NewController(store, reg, logger, metrics), nil
}

func buildToolRegistry(gmailClient *gmail.Client, gcalClient *gcal.Client, trelloClient *trello.Client, controller *bulk.Controller, loc *time.Location) *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(tools.NewBulkMailTool(controller))
	registry.Register(tools.NewSendEmailTool(gmailClient))
	registry.Register(tools.NewCreateDraftTool(gmailClient))
	registry.Register(tools.NewCreateEventTool(gcalClient, loc))
	registry.Register(tools.NewListEventsTool(gcalClient, loc))
	registry.Register(tools.NewCancelEventTool(gcalClient, loc))
	registry.Register(tools.NewAddEventNoteTool(gcalClient, loc))
	registry.Register(tools.NewDispatchTool(trelloClient))
	registry.Register(tools.NewCardStatusTool(trelloClient))
	registry.Register(tools.NewListCardsTool(trelloClient))
	registry.Register(tools.NewFindCardTool(trelloClient))
	return registry
}

// startJobs schedules the background maintenance work: expiring idle bulk
// browsing sessions and recomputing long-term summaries for recently
// active users.
func startJobs(ctx context.Context, store *pending.Store, memStore memory.Store, summarizer *memory.Summarizer, logger *observability.Logger, metrics *observability.Metrics) *cron.Cron {
	c := cron.New()

	c.AddFunc("@every 30m", func() {
		sweepPendingFlows(ctx, store, logger, metrics)
	})

	c.AddFunc("@every 1h", func() {
		users, err := memStore.ActiveUsers(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			logger.Warn(ctx, "active user lookup failed", "error", err)
			return
		}
		for _, userID := range users {
			if err := summarizer.Refresh(ctx, userID); err != nil {
				logger.Warn(ctx, "summary refresh failed", "user_id", userID, "error", err)
			}
		}
	})

	c.Start()
	return c
}

// sweepPendingFlows expires abandoned bulk sessions and refreshes the
// pending-record gauges across every flow.
func sweepPendingFlows(ctx context.Context, store *pending.Store, logger *observability.Logger, metrics *observability.Metrics) {
	if n := store.SweepStale(staleFlowAge, pending.FlowBulkOperation); n > 0 {
		logger.Info(ctx, "swept stale bulk sessions", "removed", n)
	}
	for _, flow := range pending.AllFlows {
		metrics.PendingFlows.WithLabelValues(flow).Set(float64(store.Count(flow)))
	}
}

func serveMetrics(ctx context.Context, addr string, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(ctx, "metrics server failed", "error", err)
	}
}
