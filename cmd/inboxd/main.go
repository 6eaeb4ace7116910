// Command inboxd runs the agent inbox daemon: HTTP API, websocket event
// stream, turn dispatcher, and approval janitor.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/flowentxo/agentinbox/internal/agent"
	"github.com/flowentxo/agentinbox/internal/agent/providers"
	"github.com/flowentxo/agentinbox/internal/agents"
	"github.com/flowentxo/agentinbox/internal/approvals"
	"github.com/flowentxo/agentinbox/internal/config"
	"github.com/flowentxo/agentinbox/internal/dispatch"
	"github.com/flowentxo/agentinbox/internal/httpapi"
	"github.com/flowentxo/agentinbox/internal/janitor"
	"github.com/flowentxo/agentinbox/internal/notify"
	"github.com/flowentxo/agentinbox/internal/routing"
	"github.com/flowentxo/agentinbox/internal/store"
	"github.com/flowentxo/agentinbox/internal/tools/finance"
	"github.com/flowentxo/agentinbox/internal/usage"
	"github.com/flowentxo/agentinbox/pkg/models"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "inboxd",
		Short:   "Agent inbox orchestration daemon",
		Version: version,
	}

	var configPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the inbox daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	serve.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting inboxd", "version", version)

	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	llmProviders := buildProviders(cfg.LLM)
	registry, err := buildAgents(cfg.Agents)
	if err != nil {
		return err
	}

	var classifier routing.Classifier
	if cfg.Routing.Provider != "" {
		provider := llmProviders[cfg.Routing.Provider]
		if provider == nil {
			return fmt.Errorf("routing provider %q is not configured", cfg.Routing.Provider)
		}
		classifier = routing.NewLLMClassifier(provider, cfg.Routing.Model)
	}
	router := routing.NewRouter(registry, classifier, logger)

	hub := notify.NewHub(logger)
	notifier := notify.NewGuard(hub, logger)

	promRegistry := prometheus.NewRegistry()
	tracker := usage.NewTracker(promRegistry)

	machine := approvals.NewMachine(st, notifier, nil, cfg.Approvals.TTL, logger)

	dispatcher := dispatch.New(st, registry, router, machine, hub, tracker, llmProviders, dispatch.Config{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		TurnTimeout: cfg.Dispatch.TurnTimeout,
		Loop: &agent.LoopConfig{
			MaxToolCalls: cfg.Dispatch.MaxToolCalls,
			Logger:       logger,
		},
	}, logger)
	defer dispatcher.Close()

	sweeper, err := janitor.New(machine, cfg.Approvals.SweepSchedule, logger)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	api := httpapi.NewServer(st, dispatcher, machine, hub, logger)
	apiServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler: api.Handler(),
	}
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http api listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(cfg.Path)
	}
}

func buildProviders(cfg config.LLMConfig) map[string]agent.LLMProvider {
	result := map[string]agent.LLMProvider{}
	for name, pc := range cfg.Providers {
		switch name {
		case "openai":
			result[name] = providers.NewOpenAIProvider(pc.APIKey)
		case "anthropic":
			result[name] = providers.NewAnthropicProvider(pc.APIKey)
		}
	}
	return result
}

// buildAgents registers each configured agent with its tool registry.
// Tool names resolve against the finance suite; unknown names fail fast.
func buildAgents(agentCfgs []config.AgentConfig) (*agents.Registry, error) {
	available := map[string]agent.Tool{}
	for _, tool := range finance.All() {
		available[tool.Name()] = tool
	}

	registry := agents.NewRegistry()
	for _, ac := range agentCfgs {
		var tools *agent.ToolRegistry
		if ac.Agentic {
			tools = agent.NewToolRegistry()
			for _, name := range ac.Tools {
				tool, ok := available[name]
				if !ok {
					return nil, fmt.Errorf("agent %s: unknown tool %q", ac.ID, name)
				}
				tools.Register(tool)
			}
		}
		registry.Register(models.Agent{
			ID:           ac.ID,
			Name:         ac.Name,
			Description:  ac.Description,
			SystemPrompt: ac.SystemPrompt,
			Model:        ac.Model,
			Provider:     ac.Provider,
			Generalist:   ac.Generalist,
			Agentic:      ac.Agentic,
			Tools:        ac.Tools,
		}, tools)
	}
	return registry, nil
}
