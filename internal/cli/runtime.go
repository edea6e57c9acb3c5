package cli

import (
	"fmt"
	"os"

	"github.com/goclaw/goclaw/internal/agent"
	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/provider"
	"github.com/goclaw/goclaw/internal/sandbox"
	"github.com/goclaw/goclaw/internal/store"
	"github.com/goclaw/goclaw/internal/tools"
)

// runtime bundles the long-lived services a turn-processing command needs:
// the store, the provider chain, the sandbox executor, the tool registry,
// and the agent loop with its swarm orchestrator.
type runtime struct {
	cfg       *config.Config
	store     *store.Store
	executor  *sandbox.Executor
	chain     *provider.Chain
	loop      *agent.Loop
	swarm     *agent.Swarm
	sandboxed bool
}

// buildRuntime opens the store and assembles everything a turn needs from
// cfg. The caller owns Close.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	if err := os.MkdirAll(cfg.Paths.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	st, err := store.NewStore(cfg.Paths.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	primary, err := provider.Resolve(cfg, cfg.Model.Name)
	if err != nil {
		st.Close()
		return nil, err
	}
	// The fallback replays exhausted calls with the request model cleared,
	// landing on the configured default model.
	fallback, err := provider.ResolveDefault(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	chain := provider.NewChain(provider.NewRetryClient(primary, fallback, cfg.Model.MaxRetries))
	chain.Use(provider.UsageLogger{})

	executor := sandbox.NewExecutor(cfg.Sandbox)
	sandboxed := executor.Ready() == nil

	registry := tools.NewRegistry()
	registry.Register(tools.NewReadFileTool(cfg.Paths.Workspace))
	registry.Register(tools.NewWriteFileTool(cfg.Paths.Workspace))
	registry.Register(tools.NewEditFileTool(cfg.Paths.Workspace))
	registry.Register(tools.NewListFilesTool(cfg.Paths.Workspace))
	registry.Register(tools.NewMemorySaveTool(st))
	registry.Register(tools.NewMemoryRecallTool(st))
	registry.Register(tools.NewMemoryForgetTool(st))
	registry.Register(tools.NewShellTool(executor, cfg.Paths.Workspace, cfg.Agent.ToolTimeout))

	swarmProv := provider.LLMProvider(chain)
	swarmModel := chain.DefaultModel()
	if cfg.Swarm.Model != "" {
		sp, err := provider.Resolve(cfg, cfg.Swarm.Model)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("swarm model: %w", err)
		}
		sc := provider.NewChain(provider.NewRetryClient(sp, fallback, cfg.Model.MaxRetries))
		sc.Use(provider.UsageLogger{})
		swarmProv = sc
		swarmModel = sc.DefaultModel()
	}
	sw := agent.NewSwarm(agent.SwarmOptions{
		Provider:     swarmProv,
		Model:        swarmModel,
		MaxAgents:    cfg.Swarm.MaxAgents,
		AgentTimeout: cfg.Swarm.AgentTimeout,
		MaxTokens:    cfg.Model.MaxTokens,
		Temperature:  cfg.Model.Temperature,
	})
	registry.Register(tools.NewSwarmTool(sw))

	loop := agent.NewLoop(agent.LoopOptions{
		Provider:       chain,
		Store:          st,
		Registry:       registry,
		Model:          chain.DefaultModel(),
		MaxIterations:  cfg.Agent.MaxToolIterations,
		ToolTimeout:    cfg.Agent.ToolTimeout,
		HistoryWindow:  cfg.Agent.HistoryWindow,
		TokenBudget:    cfg.Agent.ContextTokenBudget,
		MaxTokens:      cfg.Model.MaxTokens,
		Temperature:    cfg.Model.Temperature,
		WorkspaceRoot:  cfg.Paths.Workspace,
		Sandboxed:      sandboxed,
		SystemTemplate: cfg.Agent.SystemPrompt,
	})

	return &runtime{
		cfg:       cfg,
		store:     st,
		executor:  executor,
		chain:     chain,
		loop:      loop,
		swarm:     sw,
		sandboxed: sandboxed,
	}, nil
}

// Close releases the runtime's persistent resources.
func (rt *runtime) Close() {
	if rt.store != nil {
		rt.store.Close()
	}
}

// staticAllowlists collects the per-channel allowFrom lists from config,
// keyed by channel name. Channels without entries stay absent.
func staticAllowlists(cfg *config.Config) map[string][]string {
	out := make(map[string][]string)
	if len(cfg.Channels.Slack.AllowFrom) > 0 {
		out["slack"] = cfg.Channels.Slack.AllowFrom
	}
	if len(cfg.Channels.WhatsApp.AllowFrom) > 0 {
		out["whatsapp"] = cfg.Channels.WhatsApp.AllowFrom
	}
	if len(cfg.Channels.Kafka.AllowFrom) > 0 {
		out["kafka"] = cfg.Channels.Kafka.AllowFrom
	}
	return out
}
