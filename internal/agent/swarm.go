package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/goclaw/goclaw/internal/provider"
	"github.com/goclaw/goclaw/internal/tools"
)

const (
	defaultMaxAgents    = 4
	defaultAgentTimeout = 90 * time.Second
)

const decomposeSystemPrompt = `You are a planning assistant. Break the user's objective into 2 to 4 specialist roles that can work on it independently and in parallel.

Respond with ONLY a JSON array, no other text. Each element must have:
- "role": a short role name (e.g. "researcher", "critic")
- "prompt": the system prompt that specialist should run with

Example: [{"role": "researcher", "prompt": "You research facts..."}, {"role": "writer", "prompt": "You draft prose..."}]`

const generalAgentPrompt = "You are a capable general-purpose assistant. Work on the objective directly and give a complete, concrete answer."

const synthesisSystemPrompt = `You are the synthesis stage of a multi-agent swarm. You receive the original objective and the output of every agent, including agents that failed.

Merge the results into one coherent answer. Where an agent failed, compensate with the others or state plainly what is missing. Do not mention the swarm mechanics in your answer.`

// SwarmOptions contains configuration for the swarm orchestrator.
type SwarmOptions struct {
	Provider     provider.LLMProvider
	Model        string
	MaxAgents    int
	AgentTimeout time.Duration
	MaxTokens    int
	Temperature  float64
}

// Swarm fans an objective out to concurrently running sub-agents and
// synthesizes their outputs into a single answer. It implements
// tools.SwarmRunner.
type Swarm struct {
	provider     provider.LLMProvider
	model        string
	maxAgents    int
	agentTimeout time.Duration
	maxTokens    int
	temperature  float64
}

// NewSwarm creates a swarm orchestrator.
func NewSwarm(opts SwarmOptions) *Swarm {
	maxAgents := opts.MaxAgents
	if maxAgents <= 0 {
		maxAgents = defaultMaxAgents
	}
	agentTimeout := opts.AgentTimeout
	if agentTimeout <= 0 {
		agentTimeout = defaultAgentTimeout
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Swarm{
		provider:     opts.Provider,
		model:        opts.Model,
		maxAgents:    maxAgents,
		agentTimeout: agentTimeout,
		maxTokens:    maxTokens,
		temperature:  opts.Temperature,
	}
}

type agentResult struct {
	Role   string
	Output string
	Err    error
}

// RunSwarm executes the full swarm cycle: roster, fan-out, synthesis.
// Explicit roles are used verbatim; otherwise the model decomposes the
// objective. Agent failures never fail the swarm, they become error-labeled
// results the synthesizer must account for.
func (s *Swarm) RunSwarm(ctx context.Context, objective string, roles []tools.SwarmRole) (string, error) {
	specs := s.roster(ctx, objective, roles)

	slog.Info("swarm started", "agents", len(specs), "objective_length", len(objective))

	results := make([]agentResult, len(specs))
	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec tools.SwarmRole) {
			defer wg.Done()
			output, err := s.runAgent(ctx, objective, spec)
			results[i] = agentResult{Role: spec.Role, Output: output, Err: err}
			if err != nil {
				slog.Warn("swarm agent failed", "role", spec.Role, "error", err)
			}
		}(i, spec)
	}
	wg.Wait()

	return s.synthesize(ctx, objective, results)
}

// roster returns the agent specs for this run. Caller-supplied roles pass
// through verbatim with defaults filled in; an empty list asks the model to
// decompose the objective.
func (s *Swarm) roster(ctx context.Context, objective string, roles []tools.SwarmRole) []tools.SwarmRole {
	if len(roles) == 0 {
		roles = s.decompose(ctx, objective)
	}
	specs := make([]tools.SwarmRole, len(roles))
	for i, r := range roles {
		if strings.TrimSpace(r.Role) == "" {
			r.Role = fmt.Sprintf("agent-%d", i+1)
		}
		if strings.TrimSpace(r.Prompt) == "" {
			r.Prompt = fmt.Sprintf("You are the %q specialist in a team working on a shared objective. Contribute your part thoroughly.", r.Role)
		}
		if r.Model == "" {
			r.Model = s.model
		}
		specs[i] = r
	}
	return specs
}

// decompose asks the model for a role breakdown. Any failure falls back to a
// single general agent so the swarm always has a roster.
func (s *Swarm) decompose(ctx context.Context, objective string) []tools.SwarmRole {
	fallback := []tools.SwarmRole{{Role: "general", Prompt: generalAgentPrompt}}

	tctx, cancel := context.WithTimeout(ctx, s.agentTimeout)
	defer cancel()

	resp, err := s.provider.Chat(tctx, &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: decomposeSystemPrompt},
			{Role: "user", Content: objective},
		},
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		slog.Warn("swarm decomposition failed, using general agent", "error", err)
		return fallback
	}

	parsed := parseRoleArray(resp.Content)
	if len(parsed) == 0 {
		slog.Warn("swarm decomposition unparseable, using general agent")
		return fallback
	}
	if len(parsed) > s.maxAgents {
		parsed = parsed[:s.maxAgents]
	}
	return parsed
}

// parseRoleArray extracts a JSON array of {role, prompt} objects from model
// output that may be wrapped in prose or code fences.
func parseRoleArray(content string) []tools.SwarmRole {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil
	}

	var raw []struct {
		Role   string `json:"role"`
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil
	}

	var roles []tools.SwarmRole
	for _, r := range raw {
		if strings.TrimSpace(r.Role) == "" {
			continue
		}
		roles = append(roles, tools.SwarmRole{Role: r.Role, Prompt: r.Prompt})
	}
	return roles
}

// runAgent performs one agent's single-turn call under its own timeout.
func (s *Swarm) runAgent(ctx context.Context, objective string, spec tools.SwarmRole) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, s.agentTimeout)
	defer cancel()

	resp, err := s.provider.Chat(tctx, &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: spec.Prompt},
			{Role: "user", Content: objective},
		},
		Model:       spec.Model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "(no output)", nil
	}
	return resp.Content, nil
}

// synthesize merges all labeled agent results into one answer. Every agent
// appears in the synthesis input, failed ones as error-labeled entries. If
// the synthesis call itself fails, the labeled results are returned raw so
// no agent's work is lost.
func (s *Swarm) synthesize(ctx context.Context, objective string, results []agentResult) (string, error) {
	labeled := formatResults(results)

	tctx, cancel := context.WithTimeout(ctx, s.agentTimeout)
	defer cancel()

	resp, err := s.provider.Chat(tctx, &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Objective: %s\n\n%s", objective, labeled)},
		},
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		slog.Warn("swarm synthesis failed, returning raw agent results", "error", err)
		return fmt.Sprintf("Partial results (synthesis unavailable):\n\n%s", labeled), nil
	}
	if strings.TrimSpace(resp.Content) == "" {
		return fmt.Sprintf("Partial results (synthesis unavailable):\n\n%s", labeled), nil
	}

	slog.Info("swarm complete", "agents", len(results))
	return resp.Content, nil
}

func formatResults(results []agentResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## Agent %d: %s\n", i+1, r.Role)
		if r.Err != nil {
			fmt.Fprintf(&b, "ERROR: %v", r.Err)
		} else {
			b.WriteString(r.Output)
		}
	}
	return b.String()
}
