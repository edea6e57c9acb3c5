package tools

import (
	"context"
	"fmt"
	"strings"
)

// SwarmRole describes one requested sub-agent. Prompt and Model are optional;
// the orchestrator fills defaults.
type SwarmRole struct {
	Role   string
	Prompt string
	Model  string
}

// SwarmRunner decomposes an objective across role-scoped sub-agents and
// synthesizes their results. Implemented by agent.Swarm.
type SwarmRunner interface {
	RunSwarm(ctx context.Context, objective string, roles []SwarmRole) (string, error)
}

// SwarmTool lets the model delegate a multi-part objective to parallel
// sub-agents.
type SwarmTool struct {
	runner SwarmRunner
}

func NewSwarmTool(runner SwarmRunner) *SwarmTool {
	return &SwarmTool{runner: runner}
}

func (t *SwarmTool) Name() string { return "swarm" }
func (t *SwarmTool) Tier() int    { return TierWrite }

func (t *SwarmTool) Description() string {
	return "Split a complex objective across parallel sub-agents and combine their answers. Optionally name the roles (e.g. researcher, critic), each with its own prompt; otherwise roles are derived from the objective."
}

func (t *SwarmTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"objective": map[string]any{
				"type":        "string",
				"description": "The overall objective to accomplish",
			},
			"roles": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"role":   map[string]any{"type": "string"},
						"prompt": map[string]any{"type": "string"},
					},
				},
				"description": "Optional role specs, one sub-agent each. Plain strings are accepted as role names.",
			},
		},
		"required": []string{"objective"},
	}
}

func (t *SwarmTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	objective := strings.TrimSpace(GetString(params, "objective", ""))
	if objective == "" {
		return "Error: objective is required", nil
	}

	roles := parseSwarmRoles(params["roles"])

	result, err := t.runner.RunSwarm(ctx, objective, roles)
	if err != nil {
		return fmt.Sprintf("Error running swarm: %v", err), nil
	}
	return result, nil
}

// parseSwarmRoles accepts the roles argument in the two shapes models
// actually produce: an array of objects with role/prompt/model fields, or an
// array of bare role-name strings.
func parseSwarmRoles(v any) []SwarmRole {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]SwarmRole, 0, len(items))
	for _, item := range items {
		switch spec := item.(type) {
		case string:
			if s := strings.TrimSpace(spec); s != "" {
				out = append(out, SwarmRole{Role: s})
			}
		case map[string]any:
			role := SwarmRole{
				Role:   strings.TrimSpace(GetString(spec, "role", "")),
				Prompt: GetString(spec, "prompt", ""),
				Model:  strings.TrimSpace(GetString(spec, "model", "")),
			}
			if role.Role != "" || role.Prompt != "" {
				out = append(out, role)
			}
		}
	}
	return out
}
