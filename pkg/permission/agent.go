package permission

// AgentKind classifies the invoking principal.
type AgentKind string

const (
	AgentSystem AgentKind = "system"
	AgentUser   AgentKind = "user"
	AgentPlugin AgentKind = "plugin"
)

// Agent is the principal on whose behalf a tool call runs.
// System agents bypass the per-agent tool allowlist entirely.
type Agent struct {
	Name         string    `json:"name"`
	Kind         AgentKind `json:"kind"`
	AllowedTools []string  `json:"allowed_tools,omitempty"`
}

// CanUse reports whether the agent's tool allowlist permits a tool.
// The allowlist is ignored for system agents.
func (a Agent) CanUse(toolName string) bool {
	if a.Kind == AgentSystem {
		return true
	}
	for _, allowed := range a.AllowedTools {
		if allowed == toolName || allowed == "*" {
			return true
		}
	}
	return false
}

// SystemAgent returns the built-in system principal.
func SystemAgent() Agent {
	return Agent{Name: "system", Kind: AgentSystem}
}
