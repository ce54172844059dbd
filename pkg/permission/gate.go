package permission

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Rule error codes returned by the gate, in evaluation order.
const (
	CodeDeniedTool           = "DENIED_TOOL"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeDeniedAgentToolset   = "DENIED_AGENT_TOOLSET"
	CodeDeniedPathAllowlist  = "DENIED_PATH_ALLOWLIST"
	CodeDeniedCmdAllowlist   = "DENIED_COMMAND_ALLOWLIST"
)

// Config is the resolved permissions policy. It is loaded once and
// treated as read-only for its lifetime; reloading produces a new value.
type Config struct {
	AllowPaths             []string `json:"allow_paths" mapstructure:"allow_paths"`
	AllowCommands          []string `json:"allow_commands" mapstructure:"allow_commands"`
	RequireConfirmationFor []string `json:"require_confirmation_for" mapstructure:"require_confirmation_for"`
	DenyTools              []string `json:"deny_tools" mapstructure:"deny_tools"`

	// Source is the file the policy was loaded from. Confirmation
	// denials point the caller at it so they know where to grant.
	Source string `json:"-" mapstructure:"-"`
}

// Denial describes the first failed gate rule.
type Denial struct {
	Code    string
	Message string
	Details map[string]interface{}
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// Request carries the inputs the gate evaluates. PathArgs and
// CommandArgs hold only the arguments the tool declares as paths or
// commands; tools without such parameters leave them empty.
type Request struct {
	Tool        string
	Args        map[string]interface{}
	PathArgs    []string
	CommandArgs []string
}

// Gate evaluates the fixed rule pipeline:
// deny-list, confirmation, agent capability, resource confinement.
// Every rule is a pure function of (Request, Agent, Config); the only
// syscalls are the path resolutions needed for symlink defense.
type Gate struct {
	cfg      Config
	resolver *PathResolver
}

// NewGate builds a gate for a resolved policy.
func NewGate(cfg Config) *Gate {
	return &Gate{
		cfg:      cfg,
		resolver: NewPathResolver(cfg.AllowPaths),
	}
}

// Config returns the policy the gate enforces.
func (g *Gate) Config() Config {
	return g.cfg
}

// Resolver returns the path resolver bound to the gate's allow roots.
func (g *Gate) Resolver() *PathResolver {
	return g.resolver
}

// Check runs the rule pipeline in its fixed order and returns the
// first failure, or nil when every rule passes.
func (g *Gate) Check(req Request, agent Agent) *Denial {
	if d := g.checkDenyList(req.Tool); d != nil {
		return d
	}
	if d := g.checkConfirmation(req); d != nil {
		return d
	}
	if d := g.checkAgentToolset(req.Tool, agent); d != nil {
		return d
	}
	return g.checkConfinement(req)
}

func (g *Gate) checkDenyList(tool string) *Denial {
	for _, denied := range g.cfg.DenyTools {
		if denied == tool {
			return &Denial{
				Code:    CodeDeniedTool,
				Message: fmt.Sprintf("tool %q is on the deny list", tool),
				Details: map[string]interface{}{"tool": tool},
			}
		}
	}
	return nil
}

func (g *Gate) checkConfirmation(req Request) *Denial {
	required := false
	for _, name := range g.cfg.RequireConfirmationFor {
		if name == req.Tool {
			required = true
			break
		}
	}
	if !required {
		return nil
	}
	if confirmed, ok := req.Args["confirm"].(bool); ok && confirmed {
		return nil
	}
	return &Denial{
		Code:    CodeConfirmationRequired,
		Message: fmt.Sprintf("tool %q requires confirmation; pass confirm=true or edit the permissions file", req.Tool),
		Details: map[string]interface{}{
			"tool":             req.Tool,
			"permissions_file": g.cfg.Source,
		},
	}
}

func (g *Gate) checkAgentToolset(tool string, agent Agent) *Denial {
	if agent.CanUse(tool) {
		return nil
	}
	return &Denial{
		Code:    CodeDeniedAgentToolset,
		Message: fmt.Sprintf("agent %q is not allowed to use tool %q", agent.Name, tool),
		Details: map[string]interface{}{
			"agent": agent.Name,
			"tool":  tool,
		},
	}
}

func (g *Gate) checkConfinement(req Request) *Denial {
	for _, p := range req.PathArgs {
		if _, err := g.resolver.Resolve(p); err != nil {
			return &Denial{
				Code:    CodeDeniedPathAllowlist,
				Message: fmt.Sprintf("path %q is outside every allowed root", p),
				Details: map[string]interface{}{"path": p},
			}
		}
	}
	for _, c := range req.CommandArgs {
		if d := g.CheckCommand(c); d != nil {
			return d
		}
	}
	return nil
}

// CheckCommand validates a command line's executable basename against
// the command allowlist. It is exported so handlers can re-validate
// commands they assemble themselves.
func (g *Gate) CheckCommand(command string) *Denial {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return &Denial{
			Code:    CodeDeniedCmdAllowlist,
			Message: "empty command",
			Details: map[string]interface{}{"command": command},
		}
	}
	base := filepath.Base(fields[0])
	for _, allowed := range g.cfg.AllowCommands {
		if allowed == base {
			return nil
		}
	}
	return &Denial{
		Code:    CodeDeniedCmdAllowlist,
		Message: fmt.Sprintf("executable %q is not on the command allowlist", base),
		Details: map[string]interface{}{"executable": base},
	}
}
