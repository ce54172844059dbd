package executor

import (
	"time"

	"github.com/bill-buster/personal-assistant-sub001/pkg/permission"
	"github.com/bill-buster/personal-assistant-sub001/pkg/registry"
)

// invocationContext is the registry.Env handed to handlers. All path
// and command access a handler performs goes through the gate's
// resolver, so a handler cannot reach outside the allowlists.
type invocationContext struct {
	gate    *permission.Gate
	dataDir string
	start   time.Time
	agent   permission.Agent
}

var _ registry.Env = (*invocationContext)(nil)

// ResolvePath canonicalizes and confines a path argument. op is
// "read" or "write"; both are confined identically today but the
// operation is part of the surface so stricter write policies can
// hang off it.
func (c *invocationContext) ResolvePath(path, op string) (string, error) {
	resolved, err := c.gate.Resolver().Resolve(path)
	if err != nil {
		return "", &registry.ToolError{
			Code:    permission.CodeDeniedPathAllowlist,
			Message: err.Error(),
			Details: map[string]interface{}{"path": path, "operation": op},
		}
	}
	return resolved, nil
}

// ValidateCommand checks an executable against the command allowlist.
func (c *invocationContext) ValidateCommand(command string) error {
	if d := c.gate.CheckCommand(command); d != nil {
		return &registry.ToolError{Code: d.Code, Message: d.Message, Details: d.Details}
	}
	return nil
}

func (c *invocationContext) DataDir() string {
	return c.dataDir
}

func (c *invocationContext) StartTime() time.Time {
	return c.start
}

func (c *invocationContext) Agent() permission.Agent {
	return c.agent
}

func (c *invocationContext) Permissions() permission.Config {
	return c.gate.Config()
}
