package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bill-buster/personal-assistant-sub001/pkg/registry"
)

const invokeTimeout = 30 * time.Second

// invokeRequest is the JSON written to a plugin subprocess on stdin.
type invokeRequest struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

// invokeResponse is the JSON a plugin subprocess writes on stdout.
type invokeResponse struct {
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// RegisterAll adds every tool of every manifest to the builder as an
// external tool. Collisions and invalid specs are skipped by the
// builder itself; the return value counts tools actually registered.
func RegisterAll(b *registry.Builder, manifests []*Manifest, logger zerolog.Logger) int {
	registered := 0
	for _, manifest := range manifests {
		for _, spec := range manifest.Tools {
			if b.AddExternal(spec, subprocessHandler(manifest, spec.Name, logger)) {
				registered++
			}
		}
	}
	return registered
}

// subprocessHandler builds a handler that shells out to the plugin's
// declared command. The executable passes through the command
// allowlist like any other command, so a manifest cannot smuggle in an
// arbitrary binary.
func subprocessHandler(manifest *Manifest, tool string, logger zerolog.Logger) registry.Handler {
	return func(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
		if err := env.ValidateCommand(manifest.Exec.Command); err != nil {
			return nil, err
		}

		payload, err := json.Marshal(invokeRequest{Tool: tool, Args: args})
		if err != nil {
			return nil, fmt.Errorf("failed to encode plugin request: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, invokeTimeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, manifest.Exec.Command, manifest.Exec.Args...)
		cmd.Dir = manifest.Dir
		cmd.Stdin = bytes.NewReader(payload)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			logger.Warn().
				Err(err).
				Str("plugin", manifest.ID).
				Str("tool", tool).
				Str("stderr", strings.TrimSpace(stderr.String())).
				Msg("Plugin subprocess failed")
			return nil, &registry.ToolError{
				Code:    "PLUGIN_EXEC_FAILED",
				Message: fmt.Sprintf("plugin %s failed: %v", manifest.ID, err),
			}
		}

		var resp invokeResponse
		if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
			return nil, &registry.ToolError{
				Code:    "PLUGIN_BAD_RESPONSE",
				Message: fmt.Sprintf("plugin %s returned unparseable output", manifest.ID),
			}
		}

		if !resp.OK {
			code, message := "PLUGIN_ERROR", "plugin reported failure"
			if resp.Error != nil {
				if resp.Error.Code != "" {
					code = resp.Error.Code
				}
				if resp.Error.Message != "" {
					message = resp.Error.Message
				}
			}
			return nil, &registry.ToolError{Code: code, Message: message}
		}

		var value interface{}
		if len(resp.Value) > 0 {
			if err := json.Unmarshal(resp.Value, &value); err != nil {
				return nil, &registry.ToolError{
					Code:    "PLUGIN_BAD_RESPONSE",
					Message: fmt.Sprintf("plugin %s returned an invalid value payload", manifest.ID),
				}
			}
		}
		return value, nil
	}
}
