// Package coretools registers the assistant's built-in tools. Handlers
// touch the filesystem and spawn commands only through the execution
// environment, so resource confinement is enforced in one place.
package coretools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bill-buster/personal-assistant-sub001/pkg/registry"
	"github.com/bill-buster/personal-assistant-sub001/pkg/store"
)

const (
	defaultRecallLimit = 20
	maxOutputBytes     = 64 * 1024
	commandTimeout     = 30 * time.Second
)

// Deps holds the stores the built-in tools operate on.
type Deps struct {
	Memory *store.MemoryStore
	Tasks  *store.TaskStore
}

// Register adds every built-in tool to the builder. Built-in
// descriptors are code, so a failure here is a programming error and
// aborts startup.
func Register(b *registry.Builder, deps Deps) error {
	if deps.Memory == nil || deps.Tasks == nil {
		return errors.New("coretools requires memory and task stores")
	}

	type builtin struct {
		spec    registry.ToolSpec
		handler registry.Handler
	}

	builtins := []builtin{
		{rememberSpec(), rememberHandler(deps)},
		{recallSpec(), recallHandler(deps)},
		{taskAddSpec(), taskAddHandler(deps)},
		{taskListSpec(), taskListHandler(deps)},
		{taskDoneSpec(), taskDoneHandler(deps)},
		{readFileSpec(), readFileHandler()},
		{writeFileSpec(), writeFileHandler()},
		{deleteFileSpec(), deleteFileHandler()},
		{runCommandSpec(), runCommandHandler()},
	}

	for _, t := range builtins {
		if err := b.AddBuiltin(t.spec, t.handler); err != nil {
			return fmt.Errorf("failed to register builtin: %w", err)
		}
	}
	return nil
}

func rememberSpec() registry.ToolSpec {
	return registry.ToolSpec{
		Name:        "remember",
		Status:      registry.StatusReady,
		Description: "Stores a free-text note in memory",
		Required:    []string{"text"},
		Parameters: map[string]registry.ParamSpec{
			"text": {Type: "string", Description: "Note text to store"},
		},
	}
}

func rememberHandler(deps Deps) registry.Handler {
	return func(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
		note, err := deps.Memory.Append(stringArg(args, "text"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": note.ID, "stored": note.Text}, nil
	}
}

func recallSpec() registry.ToolSpec {
	return registry.ToolSpec{
		Name:        "recall",
		Status:      registry.StatusReady,
		Description: "Searches stored memory notes by text",
		Parameters: map[string]registry.ParamSpec{
			"query": {Type: "string", Description: "Text to search for; empty returns recent notes"},
			"limit": {Type: "integer", Description: "Maximum notes to return"},
		},
	}
}

func recallHandler(deps Deps) registry.Handler {
	return func(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
		limit := intArg(args, "limit", defaultRecallLimit)
		notes, err := deps.Memory.Search(stringArg(args, "query"), limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"notes": notes, "count": len(notes)}, nil
	}
}

func taskAddSpec() registry.ToolSpec {
	return registry.ToolSpec{
		Name:        "task_add",
		Status:      registry.StatusReady,
		Description: "Adds a task to the task list",
		Required:    []string{"text"},
		Parameters: map[string]registry.ParamSpec{
			"text": {Type: "string", Description: "Task description"},
		},
	}
}

func taskAddHandler(deps Deps) registry.Handler {
	return func(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
		task, err := deps.Tasks.Add(stringArg(args, "text"))
		if err != nil {
			return nil, err
		}
		return task, nil
	}
}

func taskListSpec() registry.ToolSpec {
	return registry.ToolSpec{
		Name:        "task_list",
		Status:      registry.StatusReady,
		Description: "Lists tasks from the task list",
		Parameters: map[string]registry.ParamSpec{
			"all": {Type: "boolean", Description: "Include completed tasks"},
		},
	}
}

func taskListHandler(deps Deps) registry.Handler {
	return func(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
		all, _ := args["all"].(bool)
		tasks, err := deps.Tasks.List(!all)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"tasks": tasks, "count": len(tasks)}, nil
	}
}

func taskDoneSpec() registry.ToolSpec {
	return registry.ToolSpec{
		Name:        "task_done",
		Status:      registry.StatusReady,
		Description: "Marks a task complete by its numeric id",
		Required:    []string{"id"},
		Parameters: map[string]registry.ParamSpec{
			"id": {Type: "integer", Description: "Task id to complete"},
		},
	}
}

func taskDoneHandler(deps Deps) registry.Handler {
	return func(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
		id := int64(intArg(args, "id", 0))
		task, err := deps.Tasks.Done(id)
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, &registry.ToolError{
				Code:    "TASK_NOT_FOUND",
				Message: fmt.Sprintf("no task with id %d", id),
				Details: map[string]interface{}{"id": id},
			}
		}
		if err != nil {
			return nil, err
		}
		return task, nil
	}
}

func readFileSpec() registry.ToolSpec {
	return registry.ToolSpec{
		Name:        "read_file",
		Status:      registry.StatusReady,
		Description: "Reads a file from an allowed path",
		Required:    []string{"path"},
		Parameters: map[string]registry.ParamSpec{
			"path": {Type: "string", Description: "File path to read"},
		},
	}
}

func readFileHandler() registry.Handler {
	return func(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
		resolved, err := env.ResolvePath(stringArg(args, "path"), "read")
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(resolved)
		if os.IsNotExist(err) {
			return nil, &registry.ToolError{
				Code:    "FILE_NOT_FOUND",
				Message: fmt.Sprintf("no such file: %s", args["path"]),
			}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		content, truncated := clip(data)
		return map[string]interface{}{
			"path":      resolved,
			"content":   content,
			"truncated": truncated,
		}, nil
	}
}

func writeFileSpec() registry.ToolSpec {
	return registry.ToolSpec{
		Name:        "write_file",
		Status:      registry.StatusReady,
		Description: "Writes content to a file under an allowed path",
		Required:    []string{"path", "content"},
		Parameters: map[string]registry.ParamSpec{
			"path":    {Type: "string", Description: "File path to write"},
			"content": {Type: "string", Description: "Content to write"},
		},
	}
}

func writeFileHandler() registry.Handler {
	return func(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
		resolved, err := env.ResolvePath(stringArg(args, "path"), "write")
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create parent directory: %w", err)
		}
		content := stringArg(args, "content")
		if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write file: %w", err)
		}
		return map[string]interface{}{"path": resolved, "bytes": len(content)}, nil
	}
}

func deleteFileSpec() registry.ToolSpec {
	return registry.ToolSpec{
		Name:        "delete_file",
		Status:      registry.StatusReady,
		Description: "Deletes a file under an allowed path",
		Required:    []string{"path"},
		Parameters: map[string]registry.ParamSpec{
			"path": {Type: "string", Description: "File path to delete"},
		},
	}
}

func deleteFileHandler() registry.Handler {
	return func(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
		resolved, err := env.ResolvePath(stringArg(args, "path"), "write")
		if err != nil {
			return nil, err
		}
		if err := os.Remove(resolved); err != nil {
			if os.IsNotExist(err) {
				return nil, &registry.ToolError{
					Code:    "FILE_NOT_FOUND",
					Message: fmt.Sprintf("no such file: %s", args["path"]),
				}
			}
			return nil, fmt.Errorf("failed to delete file: %w", err)
		}
		return map[string]interface{}{"deleted": resolved}, nil
	}
}

func runCommandSpec() registry.ToolSpec {
	return registry.ToolSpec{
		Name:        "run_command",
		Status:      registry.StatusReady,
		Description: "Runs an allowlisted shell command and captures its output",
		Required:    []string{"command"},
		Parameters: map[string]registry.ParamSpec{
			"command": {Type: "string", Description: "Command line to run"},
		},
	}
}

func runCommandHandler() registry.Handler {
	return func(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
		command := strings.TrimSpace(stringArg(args, "command"))
		if command == "" {
			return nil, &registry.ToolError{
				Code:    "EMPTY_COMMAND",
				Message: "command cannot be empty",
			}
		}
		if err := env.ValidateCommand(command); err != nil {
			return nil, err
		}

		fields := strings.Fields(command)
		runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, fields[0], fields[1:]...)
		cmd.Dir = env.DataDir()
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()
		exitCode := 0
		if runErr != nil {
			var exitErr *exec.ExitError
			if errors.As(runErr, &exitErr) {
				exitCode = exitErr.ExitCode()
			} else {
				return nil, &registry.ToolError{
					Code:    "COMMAND_FAILED",
					Message: runErr.Error(),
				}
			}
		}

		out, outTruncated := clip(stdout.Bytes())
		errOut, errTruncated := clip(stderr.Bytes())
		return map[string]interface{}{
			"exit_code": exitCode,
			"stdout":    out,
			"stderr":    errOut,
			"truncated": outTruncated || errTruncated,
		}, nil
	}
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg accepts both native ints and the float64 json.Unmarshal
// produces for numbers.
func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func clip(data []byte) (string, bool) {
	if len(data) <= maxOutputBytes {
		return string(data), false
	}
	return string(data[:maxOutputBytes]), true
}
