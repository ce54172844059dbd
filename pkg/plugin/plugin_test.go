package plugin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bill-buster/personal-assistant-sub001/pkg/permission"
	"github.com/bill-buster/personal-assistant-sub001/pkg/registry"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type testEnv struct {
	root     string
	commands map[string]bool
}

func (e *testEnv) ResolvePath(path, op string) (string, error) { return path, nil }

func (e *testEnv) ValidateCommand(command string) error {
	name := filepath.Base(strings.Fields(command)[0])
	if !e.commands[name] {
		return &registry.ToolError{
			Code:    permission.CodeDeniedCmdAllowlist,
			Message: fmt.Sprintf("command %q is not allowlisted", name),
		}
	}
	return nil
}

func (e *testEnv) DataDir() string                { return e.root }
func (e *testEnv) StartTime() time.Time           { return time.Now() }
func (e *testEnv) Agent() permission.Agent        { return permission.SystemAgent() }
func (e *testEnv) Permissions() permission.Config { return permission.Config{} }

const validManifest = `{
  "id": "weather",
  "name": "Weather",
  "version": "1.2.0",
  "tools": [
    {
      "name": "weather_now",
      "status": "ready",
      "description": "Reports current weather",
      "required": ["city"],
      "parameters": {
        "city": {"type": "string", "description": "City name"}
      }
    }
  ],
  "exec": {"command": "sh", "args": ["./serve.sh"]}
}`

func writePlugin(t *testing.T, pluginsDir, dirName, manifest string) string {
	t.Helper()
	dir := filepath.Join(pluginsDir, dirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0o644))
	return dir
}

func TestManifestLoadValid(t *testing.T) {
	dir := writePlugin(t, t.TempDir(), "weather", validManifest)

	manifest, err := NewManifestLoader(testLogger()).Load(filepath.Join(dir, "plugin.json"))
	require.NoError(t, err)
	assert.Equal(t, "weather", manifest.ID)
	assert.Equal(t, "1.2.0", manifest.Version)
	require.Len(t, manifest.Tools, 1)
	assert.Equal(t, "weather_now", manifest.Tools[0].Name)
	assert.Equal(t, "sh", manifest.Exec.Command)
}

func TestManifestLoadRejects(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"not json", `{nope`},
		{"bad id", strings.Replace(validManifest, `"weather"`, `"Weather Caps"`, 1)},
		{"bad version", strings.Replace(validManifest, `"1.2.0"`, `"v1"`, 1)},
		{"no tools", strings.Replace(validManifest, `"tools": [`, `"tools2": [`, 1)},
		{"missing exec", strings.Replace(validManifest, `"exec"`, `"run"`, 1)},
		{"bad tool status", strings.Replace(validManifest, `"ready"`, `"shipping"`, 1)},
		{"bad param type", strings.Replace(validManifest, `"type": "string"`, `"type": "array"`, 1)},
		{"undeclared required", strings.Replace(validManifest, `["city"]`, `["country"]`, 1)},
	}

	loader := NewManifestLoader(testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writePlugin(t, t.TempDir(), "p", tt.manifest)
			_, err := loader.Load(filepath.Join(dir, "plugin.json"))
			assert.Error(t, err)
		})
	}
}

func TestDiscoverSkipsInvalid(t *testing.T) {
	pluginsDir := t.TempDir()
	writePlugin(t, pluginsDir, "weather", validManifest)
	writePlugin(t, pluginsDir, "broken", `{"id": "broken"}`)
	require.NoError(t, os.MkdirAll(filepath.Join(pluginsDir, "not-a-plugin"), 0o755))

	manifests, err := NewDiscovery(testLogger()).Discover(pluginsDir)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "weather", manifests[0].ID)
	assert.Equal(t, filepath.Join(pluginsDir, "weather"), manifests[0].Dir)
}

func TestDiscoverSkipsDuplicateID(t *testing.T) {
	pluginsDir := t.TempDir()
	writePlugin(t, pluginsDir, "a-weather", validManifest)
	writePlugin(t, pluginsDir, "b-weather", validManifest)

	manifests, err := NewDiscovery(testLogger()).Discover(pluginsDir)
	require.NoError(t, err)
	assert.Len(t, manifests, 1)
}

func TestDiscoverMissingDir(t *testing.T) {
	manifests, err := NewDiscovery(testLogger()).Discover(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Nil(t, manifests)
}

func TestRegisterAllNeverShadowsBuiltins(t *testing.T) {
	b := registry.NewBuilder()
	require.NoError(t, b.AddBuiltin(registry.ToolSpec{
		Name:        "weather_now",
		Status:      registry.StatusReady,
		Description: "builtin wins",
		Parameters:  map[string]registry.ParamSpec{},
	}, func(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
		return "builtin", nil
	}))

	dir := writePlugin(t, t.TempDir(), "weather", validManifest)
	manifest, err := NewManifestLoader(testLogger()).Load(filepath.Join(dir, "plugin.json"))
	require.NoError(t, err)

	registered := RegisterAll(b, []*Manifest{manifest}, testLogger())
	assert.Equal(t, 0, registered)

	reg := b.Build()
	tool, ok := reg.Lookup("weather_now")
	require.True(t, ok)
	out, err := tool.Handler(context.Background(), nil, &testEnv{})
	require.NoError(t, err)
	assert.Equal(t, "builtin", out)
}

func TestSubprocessHandlerRoundTrip(t *testing.T) {
	pluginsDir := t.TempDir()
	dir := writePlugin(t, pluginsDir, "weather", validManifest)
	script := `#!/bin/sh
cat > /dev/null
echo '{"ok":true,"value":{"forecast":"sunny"}}'
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "serve.sh"), []byte(script), 0o755))

	manifests, err := NewDiscovery(testLogger()).Discover(pluginsDir)
	require.NoError(t, err)
	require.Len(t, manifests, 1)

	b := registry.NewBuilder()
	require.Equal(t, 1, RegisterAll(b, manifests, testLogger()))
	reg := b.Build()

	tool, ok := reg.Lookup("weather_now")
	require.True(t, ok)

	env := &testEnv{root: pluginsDir, commands: map[string]bool{"sh": true}}
	out, err := tool.Handler(context.Background(), map[string]interface{}{"city": "Lisbon"}, env)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"forecast": "sunny"}, out)
}

func TestSubprocessHandlerErrorPayload(t *testing.T) {
	pluginsDir := t.TempDir()
	dir := writePlugin(t, pluginsDir, "weather", validManifest)
	script := `#!/bin/sh
cat > /dev/null
echo '{"ok":false,"error":{"code":"CITY_UNKNOWN","message":"no such city"}}'
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "serve.sh"), []byte(script), 0o755))

	manifest, err := NewManifestLoader(testLogger()).Load(filepath.Join(dir, "plugin.json"))
	require.NoError(t, err)
	manifest.Dir = dir

	handler := subprocessHandler(manifest, "weather_now", testLogger())
	env := &testEnv{root: pluginsDir, commands: map[string]bool{"sh": true}}

	_, err = handler(context.Background(), map[string]interface{}{"city": "Atlantis"}, env)
	require.Error(t, err)
	toolErr, ok := err.(*registry.ToolError)
	require.True(t, ok)
	assert.Equal(t, "CITY_UNKNOWN", toolErr.Code)
	assert.Equal(t, "no such city", toolErr.Message)
}

func TestSubprocessHandlerCommandDenied(t *testing.T) {
	dir := writePlugin(t, t.TempDir(), "weather", validManifest)
	manifest, err := NewManifestLoader(testLogger()).Load(filepath.Join(dir, "plugin.json"))
	require.NoError(t, err)
	manifest.Dir = dir

	handler := subprocessHandler(manifest, "weather_now", testLogger())
	env := &testEnv{commands: map[string]bool{}}

	_, err = handler(context.Background(), nil, env)
	require.Error(t, err)
	toolErr, ok := err.(*registry.ToolError)
	require.True(t, ok)
	assert.Equal(t, permission.CodeDeniedCmdAllowlist, toolErr.Code)
}

func TestSubprocessHandlerGarbageOutput(t *testing.T) {
	pluginsDir := t.TempDir()
	dir := writePlugin(t, pluginsDir, "weather", validManifest)
	script := `#!/bin/sh
cat > /dev/null
echo 'not json at all'
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "serve.sh"), []byte(script), 0o755))

	manifest, err := NewManifestLoader(testLogger()).Load(filepath.Join(dir, "plugin.json"))
	require.NoError(t, err)
	manifest.Dir = dir

	handler := subprocessHandler(manifest, "weather_now", testLogger())
	env := &testEnv{commands: map[string]bool{"sh": true}}

	_, err = handler(context.Background(), nil, env)
	require.Error(t, err)
	toolErr, ok := err.(*registry.ToolError)
	require.True(t, ok)
	assert.Equal(t, "PLUGIN_BAD_RESPONSE", toolErr.Code)
}
