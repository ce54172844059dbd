package router

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bill-buster/personal-assistant-sub001/pkg/cache"
	"github.com/bill-buster/personal-assistant-sub001/pkg/llm"
	"github.com/bill-buster/personal-assistant-sub001/pkg/registry"
)

func noop(ctx context.Context, args map[string]interface{}, env registry.Env) (interface{}, error) {
	return nil, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	b := registry.NewBuilder()

	add := func(name, desc string, required []string, params map[string]registry.ParamSpec) {
		require.NoError(t, b.AddBuiltin(registry.ToolSpec{
			Name:        name,
			Status:      registry.StatusReady,
			Description: desc,
			Required:    required,
			Parameters:  params,
		}, noop))
	}

	text := func(desc string) map[string]registry.ParamSpec {
		return map[string]registry.ParamSpec{"text": {Type: "string", Description: desc}}
	}

	add("remember", "stores a note in the memory store", []string{"text"}, text("note text"))
	add("recall", "searches notes in the memory store", []string{"query"},
		map[string]registry.ParamSpec{"query": {Type: "string", Description: "search query"}})
	add("task_add", "adds a task to the task list", []string{"text"}, text("task text"))
	add("task_list", "lists open tasks", nil, nil)
	add("read_file", "reads a file from the workspace", []string{"path"},
		map[string]registry.ParamSpec{"path": {Type: "string", Description: "file path"}})

	return b.Build()
}

// fakeCompleter counts upstream calls and replays scripted answers.
type fakeCompleter struct {
	mu      sync.Mutex
	calls   atomic.Int32
	answers []*llm.Completion
	err     error
	delay   time.Duration
}

func (f *fakeCompleter) Provider() string { return "fake" }

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	n := int(f.calls.Add(1))
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return &llm.Completion{Raw: "NO_MATCH"}, nil
	}
	idx := n - 1
	if idx >= len(f.answers) {
		idx = len(f.answers) - 1
	}
	return f.answers[idx], nil
}

func toolAnswer(tool string, args string) *llm.Completion {
	parsed := map[string]interface{}{}
	_ = json.Unmarshal([]byte(args), &parsed)
	return &llm.Completion{ToolName: tool, Args: parsed, Raw: args}
}

func newTestRouter(t *testing.T, completer llm.ChatCompleter) *Router {
	t.Helper()
	r, err := New(testRegistry(t), cache.New(), completer, DefaultPatterns(), Config{
		HeuristicThreshold: 0.5,
		HeuristicMargin:    0.15,
		FallbackRetries:    3,
		FallbackTimeout:    2 * time.Second,
		CacheTTL:           time.Minute,
		Model:              "test-model",
	}, nil)
	require.NoError(t, err)
	return r
}

func TestFastPathNeverCallsModel(t *testing.T) {
	completer := &fakeCompleter{}
	r := newTestRouter(t, completer)

	for i := 0; i < 5; i++ {
		res, rerr := r.Resolve(context.Background(), "remember: buy milk")
		require.Nil(t, rerr)
		assert.Equal(t, StageFastPath, res.Call.Stage)
		assert.Equal(t, "remember", res.Call.Tool)
		assert.Equal(t, map[string]interface{}{"text": "buy milk"}, res.Call.Args)
		assert.Equal(t, 1.0, res.Call.Confidence)
	}

	assert.Equal(t, int32(0), completer.calls.Load(), "fast path must not reach the model")
}

func TestFastPathShapes(t *testing.T) {
	r := newTestRouter(t, &fakeCompleter{})

	tests := []struct {
		input string
		tool  string
		args  map[string]interface{}
	}{
		{"remember: buy milk", "remember", map[string]interface{}{"text": "buy milk"}},
		{"Remember:   padded   ", "remember", map[string]interface{}{"text": "padded"}},
		{"task add call the dentist", "task_add", map[string]interface{}{"text": "call the dentist"}},
		{"task list", "task_list", map[string]interface{}{}},
		{"recall milk", "recall", map[string]interface{}{"query": "milk"}},
		{"read notes/today.md", "read_file", map[string]interface{}{"path": "notes/today.md"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res, rerr := r.Resolve(context.Background(), tt.input)
			require.Nil(t, rerr)
			assert.Equal(t, tt.tool, res.Call.Tool)
			assert.Equal(t, tt.args, res.Call.Args)
		})
	}
}

func TestFastPathUnregisteredToolFallsThrough(t *testing.T) {
	// task_done has a pattern but is not registered here, so the
	// pattern match must not produce a call.
	completer := &fakeCompleter{answers: []*llm.Completion{toolAnswer("task_list", `{}`)}}
	r := newTestRouter(t, completer)

	res, rerr := r.Resolve(context.Background(), "task done 3")
	require.Nil(t, rerr)
	assert.Equal(t, StageModelFallback, res.Call.Stage)
	assert.GreaterOrEqual(t, completer.calls.Load(), int32(1))
}

func TestVerifyExclusive(t *testing.T) {
	require.NoError(t, VerifyExclusive(DefaultPatterns()))

	overlapping := []Pattern{
		{
			Name: "a", Tool: "remember",
			Regex: regexp.MustCompile(`(?i)^remember:\s*(.+)$`),
			Bind:  bindText("text"),
			Probe: "remember: x",
		},
		{
			Name: "b", Tool: "recall",
			Regex: regexp.MustCompile(`(?i)^remember.*$`),
			Probe: "remember something",
		},
	}
	assert.Error(t, VerifyExclusive(overlapping))

	assert.Error(t, VerifyExclusive([]Pattern{{
		Name: "noprobe", Tool: "x", Regex: regexp.MustCompile(`^x$`),
	}}))
}

func TestHeuristicResolves(t *testing.T) {
	completer := &fakeCompleter{}
	r := newTestRouter(t, completer)

	// Not a fast-path shape, but the tokens overlap the remember
	// tool's keywords unambiguously.
	res, rerr := r.Resolve(context.Background(), "note remember milk")
	require.Nil(t, rerr)
	assert.Equal(t, StageHeuristic, res.Call.Stage)
	assert.Equal(t, "remember", res.Call.Tool)
	assert.Greater(t, res.Call.Confidence, 0.0)
	assert.Equal(t, int32(0), completer.calls.Load())
}

func TestHeuristicTieFallsThrough(t *testing.T) {
	// "task" alone scores task_add and task_list equally; the
	// heuristic must not guess.
	completer := &fakeCompleter{answers: []*llm.Completion{toolAnswer("task_list", `{}`)}}
	r := newTestRouter(t, completer)

	res, rerr := r.Resolve(context.Background(), "task stuff whatever")
	require.Nil(t, rerr)
	assert.Equal(t, StageModelFallback, res.Call.Stage)
	assert.GreaterOrEqual(t, completer.calls.Load(), int32(1))
}

func TestFallbackResolvesAndMemoizes(t *testing.T) {
	completer := &fakeCompleter{answers: []*llm.Completion{
		toolAnswer("remember", `{"text": "water the plants"}`),
	}}
	r := newTestRouter(t, completer)

	input := "could you maybe jot down that the plants need watering"

	res, rerr := r.Resolve(context.Background(), input)
	require.Nil(t, rerr)
	assert.Equal(t, StageModelFallback, res.Call.Stage)
	assert.Equal(t, "remember", res.Call.Tool)
	assert.False(t, res.CacheHit)
	assert.Equal(t, "test-model", res.Model)
	assert.Equal(t, int32(1), completer.calls.Load())

	// Identical input is served from cache without a model call.
	res, rerr = r.Resolve(context.Background(), input)
	require.Nil(t, rerr)
	assert.True(t, res.CacheHit)
	assert.Equal(t, "remember", res.Call.Tool)
	assert.Equal(t, int32(1), completer.calls.Load())
}

func TestFallbackCachedArgsIsolatedFromCallers(t *testing.T) {
	completer := &fakeCompleter{answers: []*llm.Completion{
		toolAnswer("read_file", `{"path": "notes/today.md"}`),
	}}
	r := newTestRouter(t, completer)

	input := "pull up the thing from this morning xyzzy"

	first, rerr := r.Resolve(context.Background(), input)
	require.Nil(t, rerr)
	require.Equal(t, StageModelFallback, first.Call.Stage)

	// Callers may annotate their resolution in place; the memoized
	// entry must not see it.
	first.Call.Args["confirm"] = true

	second, rerr := r.Resolve(context.Background(), input)
	require.Nil(t, rerr)
	assert.True(t, second.CacheHit)
	assert.NotContains(t, second.Call.Args, "confirm")
	assert.Equal(t, "notes/today.md", second.Call.Args["path"])
	assert.Equal(t, int32(1), completer.calls.Load())
}

func TestFallbackMalformedExhaustsRetries(t *testing.T) {
	completer := &fakeCompleter{answers: []*llm.Completion{
		{Raw: "I think you want the remember tool"},
		{Raw: "{broken json"},
		{Raw: "NO_MATCH"},
	}}
	r := newTestRouter(t, completer)

	_, rerr := r.Resolve(context.Background(), "something the fast path cannot parse xyzzy")
	require.NotNil(t, rerr)
	assert.Equal(t, CodeNoMatch, rerr.Code)
	assert.Equal(t, int32(3), completer.calls.Load(), "exactly the retry bound of upstream calls")
}

func TestFallbackUnregisteredToolRetries(t *testing.T) {
	completer := &fakeCompleter{answers: []*llm.Completion{
		toolAnswer("launch_rocket", `{}`),
	}}
	r := newTestRouter(t, completer)

	_, rerr := r.Resolve(context.Background(), "fire the thrusters xyzzy")
	require.NotNil(t, rerr)
	assert.Equal(t, CodeNoMatch, rerr.Code)
	assert.Equal(t, int32(3), completer.calls.Load())
}

func TestFallbackSchemaInvalidArgsRetries(t *testing.T) {
	completer := &fakeCompleter{answers: []*llm.Completion{
		toolAnswer("remember", `{"wrong_field": "x"}`),
		toolAnswer("remember", `{"text": 42}`),
		toolAnswer("remember", `{"text": "fixed"}`),
	}}
	r := newTestRouter(t, completer)

	res, rerr := r.Resolve(context.Background(), "make a note of fixed xyzzy")
	require.Nil(t, rerr)
	assert.Equal(t, "remember", res.Call.Tool)
	assert.Equal(t, "fixed", res.Call.Args["text"])
	assert.Equal(t, int32(3), completer.calls.Load())
}

func TestFallbackTimeout(t *testing.T) {
	completer := &fakeCompleter{delay: 5 * time.Second}
	reg := testRegistry(t)
	r, err := New(reg, cache.New(), completer, DefaultPatterns(), Config{
		FallbackRetries: 3,
		FallbackTimeout: 100 * time.Millisecond,
		CacheTTL:        time.Minute,
		Model:           "test-model",
	}, nil)
	require.NoError(t, err)

	_, rerr := r.Resolve(context.Background(), "slow request xyzzy")
	require.NotNil(t, rerr)
	assert.Equal(t, CodeTimeout, rerr.Code)
}

func TestFallbackConcurrentSingleUpstreamCall(t *testing.T) {
	completer := &fakeCompleter{
		answers: []*llm.Completion{toolAnswer("remember", `{"text": "shared"}`)},
		delay:   100 * time.Millisecond,
	}
	r := newTestRouter(t, completer)

	const callers = 6
	input := "please write down shared thing xyzzy"
	var wg sync.WaitGroup
	results := make([]*Resolution, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, rerr := r.Resolve(context.Background(), input)
			require.Nil(t, rerr)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), completer.calls.Load(), "concurrent misses must share one upstream call")
	for _, res := range results {
		assert.Equal(t, "remember", res.Call.Tool)
		assert.Equal(t, "shared", res.Call.Args["text"])
	}
}

func TestNoCompleterNoMatch(t *testing.T) {
	r, err := New(testRegistry(t), cache.New(), nil, DefaultPatterns(), Config{}, nil)
	require.NoError(t, err)

	_, rerr := r.Resolve(context.Background(), "completely unroutable gibberish xyzzy")
	require.NotNil(t, rerr)
	assert.Equal(t, CodeNoMatch, rerr.Code)
}

func TestInvalidateFallbackCache(t *testing.T) {
	completer := &fakeCompleter{answers: []*llm.Completion{
		toolAnswer("remember", `{"text": "v"}`),
	}}
	r := newTestRouter(t, completer)

	input := "jot down v xyzzy"
	_, rerr := r.Resolve(context.Background(), input)
	require.Nil(t, rerr)
	require.Equal(t, int32(1), completer.calls.Load())

	r.InvalidateFallbackCache()

	_, rerr = r.Resolve(context.Background(), input)
	require.Nil(t, rerr)
	assert.Equal(t, int32(2), completer.calls.Load(), "invalidation must force a fresh model call")
}
