package router

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Pattern is one fast-path rule: a literal or regex shape over
// canonical command forms, bound to a tool and an argument binder.
// Patterns are tried in slice order; the first match wins.
type Pattern struct {
	Name  string
	Tool  string
	Regex *regexp.Regexp
	// Bind converts regex submatches into tool args.
	Bind func(groups []string) map[string]interface{}
	// Probe is a canonical input this pattern matches; exclusivity
	// verification asserts no other pattern matches it.
	Probe string
}

// Match applies the pattern to a trimmed input line.
func (p Pattern) Match(input string) (map[string]interface{}, bool) {
	groups := p.Regex.FindStringSubmatch(strings.TrimSpace(input))
	if groups == nil {
		return nil, false
	}
	if p.Bind == nil {
		return map[string]interface{}{}, true
	}
	return p.Bind(groups), true
}

// VerifyExclusive asserts the pattern table is mutually exclusive by
// construction: every pattern's canonical probe input matches that
// pattern and no other. Run once at router construction.
func VerifyExclusive(patterns []Pattern) error {
	for i, p := range patterns {
		if p.Probe == "" {
			return fmt.Errorf("pattern %q has no probe input", p.Name)
		}
		if _, ok := p.Match(p.Probe); !ok {
			return fmt.Errorf("pattern %q does not match its own probe %q", p.Name, p.Probe)
		}
		for j, other := range patterns {
			if i == j {
				continue
			}
			if _, ok := other.Match(p.Probe); ok {
				return fmt.Errorf("patterns %q and %q both match %q", p.Name, other.Name, p.Probe)
			}
		}
	}
	return nil
}

func bindText(key string) func([]string) map[string]interface{} {
	return func(groups []string) map[string]interface{} {
		return map[string]interface{}{key: strings.TrimSpace(groups[1])}
	}
}

// DefaultPatterns is the built-in fast-path table over the canonical
// command shapes the assistant understands.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:  "remember",
			Tool:  "remember",
			Regex: regexp.MustCompile(`(?i)^remember:\s*(.+)$`),
			Bind:  bindText("text"),
			Probe: "remember: buy milk",
		},
		{
			Name:  "recall",
			Tool:  "recall",
			Regex: regexp.MustCompile(`(?i)^recall\s+(.+)$`),
			Bind:  bindText("query"),
			Probe: "recall grocery list",
		},
		{
			Name:  "task-add",
			Tool:  "task_add",
			Regex: regexp.MustCompile(`(?i)^task\s+add\s+(.+)$`),
			Bind:  bindText("text"),
			Probe: "task add call the dentist",
		},
		{
			Name:  "task-list",
			Tool:  "task_list",
			Regex: regexp.MustCompile(`(?i)^task\s+list$`),
			Probe: "task list",
		},
		{
			Name:  "task-done",
			Tool:  "task_done",
			Regex: regexp.MustCompile(`(?i)^task\s+done\s+(\d+)$`),
			Bind: func(groups []string) map[string]interface{} {
				id, _ := strconv.Atoi(groups[1])
				return map[string]interface{}{"id": id}
			},
			Probe: "task done 3",
		},
		{
			Name:  "read-file",
			Tool:  "read_file",
			Regex: regexp.MustCompile(`(?i)^read\s+(\S+)$`),
			Bind:  bindText("path"),
			Probe: "read notes/today.md",
		},
		{
			Name:  "delete-file",
			Tool:  "delete_file",
			Regex: regexp.MustCompile(`(?i)^delete\s+file\s+(\S+)$`),
			Bind:  bindText("path"),
			Probe: "delete file notes/old.md",
		},
		{
			Name:  "run-command",
			Tool:  "run_command",
			Regex: regexp.MustCompile(`(?i)^run\s+(.+)$`),
			Bind:  bindText("command"),
			Probe: "run ls -la",
		},
	}
}
