package router

import (
	"sort"
	"strings"

	"github.com/bill-buster/personal-assistant-sub001/pkg/registry"
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "of": true,
	"for": true, "and": true, "or": true, "in": true, "on": true,
	"my": true, "me": true, "please": true, "with": true, "this": true,
	"that": true, "is": true, "it": true,
}

// heuristic scores registered tools by keyword overlap between the
// input tokens and each tool's name, description, and parameter names.
// It accepts the top candidate only when its score clears the
// threshold and no runner-up is within the margin; a tie falls
// through to the model stage rather than guessing.
type heuristic struct {
	reg       *registry.Registry
	threshold float64
	margin    float64
}

func newHeuristic(reg *registry.Registry, threshold, margin float64) *heuristic {
	if threshold <= 0 {
		threshold = 0.5
	}
	if margin <= 0 {
		margin = 0.15
	}
	return &heuristic{reg: reg, threshold: threshold, margin: margin}
}

type candidate struct {
	spec  registry.ToolSpec
	score float64
}

func (h *heuristic) resolve(input string) (*ToolCall, bool) {
	tokens := tokenize(input)
	if len(tokens) == 0 {
		return nil, false
	}

	// registry.List is sorted by name, so scoring is deterministic.
	candidates := make([]candidate, 0)
	for _, spec := range h.reg.List() {
		if score := h.score(tokens, spec); score > 0 {
			candidates = append(candidates, candidate{spec: spec, score: score})
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	top := candidates[0]
	if top.score < h.threshold {
		return nil, false
	}
	if len(candidates) > 1 && top.score-candidates[1].score < h.margin {
		return nil, false
	}

	args, ok := bindHeuristicArgs(top.spec, tokens, input)
	if !ok {
		return nil, false
	}
	return &ToolCall{
		Tool:       top.spec.Name,
		Args:       args,
		Stage:      StageHeuristic,
		Confidence: top.score,
	}, true
}

// score is the fraction of input tokens present in the tool's keyword
// set.
func (h *heuristic) score(tokens []string, spec registry.ToolSpec) float64 {
	keywords := keywordSet(spec)
	matched := 0
	for _, tok := range tokens {
		if keywords[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

func keywordSet(spec registry.ToolSpec) map[string]bool {
	set := make(map[string]bool)
	for _, part := range strings.Split(spec.Name, "_") {
		set[part] = true
	}
	for _, word := range tokenize(spec.Description) {
		set[word] = true
	}
	for name := range spec.Parameters {
		set[name] = true
	}
	return set
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// bindHeuristicArgs fills the tool's first required string parameter
// with the input text after the leading verb token. Tools whose
// required parameters cannot be bound this way are skipped so the
// model stage can handle them.
func bindHeuristicArgs(spec registry.ToolSpec, tokens []string, input string) (map[string]interface{}, bool) {
	if len(spec.Required) == 0 {
		return map[string]interface{}{}, true
	}
	if len(spec.Required) > 1 {
		return nil, false
	}
	param, ok := spec.Parameters[spec.Required[0]]
	if !ok || param.Type != "string" {
		return nil, false
	}

	trimmed := strings.TrimSpace(input)
	rest := trimmed
	if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
		rest = strings.TrimSpace(trimmed[idx+1:])
	}
	if rest == "" {
		return nil, false
	}
	return map[string]interface{}{spec.Required[0]: rest}, true
}
