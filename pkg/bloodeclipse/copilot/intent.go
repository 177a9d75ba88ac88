// Package copilot – intent.go decides whether a question needs a web search.
package copilot

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Decision is the outcome of intent classification.
type Decision struct {
	// NeedsSearch is true when Payload is a search query.
	NeedsSearch bool

	// Payload is either the search query or the direct answer.
	Payload string
}

var (
	// nonQueryChar matches anything a bare search query would not contain.
	nonQueryChar = regexp.MustCompile(`[^\w\s:,-]`)
	wordChar     = regexp.MustCompile(`\w`)
)

// looksLikeSearch reports whether a decision text reads as a search query:
// shorter than 120 characters, only word characters, whitespace, ':', ','
// and '-', and at least one word character.
func looksLikeSearch(text string) bool {
	return text != "" &&
		utf8.RuneCountInString(text) < 120 &&
		!nonQueryChar.MatchString(text) &&
		wordChar.MatchString(text)
}

// classifyHeuristic interprets free-form decision text.
func classifyHeuristic(text string) Decision {
	text = strings.TrimSpace(text)
	if looksLikeSearch(text) {
		return Decision{NeedsSearch: true, Payload: text}
	}
	return Decision{Payload: text}
}

// structuredDecision is the JSON reply the structured prompt asks for.
type structuredDecision struct {
	NeedsSearch *bool  `json:"needs_search"`
	Payload     string `json:"payload"`
}

// classifyDecision interprets the model's decision reply. In structured mode
// a JSON object (optionally inside a code fence) is expected; anything else
// falls back to the heuristic on the raw text. A search decision with an
// empty payload searches for the original query.
func classifyDecision(raw, query, mode string) Decision {
	if mode == IntentStructured {
		if d, ok := parseStructured(raw); ok {
			if d.NeedsSearch && d.Payload == "" {
				d.Payload = query
			}
			return d
		}
	}
	return classifyHeuristic(raw)
}

func parseStructured(raw string) (Decision, bool) {
	s := stripCodeFence(strings.TrimSpace(raw))

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return Decision{}, false
	}

	var sd structuredDecision
	if err := json.Unmarshal([]byte(s[start:end+1]), &sd); err != nil || sd.NeedsSearch == nil {
		return Decision{}, false
	}
	return Decision{NeedsSearch: *sd.NeedsSearch, Payload: strings.TrimSpace(sd.Payload)}, true
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
