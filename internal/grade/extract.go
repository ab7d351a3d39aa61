package grade

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractDocument pulls the candidate's JSON answer out of raw LLM output.
// Models wrap answers in Markdown fences or prepend prose, so the extraction
// tries, in order: a fenced block, the raw text, and the first balanced
// top-level JSON object or array. Failure is a SubmissionDefect; the
// submission then scores zero rather than aborting the batch.
func ExtractDocument(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &SubmissionDefect{Reason: "empty response"}
	}

	candidates := make([]string, 0, 3)
	if match := fencePattern.FindStringSubmatch(trimmed); match != nil {
		candidates = append(candidates, strings.TrimSpace(match[1]))
	}
	candidates = append(candidates, trimmed)
	if balanced := firstBalanced(trimmed); balanced != "" {
		candidates = append(candidates, balanced)
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		var doc any
		if err := json.Unmarshal([]byte(candidate), &doc); err == nil {
			switch doc.(type) {
			case map[string]any, []any:
				return doc, nil
			}
		}
	}
	return nil, &SubmissionDefect{Reason: "no parseable JSON document in response"}
}

// firstBalanced returns the first balanced {...} or [...] span, skipping
// braces inside string literals.
func firstBalanced(text string) string {
	start := -1
	var opener, closer byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			opener = text[i]
			closer = '}'
			if opener == '[' {
				closer = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
