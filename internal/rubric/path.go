package rubric

import (
	"fmt"
	"strconv"
	"strings"
)

type StepKind string

const (
	StepKey   StepKind = "key"
	StepIndex StepKind = "index"
	StepMatch StepKind = "match"
)

// Step is one navigation move into a nested document: a map key, a list
// index, or a list element located by the value of one of its fields.
type Step struct {
	Kind       StepKind
	Key        string
	Index      int
	MatchField string
	MatchValue string
}

func (s Step) String() string {
	switch s.Kind {
	case StepIndex:
		return fmt.Sprintf("[%d]", s.Index)
	case StepMatch:
		return fmt.Sprintf("[%s=%s]", s.MatchField, s.MatchValue)
	default:
		return s.Key
	}
}

// ParsePath parses the dotted path syntax used by rubric nodes, e.g.
//
//	task3.expenses[category=Venue Rental].amount
//	answers[2].selected_codes
//
// Bracket segments holding an integer are index steps; segments holding
// field=value are match-by steps; everything else is a map key.
func ParsePath(path string) ([]Step, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("empty field path")
	}
	steps := make([]Step, 0, 4)
	rest := trimmed
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			if rest == "" {
				return nil, fmt.Errorf("path %q: trailing dot", path)
			}
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("path %q: unclosed bracket", path)
			}
			inner := rest[1:end]
			rest = rest[end+1:]
			if eq := strings.IndexByte(inner, '='); eq >= 0 {
				field := strings.TrimSpace(inner[:eq])
				value := strings.TrimSpace(inner[eq+1:])
				if field == "" {
					return nil, fmt.Errorf("path %q: match step missing field name", path)
				}
				steps = append(steps, Step{Kind: StepMatch, MatchField: field, MatchValue: value})
				continue
			}
			index, err := strconv.Atoi(strings.TrimSpace(inner))
			if err != nil {
				return nil, fmt.Errorf("path %q: bracket segment %q is neither an index nor field=value", path, inner)
			}
			if index < 0 {
				return nil, fmt.Errorf("path %q: negative index %d", path, index)
			}
			steps = append(steps, Step{Kind: StepIndex, Index: index})
		default:
			cut := len(rest)
			for i := 0; i < len(rest); i++ {
				if rest[i] == '.' || rest[i] == '[' {
					cut = i
					break
				}
			}
			key := rest[:cut]
			rest = rest[cut:]
			steps = append(steps, Step{Kind: StepKey, Key: key})
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("path %q: no steps", path)
	}
	return steps, nil
}

// JoinPath renders steps back into the textual path syntax.
func JoinPath(steps []Step) string {
	var b strings.Builder
	for i, step := range steps {
		if step.Kind == StepKey && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(step.String())
	}
	return b.String()
}
