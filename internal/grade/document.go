package grade

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"skillbench/internal/rubric"
)

// ResolutionErrorKind classifies why a field path could not be walked.
type ResolutionErrorKind string

const (
	ResolveMissingKey    ResolutionErrorKind = "missing_key"
	ResolveNotAContainer ResolutionErrorKind = "not_a_container"
	ResolveIndexRange    ResolutionErrorKind = "index_out_of_range"
	ResolveNoMatch       ResolutionErrorKind = "no_match"
)

// ResolutionError is a typed navigation failure. Submissions are untrusted
// and routinely malformed, so resolution never panics and never returns an
// untyped error; the caller decides whether the failure is a zero score or
// a configuration bug.
type ResolutionError struct {
	Kind ResolutionErrorKind
	Path string
	Step string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s at step %q in path %q", e.Kind, e.Step, e.Path)
}

// Resolve walks a decoded JSON document one step at a time. The document is
// the shape encoding/json produces for `any`: map[string]any, []any, and
// scalars.
func Resolve(doc any, steps []rubric.Step) (any, *ResolutionError) {
	current := doc
	for _, step := range steps {
		switch step.Kind {
		case rubric.StepKey:
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, &ResolutionError{Kind: ResolveNotAContainer, Path: rubric.JoinPath(steps), Step: step.String()}
			}
			value, exists := obj[step.Key]
			if !exists {
				return nil, &ResolutionError{Kind: ResolveMissingKey, Path: rubric.JoinPath(steps), Step: step.String()}
			}
			current = value
		case rubric.StepIndex:
			list, ok := current.([]any)
			if !ok {
				return nil, &ResolutionError{Kind: ResolveNotAContainer, Path: rubric.JoinPath(steps), Step: step.String()}
			}
			if step.Index >= len(list) {
				return nil, &ResolutionError{Kind: ResolveIndexRange, Path: rubric.JoinPath(steps), Step: step.String()}
			}
			current = list[step.Index]
		case rubric.StepMatch:
			list, ok := current.([]any)
			if !ok {
				return nil, &ResolutionError{Kind: ResolveNotAContainer, Path: rubric.JoinPath(steps), Step: step.String()}
			}
			found := false
			for _, item := range list {
				obj, isObj := item.(map[string]any)
				if !isObj {
					continue
				}
				if renderScalar(obj[step.MatchField]) == step.MatchValue {
					current = item
					found = true
					break
				}
			}
			if !found {
				return nil, &ResolutionError{Kind: ResolveNoMatch, Path: rubric.JoinPath(steps), Step: step.String()}
			}
		}
	}
	return current, nil
}

// renderScalar renders a scalar the way a rubric author would write it in a
// match step: numbers without a trailing ".0", everything else via Sprint.
func renderScalar(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
