package grade

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"skillbench/internal/rubric"
)

// Outcome is the result of comparing one submitted value against the answer
// key under a rubric node's rule. Ratio is the credit fraction in [0, 1];
// Passed means the value met the rule outright, not merely earned partial
// credit.
type Outcome struct {
	Ratio  float64
	Passed bool
	Detail string
}

// Compare applies a leaf node's comparison rule. It fails closed: a missing,
// mistyped, or uncoercible actual value yields ratio 0, never an error.
func Compare(node rubric.Node, expected, actual any) Outcome {
	switch node.Kind {
	case rubric.KindExact:
		return compareExact(expected, actual)
	case rubric.KindNumeric:
		return compareNumeric(node.Tolerance, expected, actual)
	case rubric.KindSet:
		return compareSet(expected, actual, node.PenalizeExtra)
	case rubric.KindSequence:
		return compareSequence(expected, actual)
	case rubric.KindCriticalBool:
		return compareExact(expected, actual)
	default:
		return Outcome{Detail: fmt.Sprintf("no comparison rule for kind %q", node.Kind)}
	}
}

func compareExact(expected, actual any) Outcome {
	if equalValues(expected, actual) {
		return Outcome{Ratio: 1, Passed: true, Detail: "exact match"}
	}
	return Outcome{Detail: fmt.Sprintf("expected %s, got %s", renderScalar(expected), renderScalar(actual))}
}

func compareNumeric(tol *rubric.Tolerance, expected, actual any) Outcome {
	if tol == nil {
		return compareExact(expected, actual)
	}
	want, ok := toFloat(expected)
	if !ok {
		return Outcome{Detail: "answer key value is not numeric"}
	}
	got, ok := toFloat(actual)
	if !ok {
		return Outcome{Detail: fmt.Sprintf("value %s is not numeric", renderScalar(actual))}
	}
	// Monetary-style grading: compare on 2-decimal-rounded operands so
	// float representation noise cannot flip a boundary case.
	want = round2(want)
	got = round2(got)
	deviation := math.Abs(got - want)

	allowed := tol.Bound
	switch tol.Mode {
	case rubric.ModeRelative:
		if want != 0 {
			allowed = tol.Bound * math.Abs(want)
		}
	case rubric.ModePercentage:
		if want != 0 {
			allowed = tol.Bound / 100 * math.Abs(want)
		}
	}

	schedule := tol.PartialCredit
	if len(schedule) == 0 {
		schedule = []rubric.CreditStep{{Within: 1, Ratio: 1}}
	}
	ratio := 0.0
	for _, step := range schedule {
		if deviation <= round2(step.Within*allowed) {
			ratio = step.Ratio
			break
		}
	}
	passed := deviation <= allowed
	detail := fmt.Sprintf("deviation %.2f against bound %.2f", deviation, allowed)
	return Outcome{Ratio: ratio, Passed: passed, Detail: detail}
}

func compareSet(expected, actual any, penalizeExtra bool) Outcome {
	want := toStringSet(expected)
	got := toStringSet(actual)
	if len(want) == 0 {
		if len(got) == 0 {
			return Outcome{Ratio: 1, Passed: true, Detail: "both sets empty"}
		}
		if penalizeExtra {
			return Outcome{Detail: fmt.Sprintf("%d unexpected entries", len(got))}
		}
		return Outcome{Ratio: 1, Passed: true, Detail: "no expected entries"}
	}
	correct := 0
	for item := range got {
		if want[item] {
			correct++
		}
	}
	extra := len(got) - correct
	ratio := float64(correct) / float64(len(want))
	if penalizeExtra {
		ratio = math.Max(0, float64(correct-extra)) / float64(len(want))
	}
	passed := correct == len(want) && extra == 0
	detail := fmt.Sprintf("%d/%d correct, %d extra", correct, len(want), extra)
	return Outcome{Ratio: ratio, Passed: passed, Detail: detail}
}

func compareSequence(expected, actual any) Outcome {
	want, ok := toList(expected)
	if !ok {
		return Outcome{Detail: "answer key value is not a sequence"}
	}
	got, _ := toList(actual)
	if len(want) == 0 {
		if len(got) == 0 {
			return Outcome{Ratio: 1, Passed: true, Detail: "both sequences empty"}
		}
		return Outcome{Detail: fmt.Sprintf("expected empty sequence, got %d entries", len(got))}
	}
	matches := 0
	for i, wantItem := range want {
		if i < len(got) && equalValues(wantItem, got[i]) {
			matches++
		}
	}
	ratio := float64(matches) / float64(len(want))
	detail := fmt.Sprintf("%d/%d positions match", matches, len(want))
	return Outcome{Ratio: ratio, Passed: matches == len(want) && len(got) == len(want), Detail: detail}
}

// equalValues compares two decoded JSON values. Numbers are rounded to two
// decimals first; containers compare element-wise.
func equalValues(a, b any) bool {
	if af, aok := toFloatStrict(a); aok {
		bf, bok := toFloatStrict(b)
		return bok && round2(af) == round2(bf)
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalValues(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for key, value := range av {
			other, exists := bv[key]
			if !exists || !equalValues(value, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func toList(value any) ([]any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case []any:
		return v, true
	default:
		return nil, false
	}
}

// toStringSet coerces a value into a set of rendered strings. Scalars become
// single-element sets so a candidate answering "A" where ["A"] was expected
// degrades gracefully instead of erroring.
func toStringSet(value any) map[string]bool {
	out := map[string]bool{}
	switch v := value.(type) {
	case nil:
	case []any:
		for _, item := range v {
			rendered := renderScalar(item)
			if rendered != "" {
				out[rendered] = true
			}
		}
	default:
		rendered := renderScalar(v)
		if rendered != "" {
			out[rendered] = true
		}
	}
	return out
}

// toFloatStrict accepts only values that are numbers on the wire.
func toFloatStrict(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		return parsed, err == nil
	default:
		return 0, false
	}
}

// toFloat additionally accepts numeric strings, including ones with
// currency symbols or separators ("$1,200.50"), the shapes LLM answers
// actually take.
func toFloat(value any) (float64, bool) {
	if parsed, ok := toFloatStrict(value); ok {
		return parsed, true
	}
	s, ok := value.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
