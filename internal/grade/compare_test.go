package grade

import (
	"math"
	"testing"

	"skillbench/internal/rubric"
)

func TestCompareExactMatch(t *testing.T) {
	node := rubric.Node{Kind: rubric.KindExact}
	if out := Compare(node, "Denver", "Denver"); !out.Passed || out.Ratio != 1 {
		t.Fatalf("expected pass, got %+v", out)
	}
	if out := Compare(node, "Denver", "denver"); out.Passed || out.Ratio != 0 {
		t.Fatalf("string compare must be case-sensitive, got %+v", out)
	}
	if out := Compare(node, float64(5), float64(5.01)); out.Passed {
		t.Fatalf("5 vs 5.01 differ at two decimals, got %+v", out)
	}
	// 2-decimal rounding keeps float noise from failing currency answers.
	if out := Compare(node, 10.004, 10.0); !out.Passed {
		t.Fatalf("10.004 should round to 10.00, got %+v", out)
	}
}

func TestCompareNumericAbsoluteBoundary(t *testing.T) {
	node := rubric.Node{
		Kind:      rubric.KindNumeric,
		Tolerance: &rubric.Tolerance{Mode: rubric.ModeAbsolute, Bound: 5},
	}
	if out := Compare(node, float64(100), float64(105)); !out.Passed || out.Ratio != 1 {
		t.Fatalf("105 is inside the inclusive bound, got %+v", out)
	}
	if out := Compare(node, float64(100), float64(105.01)); out.Passed || out.Ratio != 0 {
		t.Fatalf("105.01 is outside the bound, got %+v", out)
	}
}

func TestCompareNumericRelativeBoundary(t *testing.T) {
	node := rubric.Node{
		Kind:      rubric.KindNumeric,
		Tolerance: &rubric.Tolerance{Mode: rubric.ModeRelative, Bound: 0.05},
	}
	if out := Compare(node, float64(200), float64(210)); !out.Passed {
		t.Fatalf("5%% deviation exactly should pass, got %+v", out)
	}
	if out := Compare(node, float64(200), float64(211)); out.Passed {
		t.Fatalf("5.5%% deviation should fail, got %+v", out)
	}
}

func TestCompareNumericPercentageMode(t *testing.T) {
	node := rubric.Node{
		Kind:      rubric.KindNumeric,
		Tolerance: &rubric.Tolerance{Mode: rubric.ModePercentage, Bound: 5},
	}
	if out := Compare(node, float64(200), float64(210)); !out.Passed {
		t.Fatalf("5 percentage points should pass, got %+v", out)
	}
	if out := Compare(node, float64(200), float64(211)); out.Passed {
		t.Fatalf("beyond 5 percentage points should fail, got %+v", out)
	}
}

func TestCompareNumericZeroExpectedFallsBackToAbsolute(t *testing.T) {
	node := rubric.Node{
		Kind:      rubric.KindNumeric,
		Tolerance: &rubric.Tolerance{Mode: rubric.ModeRelative, Bound: 0.5},
	}
	if out := Compare(node, float64(0), float64(0.4)); !out.Passed {
		t.Fatalf("expected absolute fallback when key value is zero, got %+v", out)
	}
	if out := Compare(node, float64(0), float64(0.6)); out.Passed {
		t.Fatalf("0.6 outside absolute fallback bound, got %+v", out)
	}
}

func TestCompareNumericPartialCreditSchedule(t *testing.T) {
	node := rubric.Node{
		Kind: rubric.KindNumeric,
		Tolerance: &rubric.Tolerance{
			Mode:  rubric.ModeAbsolute,
			Bound: 5,
			PartialCredit: []rubric.CreditStep{
				{Within: 1, Ratio: 1},
				{Within: 2, Ratio: 0.5},
			},
		},
	}
	if out := Compare(node, float64(100), float64(104)); out.Ratio != 1 || !out.Passed {
		t.Fatalf("inside bound expects full credit, got %+v", out)
	}
	out := Compare(node, float64(100), float64(108))
	if out.Ratio != 0.5 {
		t.Fatalf("inside 2x bound expects half credit, got %+v", out)
	}
	if out.Passed {
		t.Fatalf("partial credit is not a pass, got %+v", out)
	}
	if out := Compare(node, float64(100), float64(111)); out.Ratio != 0 {
		t.Fatalf("beyond schedule expects zero, got %+v", out)
	}
}

func TestCompareNumericFailsClosedOnGarbage(t *testing.T) {
	node := rubric.Node{
		Kind:      rubric.KindNumeric,
		Tolerance: &rubric.Tolerance{Mode: rubric.ModeAbsolute, Bound: 5},
	}
	if out := Compare(node, float64(100), "not a number"); out.Passed || out.Ratio != 0 {
		t.Fatalf("non-numeric actual must score zero, got %+v", out)
	}
	if out := Compare(node, float64(1200.50), "$1,200.50"); !out.Passed {
		t.Fatalf("currency-formatted string should coerce, got %+v", out)
	}
}

func TestCompareSetOverlapWithPenalty(t *testing.T) {
	node := rubric.Node{Kind: rubric.KindSet, PenalizeExtra: true}
	expected := []any{"A", "B", "C"}
	actual := []any{"A", "B", "D"}
	out := Compare(node, expected, actual)
	if math.Abs(out.Ratio-1.0/3.0) > 1e-9 {
		t.Fatalf("expected ratio 1/3, got %.4f", out.Ratio)
	}
	if out.Passed {
		t.Fatalf("partial overlap is not a pass")
	}
}

func TestCompareSetOverlapWithoutPenalty(t *testing.T) {
	node := rubric.Node{Kind: rubric.KindSet}
	out := Compare(node, []any{"A", "B", "C"}, []any{"A", "B", "D"})
	if math.Abs(out.Ratio-2.0/3.0) > 1e-9 {
		t.Fatalf("expected ratio 2/3, got %.4f", out.Ratio)
	}
}

func TestCompareSetPenaltyClampsAtZero(t *testing.T) {
	node := rubric.Node{Kind: rubric.KindSet, PenalizeExtra: true}
	out := Compare(node, []any{"A", "B"}, []any{"C", "D", "E"})
	if out.Ratio != 0 {
		t.Fatalf("penalty must clamp at zero, got %.4f", out.Ratio)
	}
}

func TestCompareSetEmptyExpected(t *testing.T) {
	node := rubric.Node{Kind: rubric.KindSet, PenalizeExtra: true}
	if out := Compare(node, []any{}, []any{}); !out.Passed || out.Ratio != 1 {
		t.Fatalf("empty/empty expects ratio 1, got %+v", out)
	}
	if out := Compare(node, []any{}, []any{"X"}); out.Ratio != 0 {
		t.Fatalf("unexpected entries with penalty expect zero, got %+v", out)
	}
}

func TestCompareSetScalarCoercion(t *testing.T) {
	node := rubric.Node{Kind: rubric.KindSet}
	if out := Compare(node, []any{"A"}, "A"); !out.Passed {
		t.Fatalf("scalar actual should coerce to a one-element set, got %+v", out)
	}
}

func TestCompareOrderedSequence(t *testing.T) {
	node := rubric.Node{Kind: rubric.KindSequence}
	out := Compare(node, []any{"prep", "cook", "serve"}, []any{"prep", "serve", "cook"})
	if math.Abs(out.Ratio-1.0/3.0) > 1e-9 {
		t.Fatalf("only position 0 matches, got %.4f", out.Ratio)
	}
	// Short answers count the missing tail as failing, never as a crash.
	out = Compare(node, []any{"a", "b", "c"}, []any{"a"})
	if math.Abs(out.Ratio-1.0/3.0) > 1e-9 {
		t.Fatalf("expected 1/3 for truncated answer, got %.4f", out.Ratio)
	}
	if out := Compare(node, []any{"a", "b"}, []any{"a", "b"}); !out.Passed {
		t.Fatalf("identical sequences should pass, got %+v", out)
	}
}

func TestCompareCriticalBoolean(t *testing.T) {
	node := rubric.Node{Kind: rubric.KindCriticalBool}
	if out := Compare(node, true, true); !out.Passed {
		t.Fatalf("matching booleans should pass, got %+v", out)
	}
	if out := Compare(node, true, false); out.Passed || out.Ratio != 0 {
		t.Fatalf("mismatched booleans should fail, got %+v", out)
	}
}
