package grade

import (
	"fmt"

	"skillbench/internal/rubric"
)

// Score walks the rubric against a (submission, answer key) pair and returns
// the full report. It is a pure function of its inputs: no I/O, no clock,
// no shared state, so independent submissions can be scored concurrently.
//
// A path that cannot be resolved in the answer key is a ConfigurationError
// and aborts the run; the same failure against the submission scores zero
// and grading continues.
func Score(r rubric.Rubric, submission, answerKey any) (*ScoreReport, error) {
	results := make([]FieldResult, 0, 16)
	for _, section := range r.Sections {
		for _, node := range section.Nodes {
			nodeResults, err := scoreNode(section.Name, nil, node, submission, answerKey, false)
			if err != nil {
				return nil, err
			}
			results = append(results, nodeResults...)
		}
	}
	report := Aggregate(results, r.Thresholds)
	return report, nil
}

// ScoreDefective builds the all-zero report for a submission that could not
// be parsed at all. The rest of the batch keeps going; only the rubric or
// answer key being broken stops a run.
func ScoreDefective(r rubric.Rubric, answerKey any, reason string) (*ScoreReport, error) {
	report, err := Score(r, map[string]any{}, answerKey)
	if err != nil {
		return nil, err
	}
	report.Defect = reason
	return report, nil
}

// scoreNode grades one rubric node. critical carries an enclosing
// composite's critical flag down to the leaves, so a failing field anywhere
// under a critical group gates the verdict.
func scoreNode(section string, prefix []rubric.Step, node rubric.Node, submission, answerKey any, critical bool) ([]FieldResult, error) {
	steps := prefix
	if node.Path != "" || node.Kind != rubric.KindComposite {
		parsed, err := rubric.ParsePath(node.Path)
		if err != nil {
			return nil, &ConfigurationError{Path: node.Path, Reason: err.Error()}
		}
		steps = append(append([]rubric.Step{}, prefix...), parsed...)
	}

	if node.Kind == rubric.KindComposite {
		children := make([]FieldResult, 0, len(node.Children))
		childPossible := 0.0
		for _, child := range node.Children {
			childResults, err := scoreNode(section, steps, child, submission, answerKey, critical || node.Critical)
			if err != nil {
				return nil, err
			}
			for _, item := range childResults {
				childPossible += item.PointsPossible
			}
			children = append(children, childResults...)
		}
		// An override weight rescales the whole subtree's points.
		if node.Weight > 0 && childPossible > 0 {
			factor := node.Weight / childPossible
			for i := range children {
				children[i].PointsEarned *= factor
				children[i].PointsPossible *= factor
			}
		}
		return children, nil
	}

	pathText := rubric.JoinPath(steps)
	expected, keyErr := Resolve(answerKey, steps)
	if keyErr != nil {
		return nil, &ConfigurationError{
			Path:   pathText,
			Reason: fmt.Sprintf("answer key does not resolve: %s", keyErr.Kind),
		}
	}

	result := FieldResult{
		Path:           pathText,
		Section:        section,
		Label:          node.Label,
		Expected:       expected,
		PointsPossible: node.Weight,
		Critical:       critical || node.Critical || node.Kind == rubric.KindCriticalBool,
	}

	actual, subErr := Resolve(submission, steps)
	if subErr != nil {
		result.ActualState = ActualMissing
		if subErr.Kind == ResolveNotAContainer {
			result.ActualState = ActualTypeError
		}
		result.Detail = subErr.Error()
		return []FieldResult{result}, nil
	}

	result.ActualState = ActualPresent
	result.Actual = actual
	outcome := Compare(node, expected, actual)
	result.PointsEarned = outcome.Ratio * node.Weight
	result.Passed = outcome.Passed
	result.Detail = outcome.Detail
	return []FieldResult{result}, nil
}
