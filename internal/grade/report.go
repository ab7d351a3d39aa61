package grade

// ActualState marks what the resolver found at a field path in the
// candidate submission.
type ActualState string

const (
	ActualPresent   ActualState = "present"
	ActualMissing   ActualState = "missing"
	ActualTypeError ActualState = "type_error"
)

// FieldResult is the graded outcome of one rubric leaf. It is produced
// exactly once per leaf during a scoring pass and never mutated afterwards.
type FieldResult struct {
	Path           string      `json:"path"`
	Section        string      `json:"section"`
	Label          string      `json:"label,omitempty"`
	Expected       any         `json:"expected"`
	Actual         any         `json:"actual,omitempty"`
	ActualState    ActualState `json:"actual_state"`
	PointsEarned   float64     `json:"points_earned"`
	PointsPossible float64     `json:"points_possible"`
	Passed         bool        `json:"passed"`
	Critical       bool        `json:"critical,omitempty"`
	Detail         string      `json:"detail,omitempty"`
}

type SectionScore struct {
	PointsEarned float64 `json:"points_earned"`
	MaxPoints    float64 `json:"max_points"`
	Percentage   float64 `json:"percentage"`
}

type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// ScoreReport is the complete output of one scoring run. Downstream
// aggregation tooling greps result files for overall_score, so that field
// name is load-bearing.
type ScoreReport struct {
	CandidateID      string                  `json:"candidate_id"`
	OverallScore     float64                 `json:"overall_score"`
	Passed           bool                    `json:"passed"`
	Verdict          Verdict                 `json:"verdict"`
	OverallEarned    float64                 `json:"overall_earned"`
	OverallPossible  float64                 `json:"overall_possible"`
	SectionScores    map[string]SectionScore `json:"section_scores"`
	FieldDetails     []FieldResult           `json:"field_details"`
	CriticalFailures []string                `json:"critical_failures"`
	Defect           string                  `json:"defect,omitempty"`
}
