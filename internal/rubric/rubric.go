package rubric

// Kind selects the comparison rule applied to a graded field.
type Kind string

const (
	KindExact        Kind = "exact"
	KindNumeric      Kind = "numeric"
	KindSet          Kind = "set"
	KindSequence     Kind = "sequence"
	KindCriticalBool Kind = "critical_bool"
	KindComposite    Kind = "composite"
)

// ToleranceMode controls how a numeric bound is interpreted.
type ToleranceMode string

const (
	ModeAbsolute   ToleranceMode = "absolute"
	ModeRelative   ToleranceMode = "relative"
	ModePercentage ToleranceMode = "percentage"
)

// CreditStep is one entry of a stepped partial-credit schedule. Within is a
// multiplier of the tolerance bound; Ratio is the credit awarded when the
// deviation falls inside Within times the bound. Steps are checked in
// increasing Within order and the first match wins.
type CreditStep struct {
	Within float64 `json:"within" yaml:"within"`
	Ratio  float64 `json:"ratio" yaml:"ratio"`
}

type Tolerance struct {
	Mode          ToleranceMode `json:"mode" yaml:"mode"`
	Bound         float64       `json:"bound" yaml:"bound"`
	PartialCredit []CreditStep  `json:"partial_credit,omitempty" yaml:"partial_credit,omitempty"`
}

// Node is one graded field or field-group. Leaf nodes carry a comparison
// kind; composite nodes only group children. A composite with Weight > 0
// rescales its children's points to that weight, otherwise its effective
// weight is the sum of the children's.
type Node struct {
	Label         string     `json:"label,omitempty" yaml:"label,omitempty"`
	Path          string     `json:"path" yaml:"path"`
	Kind          Kind       `json:"kind" yaml:"kind"`
	Weight        float64    `json:"weight,omitempty" yaml:"weight,omitempty"`
	Critical      bool       `json:"critical,omitempty" yaml:"critical,omitempty"`
	Tolerance     *Tolerance `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	PenalizeExtra bool       `json:"penalize_extra,omitempty" yaml:"penalize_extra,omitempty"`
	Children      []Node     `json:"children,omitempty" yaml:"children,omitempty"`
}

func (n Node) EffectiveWeight() float64 {
	if n.Kind != KindComposite {
		return n.Weight
	}
	if n.Weight > 0 {
		return n.Weight
	}
	total := 0.0
	for _, child := range n.Children {
		total += child.EffectiveWeight()
	}
	return total
}

type Section struct {
	Name  string `json:"name" yaml:"name"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// Thresholds decide the pass/fail verdict after aggregation. The overall
// threshold is a pointer so an explicit 0 ("pass on completion") is
// distinguishable from an unset field, which defaults to 70.
type Thresholds struct {
	OverallPassPercentage       *float64 `json:"overall_pass_percentage,omitempty" yaml:"overall_pass_percentage,omitempty"`
	PerSectionMinimumPercentage *float64 `json:"per_section_minimum_percentage,omitempty" yaml:"per_section_minimum_percentage,omitempty"`
	RequireAllCriticalPass      bool     `json:"require_all_critical_pass" yaml:"require_all_critical_pass"`
}

// PassPercentage returns the overall pass threshold, defaulting to 70 when
// the rubric leaves it unset.
func (t Thresholds) PassPercentage() float64 {
	if t.OverallPassPercentage == nil {
		return 70
	}
	return *t.OverallPassPercentage
}

// Rubric is the declarative grading description for one exam task. It is
// built once from task configuration and never mutated during scoring.
type Rubric struct {
	Sections   []Section  `json:"sections" yaml:"sections"`
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`
}

func (r Rubric) TotalWeight() float64 {
	total := 0.0
	for _, section := range r.Sections {
		for _, node := range section.Nodes {
			total += node.EffectiveWeight()
		}
	}
	return total
}
