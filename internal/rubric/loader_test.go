package rubric

import (
	"strings"
	"testing"
)

const sampleYAML = `
sections:
  - name: task1
    nodes:
      - path: task1.total_cost
        kind: numeric
        weight: 10
        tolerance:
          mode: absolute
          bound: 0.5
      - path: task1.vendors
        kind: set
        weight: 6
        penalize_extra: true
  - name: task2
    nodes:
      - path: task2
        kind: composite
        children:
          - path: steps
            kind: sequence
            weight: 4
          - path: approved
            kind: critical_bool
            weight: 2
            critical: true
thresholds:
  overall_pass_percentage: 70
  per_section_minimum_percentage: 50
  require_all_critical_pass: true
`

func TestParseYAMLRubric(t *testing.T) {
	r, err := Parse([]byte(sampleYAML), ".yaml")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(r.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(r.Sections))
	}
	if r.Thresholds.PassPercentage() != 70 {
		t.Fatalf("expected pass threshold 70, got %.2f", r.Thresholds.PassPercentage())
	}
	if r.Thresholds.PerSectionMinimumPercentage == nil || *r.Thresholds.PerSectionMinimumPercentage != 50 {
		t.Fatalf("expected section minimum 50")
	}
	if got := r.TotalWeight(); got != 22 {
		t.Fatalf("expected total weight 22, got %.2f", got)
	}
}

func TestParseJSONRubric(t *testing.T) {
	raw := `{"sections":[{"name":"s1","nodes":[{"path":"x","kind":"exact","weight":10}]}],"thresholds":{"overall_pass_percentage":70}}`
	r, err := Parse([]byte(raw), ".json")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if r.Sections[0].Nodes[0].Kind != KindExact {
		t.Fatalf("expected exact kind, got %s", r.Sections[0].Nodes[0].Kind)
	}
}

func TestParseDefaultsPassThreshold(t *testing.T) {
	raw := `{"sections":[{"name":"s1","nodes":[{"path":"x","kind":"exact","weight":1}]}],"thresholds":{}}`
	r, err := Parse([]byte(raw), ".json")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if r.Thresholds.OverallPassPercentage == nil || *r.Thresholds.OverallPassPercentage != 70 {
		t.Fatalf("expected default threshold 70, got %v", r.Thresholds.OverallPassPercentage)
	}
}

func TestParseKeepsExplicitZeroThreshold(t *testing.T) {
	raw := `{"sections":[{"name":"s1","nodes":[{"path":"x","kind":"exact","weight":1}]}],"thresholds":{"overall_pass_percentage":0}}`
	r, err := Parse([]byte(raw), ".json")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if r.Thresholds.OverallPassPercentage == nil || *r.Thresholds.OverallPassPercentage != 0 {
		t.Fatalf("explicit zero threshold was rewritten: %v", r.Thresholds.OverallPassPercentage)
	}
	if r.Thresholds.PassPercentage() != 0 {
		t.Fatalf("expected effective threshold 0, got %.2f", r.Thresholds.PassPercentage())
	}
}

func TestParseSortsPartialCreditSchedule(t *testing.T) {
	raw := `{"sections":[{"name":"s1","nodes":[{"path":"x","kind":"numeric","weight":1,
		"tolerance":{"mode":"absolute","bound":5,"partial_credit":[{"within":2,"ratio":0.5},{"within":1,"ratio":1}]}}]}],
		"thresholds":{"overall_pass_percentage":70}}`
	r, err := Parse([]byte(raw), ".json")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	schedule := r.Sections[0].Nodes[0].Tolerance.PartialCredit
	if schedule[0].Within != 1 || schedule[1].Within != 2 {
		t.Fatalf("schedule not sorted ascending: %+v", schedule)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			"no sections",
			`{"sections":[],"thresholds":{}}`,
			"no sections",
		},
		{
			"composite without children",
			`{"sections":[{"name":"s1","nodes":[{"path":"x","kind":"composite","weight":1}]}],"thresholds":{}}`,
			"composite requires",
		},
		{
			"leaf with children",
			`{"sections":[{"name":"s1","nodes":[{"path":"x","kind":"exact","weight":1,"children":[{"path":"y","kind":"exact","weight":1}]}]}],"thresholds":{}}`,
			"leaf node has children",
		},
		{
			"numeric without tolerance",
			`{"sections":[{"name":"s1","nodes":[{"path":"x","kind":"numeric","weight":1}]}],"thresholds":{}}`,
			"requires tolerance",
		},
		{
			"negative weight",
			`{"sections":[{"name":"s1","nodes":[{"path":"x","kind":"exact","weight":-1}]}],"thresholds":{}}`,
			"negative weight",
		},
		{
			"unknown kind",
			`{"sections":[{"name":"s1","nodes":[{"path":"x","kind":"vibes","weight":1}]}],"thresholds":{}}`,
			"unknown kind",
		},
		{
			"bad path",
			`{"sections":[{"name":"s1","nodes":[{"path":"items[","kind":"exact","weight":1}]}],"thresholds":{}}`,
			"unclosed bracket",
		},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.raw), ".json")
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}
