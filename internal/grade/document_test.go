package grade

import (
	"encoding/json"
	"testing"

	"skillbench/internal/rubric"
)

func mustParseDoc(t *testing.T, raw string) any {
	t.Helper()
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("parse test document: %v", err)
	}
	return doc
}

func mustParsePath(t *testing.T, path string) []rubric.Step {
	t.Helper()
	steps, err := rubric.ParsePath(path)
	if err != nil {
		t.Fatalf("ParsePath(%q) error: %v", path, err)
	}
	return steps
}

func TestResolveNestedKeyAndIndex(t *testing.T) {
	doc := mustParseDoc(t, `{"task1":{"answers":[{"value":10},{"value":20}]}}`)
	value, resErr := Resolve(doc, mustParsePath(t, "task1.answers[1].value"))
	if resErr != nil {
		t.Fatalf("unexpected resolution error: %v", resErr)
	}
	if value.(float64) != 20 {
		t.Fatalf("expected 20, got %v", value)
	}
}

func TestResolveMatchByField(t *testing.T) {
	doc := mustParseDoc(t, `{"expenses":[
		{"category":"Catering","amount":1200.50},
		{"category":"Venue Rental","amount":3000}
	]}`)
	value, resErr := Resolve(doc, mustParsePath(t, "expenses[category=Venue Rental].amount"))
	if resErr != nil {
		t.Fatalf("unexpected resolution error: %v", resErr)
	}
	if value.(float64) != 3000 {
		t.Fatalf("expected 3000, got %v", value)
	}
}

func TestResolveMatchByNumericField(t *testing.T) {
	doc := mustParseDoc(t, `{"rows":[{"id":1,"name":"a"},{"id":2,"name":"b"}]}`)
	value, resErr := Resolve(doc, mustParsePath(t, "rows[id=2].name"))
	if resErr != nil {
		t.Fatalf("unexpected resolution error: %v", resErr)
	}
	if value.(string) != "b" {
		t.Fatalf("expected b, got %v", value)
	}
}

func TestResolveFailures(t *testing.T) {
	doc := mustParseDoc(t, `{"task1":{"total":5},"items":[{"kind":"x"}]}`)
	cases := []struct {
		path string
		kind ResolutionErrorKind
	}{
		{"task2.total", ResolveMissingKey},
		{"task1.total.deeper", ResolveNotAContainer},
		{"items[4]", ResolveIndexRange},
		{"items[kind=y]", ResolveNoMatch},
		{"task1[0]", ResolveNotAContainer},
	}
	for _, tc := range cases {
		_, resErr := Resolve(doc, mustParsePath(t, tc.path))
		if resErr == nil {
			t.Fatalf("path %q: expected resolution error", tc.path)
		}
		if resErr.Kind != tc.kind {
			t.Fatalf("path %q: expected %s, got %s", tc.path, tc.kind, resErr.Kind)
		}
	}
}

func TestResolveNeverPanicsOnScalarRoot(t *testing.T) {
	_, resErr := Resolve("just a string", mustParsePath(t, "anything"))
	if resErr == nil || resErr.Kind != ResolveNotAContainer {
		t.Fatalf("expected not_a_container, got %v", resErr)
	}
}
