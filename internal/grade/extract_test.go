package grade

import (
	"errors"
	"testing"
)

func TestExtractDocumentFencedBlock(t *testing.T) {
	text := "Here is my answer:\n```json\n{\"task1\": {\"total\": 42}}\n```\nLet me know if you need anything else."
	doc, err := ExtractDocument(text)
	if err != nil {
		t.Fatalf("ExtractDocument error: %v", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", doc)
	}
	if obj["task1"].(map[string]any)["total"].(float64) != 42 {
		t.Fatalf("wrong extracted value: %v", obj)
	}
}

func TestExtractDocumentBareJSON(t *testing.T) {
	doc, err := ExtractDocument(`{"a": 1}`)
	if err != nil {
		t.Fatalf("ExtractDocument error: %v", err)
	}
	if doc.(map[string]any)["a"].(float64) != 1 {
		t.Fatalf("wrong value: %v", doc)
	}
}

func TestExtractDocumentProseWrapped(t *testing.T) {
	text := `Sure! Based on the requirements, the budget breaks down as {"venue": 3000, "catering": 1200} which stays under the cap.`
	doc, err := ExtractDocument(text)
	if err != nil {
		t.Fatalf("ExtractDocument error: %v", err)
	}
	if doc.(map[string]any)["venue"].(float64) != 3000 {
		t.Fatalf("wrong value: %v", doc)
	}
}

func TestExtractDocumentBracesInsideStrings(t *testing.T) {
	text := `answer: {"note": "use {brackets} carefully", "n": 2}`
	doc, err := ExtractDocument(text)
	if err != nil {
		t.Fatalf("ExtractDocument error: %v", err)
	}
	if doc.(map[string]any)["n"].(float64) != 2 {
		t.Fatalf("wrong value: %v", doc)
	}
}

func TestExtractDocumentGarbageIsDefect(t *testing.T) {
	for _, text := range []string{"", "I cannot answer that.", "{broken json"} {
		_, err := ExtractDocument(text)
		var defect *SubmissionDefect
		if !errors.As(err, &defect) {
			t.Fatalf("input %q: expected SubmissionDefect, got %v", text, err)
		}
	}
}
