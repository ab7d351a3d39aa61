package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skillbench/internal/provider"
)

type fakeClient struct {
	answers map[string]string // keyed by model
	errs    map[string]error
}

func (f *fakeClient) Complete(_ context.Context, model, _, _ string, _ int) (string, provider.Usage, error) {
	if err, ok := f.errs[model]; ok {
		return "", provider.Usage{}, err
	}
	return f.answers[model], provider.Usage{InputTokens: 10, OutputTokens: 20}, nil
}

func writeTaskBundle(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"prompt.md": "Compute the invoice total.",
		"rubric.yaml": `sections:
  - name: Totals
    nodes:
      - label: Total
        path: total
        kind: numeric
        weight: 10
        tolerance:
          mode: absolute
          bound: 0.5
thresholds:
  overall_pass_percentage: 70
`,
		"answer_key.json": `{"total": 100}`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoadTasks(t *testing.T) {
	root := t.TempDir()
	writeTaskBundle(t, root, "invoice")
	writeTaskBundle(t, root, "audit")
	// directories without a rubric are skipped, not errors
	if err := os.MkdirAll(filepath.Join(root, "notes"), 0o755); err != nil {
		t.Fatal(err)
	}

	tasks, err := LoadTasks(root)
	if err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "audit" || tasks[1].ID != "invoice" {
		t.Fatalf("tasks not sorted by id: %s, %s", tasks[0].ID, tasks[1].ID)
	}
	if tasks[0].Prompt == "" {
		t.Fatal("prompt not loaded")
	}
}

func TestLoadTaskMissingKey(t *testing.T) {
	root := t.TempDir()
	writeTaskBundle(t, root, "broken")
	if err := os.Remove(filepath.Join(root, "broken", "answer_key.json")); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTask(filepath.Join(root, "broken")); err == nil {
		t.Fatal("expected error for missing answer key")
	}
}

func TestRunMatrix(t *testing.T) {
	root := t.TempDir()
	writeTaskBundle(t, root, "invoice")
	tasks, err := LoadTasks(root)
	if err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		answers: map[string]string{
			"model-good": "```json\n{\"total\": 100.2}\n```",
			"model-bad":  "The total is probably around one hundred.",
		},
		errs: map[string]error{
			"model-down": fmt.Errorf("api: overloaded"),
		},
	}
	report := Run(context.Background(), client, tasks, Options{
		Models:  []string{"model-good", "model-bad", "model-down"},
		Workers: 2,
	})

	if got := len(report.Results); got != 3 {
		t.Fatalf("expected 3 cells, got %d", got)
	}
	if report.Passed != 1 || report.Failed != 1 || report.Errored != 1 {
		t.Fatalf("counts passed=%d failed=%d errored=%d", report.Passed, report.Failed, report.Errored)
	}

	byModel := map[string]PairResult{}
	for _, r := range report.Results {
		byModel[r.Model] = r
	}
	good := byModel["model-good"]
	if good.Report == nil || !good.Report.Passed {
		t.Fatalf("model-good should pass: %+v", good)
	}
	if good.Report.CandidateID != "model-good" {
		t.Fatalf("candidate id = %q", good.Report.CandidateID)
	}
	bad := byModel["model-bad"]
	if bad.Report == nil || bad.Report.Defect == "" {
		t.Fatalf("prose answer should score as defective: %+v", bad)
	}
	if bad.Report.OverallScore != 0 {
		t.Fatalf("defective answer score = %v", bad.Report.OverallScore)
	}
	down := byModel["model-down"]
	if down.Report != nil || !strings.Contains(down.Error, "overloaded") {
		t.Fatalf("provider error should land in cell: %+v", down)
	}
}

func TestWriteCSV(t *testing.T) {
	root := t.TempDir()
	writeTaskBundle(t, root, "invoice")
	tasks, err := LoadTasks(root)
	if err != nil {
		t.Fatal(err)
	}
	client := &fakeClient{answers: map[string]string{
		"m1": "```json\n{\"total\": 100}\n```",
	}}
	report := Run(context.Background(), client, tasks, Options{Models: []string{"m1"}, Workers: 1})

	var buf bytes.Buffer
	if err := WriteCSV(&buf, report); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if lines[0] != "task,model,overall_score,passed,error" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "invoice,m1,100.00,true") {
		t.Fatalf("row = %q", lines[1])
	}
}

func TestWriteResults(t *testing.T) {
	root := t.TempDir()
	writeTaskBundle(t, root, "invoice")
	tasks, err := LoadTasks(root)
	if err != nil {
		t.Fatal(err)
	}
	client := &fakeClient{answers: map[string]string{
		"acme/model:v1": "```json\n{\"total\": 100}\n```",
	}}
	report := Run(context.Background(), client, tasks, Options{Models: []string{"acme/model:v1"}, Workers: 1})

	out := t.TempDir()
	if err := WriteResults(out, report); err != nil {
		t.Fatal(err)
	}
	// model name is sanitized for the directory layout
	path := filepath.Join(out, "invoice", "acme_model_v1", "test_results.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected report at %s: %v", path, err)
	}
}
