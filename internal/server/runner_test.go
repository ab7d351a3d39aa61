package server

import (
	"strings"
	"testing"

	"skillbench/internal/harness"
	"skillbench/internal/rubric"
)

func passThreshold(v float64) *float64 {
	return &v
}

func testTask(t *testing.T) harness.Task {
	t.Helper()
	return harness.Task{
		ID:     "invoice",
		Prompt: "Compute the invoice total.",
		Rubric: rubric.Rubric{
			Sections: []rubric.Section{{
				Name: "Totals",
				Nodes: []rubric.Node{{
					Path:      "total",
					Kind:      rubric.KindNumeric,
					Weight:    10,
					Tolerance: &rubric.Tolerance{Mode: rubric.ModeAbsolute, Bound: 0.5},
				}},
			}},
			Thresholds: rubric.Thresholds{OverallPassPercentage: passThreshold(70)},
		},
		AnswerKey: map[string]any{"total": float64(100)},
	}
}

func newTestManager(t *testing.T) (*RunManager, *MemoryFileStore) {
	t.Helper()
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	cfg := DefaultServerConfig()
	cfg.Limits.SubmitRPM = 100
	manager := NewRunManager(cfg, store, NewBudgetManager(cfg), nil, []harness.Task{testTask(t)})
	t.Cleanup(manager.Shutdown)
	return manager, store
}

func TestCreateSubmissionGradesSynchronously(t *testing.T) {
	manager, store := newTestManager(t)

	meta, err := manager.CreateSubmission(SubmitRequest{
		TaskID:      "invoice",
		CandidateID: "alice",
		Answer:      "```json\n{\"total\": 100.2}\n```",
	}, "iphash", "uahash")
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	if meta.Status != "pass" {
		t.Fatalf("expected pass, got %s", meta.Status)
	}
	if meta.Report == nil || len(meta.Report.Results) != 1 {
		t.Fatalf("expected one graded cell: %+v", meta.Report)
	}
	cell := meta.Report.Results[0]
	if cell.Report == nil || cell.Report.CandidateID != "alice" {
		t.Fatalf("candidate id not carried: %+v", cell)
	}
	if meta.Summary.Passed != 1 || meta.Summary.AverageScore != 100 {
		t.Fatalf("summary = %+v", meta.Summary)
	}
	stored, ok := store.GetRun(meta.RunID)
	if !ok || stored.FinishedAt == "" {
		t.Fatalf("submission not persisted as finished run: %+v", stored)
	}
}

func TestCreateSubmissionProseAnswerFails(t *testing.T) {
	manager, _ := newTestManager(t)

	meta, err := manager.CreateSubmission(SubmitRequest{
		TaskID: "invoice",
		Answer: "the total is about one hundred",
	}, "iphash", "uahash")
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	if meta.Status != "fail" {
		t.Fatalf("expected fail, got %s", meta.Status)
	}
	cell := meta.Report.Results[0]
	if cell.Report == nil || cell.Report.Defect == "" {
		t.Fatalf("expected defective report: %+v", cell)
	}
}

func TestCreateSubmissionUnknownTask(t *testing.T) {
	manager, _ := newTestManager(t)
	_, err := manager.CreateSubmission(SubmitRequest{
		TaskID: "nope",
		Answer: "{}",
	}, "iphash", "uahash")
	if err == nil || !strings.Contains(err.Error(), "unknown task") {
		t.Fatalf("expected unknown task error, got %v", err)
	}
}

func TestCreateAdminRunValidation(t *testing.T) {
	manager, _ := newTestManager(t)
	if _, err := manager.CreateAdminRun(RunRequest{}, Principal{Subject: "admin"}, "admin.manual"); err == nil {
		t.Fatal("expected error when no models given")
	}
	if _, err := manager.CreateAdminRun(RunRequest{
		Models: []string{"m1"},
		Tasks:  []string{"nope"},
	}, Principal{Subject: "admin"}, "admin.manual"); err == nil {
		t.Fatal("expected error for unknown task in request")
	}
}

func TestSubmissionRateLimit(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultServerConfig()
	cfg.Limits.SubmitRPM = 1
	manager := NewRunManager(cfg, store, NewBudgetManager(cfg), nil, []harness.Task{testTask(t)})
	defer manager.Shutdown()

	req := SubmitRequest{TaskID: "invoice", Answer: "{\"total\": 100}"}
	if _, err := manager.CreateSubmission(req, "same-ip", "ua"); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if _, err := manager.CreateSubmission(req, "same-ip", "ua"); err == nil {
		t.Fatal("expected rate limit on second submission")
	}
}
