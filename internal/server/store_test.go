package server

import (
	"path/filepath"
	"testing"

	"skillbench/internal/grade"
	"skillbench/internal/harness"
)

func gradedBatch(task, model string, score float64, passed bool, critical []string) *harness.BatchReport {
	verdict := grade.VerdictFail
	passedCount, failedCount := 0, 1
	if passed {
		verdict = grade.VerdictPass
		passedCount, failedCount = 1, 0
	}
	return &harness.BatchReport{
		Models: []string{model},
		Tasks:  []string{task},
		Results: []harness.PairResult{{
			Task:       task,
			Model:      model,
			DurationMS: 1500,
			Report: &grade.ScoreReport{
				OverallScore:     score,
				Passed:           passed,
				Verdict:          verdict,
				CriticalFailures: critical,
			},
		}},
		Passed: passedCount,
		Failed: failedCount,
	}
}

func finishGradedRun(t *testing.T, store *MemoryFileStore, runID string, report *harness.BatchReport, status string) {
	t.Helper()
	if err := store.CreateRun(RunMeta{
		RunID:       runID,
		Status:      "queued",
		Source:      "admin.manual",
		CreatorType: "admin",
		CreatedAt:   nowRFC3339(),
	}); err != nil {
		t.Fatalf("CreateRun %s: %v", runID, err)
	}
	if _, err := store.UpdateRun(runID, func(m *RunMeta) {
		m.Status = status
		m.Report = report
		m.Summary = summarizeBatch(report)
		m.FinishedAt = nowRFC3339()
	}); err != nil {
		t.Fatalf("UpdateRun %s: %v", runID, err)
	}
}

func TestMemoryStoreGradedRunSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewMemoryFileStore(path)
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	finishGradedRun(t, store, "run_1", gradedBatch("invoice", "model-a", 85, true, nil), "pass")
	if _, err := store.AppendRunEvent("run_1", "task_result", "invoice graded", map[string]any{"average_score": 85.0}); err != nil {
		t.Fatalf("AppendRunEvent: %v", err)
	}

	reopened, err := NewMemoryFileStore(path)
	if err != nil {
		t.Fatalf("reopen snapshot: %v", err)
	}
	meta, ok := reopened.GetRun("run_1")
	if !ok {
		t.Fatal("run missing after reload")
	}
	if meta.Summary.AverageScore != 85 || meta.Summary.Passed != 1 {
		t.Fatalf("summary lost in snapshot: %+v", meta.Summary)
	}
	if meta.Report == nil || len(meta.Report.Results) != 1 || meta.Report.Results[0].Report.OverallScore != 85 {
		t.Fatalf("batch report lost in snapshot: %+v", meta.Report)
	}
	events := reopened.ListRunEvents("run_1", 0)
	if len(events) != 1 || events[0].Stage != "task_result" {
		t.Fatalf("events lost in snapshot: %+v", events)
	}
	// seq counter must continue past the reloaded events
	next, err := reopened.AppendRunEvent("run_1", "archive", "archived", nil)
	if err != nil {
		t.Fatalf("AppendRunEvent after reload: %v", err)
	}
	if next.Seq != 2 {
		t.Fatalf("expected seq 2 after reload, got %d", next.Seq)
	}
}

func TestMemoryStoreEventCursor(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	finishGradedRun(t, store, "run_ev", gradedBatch("invoice", "model-a", 50, false, nil), "fail")
	for _, stage := range []string{"queue", "task_start", "task_result"} {
		if _, err := store.AppendRunEvent("run_ev", stage, stage, nil); err != nil {
			t.Fatalf("AppendRunEvent %s: %v", stage, err)
		}
	}
	tail := store.ListRunEvents("run_ev", 2)
	if len(tail) != 1 || tail[0].Seq != 3 || tail[0].Stage != "task_result" {
		t.Fatalf("cursor should skip seq<=2, got %+v", tail)
	}
}

func TestMemoryStoreMetricsOverview(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	finishGradedRun(t, store, "run_pass", gradedBatch("invoice", "model-a", 90, true, nil), "pass")
	finishGradedRun(t, store, "run_fail", gradedBatch("safety", "model-b", 50, false, []string{"safety.exits_clear"}), "fail")

	overview := store.GetMetricsOverview()
	if overview.TotalRuns != 2 || overview.PassRuns != 1 || overview.FailRuns != 1 {
		t.Fatalf("run counts wrong: %+v", overview)
	}
	if overview.AverageScore != 70 {
		t.Fatalf("expected average score 70, got %.2f", overview.AverageScore)
	}
	if overview.CriticalFailures != 1 {
		t.Fatalf("expected 1 critical failure, got %d", overview.CriticalFailures)
	}
	if overview.AverageDuration != 1500 {
		t.Fatalf("expected 1500ms average duration, got %d", overview.AverageDuration)
	}
}
