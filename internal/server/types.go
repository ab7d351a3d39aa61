package server

import (
	"time"

	"skillbench/internal/harness"
)

type Principal struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// RunRequest describes an admin-initiated benchmark run: a set of candidate
// models graded against a set of exam tasks.
type RunRequest struct {
	Models       []string `json:"models"`
	Tasks        []string `json:"tasks,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Workers      int      `json:"workers,omitempty"`
	BudgetCapUSD float64  `json:"budget_cap,omitempty"`
	TimeoutSec   int      `json:"timeout_sec,omitempty"`
	Endpoint     string   `json:"endpoint,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// SubmitRequest is a user-supplied answer graded against one exam task.
// No provider call happens for these; the answer text is graded directly.
type SubmitRequest struct {
	TaskID      string `json:"task_id"`
	CandidateID string `json:"candidate_id,omitempty"`
	Answer      string `json:"answer"`
}

type RunMeta struct {
	RunID         string               `json:"run_id"`
	Status        string               `json:"status"`
	CreatorType   string               `json:"creator_type"`
	CreatorSub    string               `json:"creator_sub,omitempty"`
	CreatorEmail  string               `json:"creator_email,omitempty"`
	Source        string               `json:"source"`
	Request       RunRequest           `json:"request"`
	StartedAt     string               `json:"started_at,omitempty"`
	FinishedAt    string               `json:"finished_at,omitempty"`
	CreatedAt     string               `json:"created_at"`
	Error         string               `json:"error,omitempty"`
	Report        *harness.BatchReport `json:"report,omitempty"`
	Summary       RunSummary           `json:"summary"`
	KeyUsage      KeyUsageRecord       `json:"key_usage"`
	EstimatedCost float64              `json:"estimated_cost_usd"`
}

// RunSummary is the rolled-up view of a finished run's batch report.
type RunSummary struct {
	AverageScore     float64 `json:"average_score"`
	PassRate         float64 `json:"pass_rate"`
	Passed           int     `json:"passed"`
	Failed           int     `json:"failed"`
	Errored          int     `json:"errored"`
	CriticalFailures int     `json:"critical_failures"`
}

type KeyUsageRecord struct {
	RunID            string  `json:"run_id"`
	KeyLabel         string  `json:"key_label"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	BlockedReason    string  `json:"blocked_reason,omitempty"`
}

type AuditEvent struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id,omitempty"`
	ActorType string `json:"actor_type"`
	ActorSub  string `json:"actor_sub,omitempty"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	IPHash    string `json:"ip_hash,omitempty"`
	UAHash    string `json:"ua_hash,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type RunEvent struct {
	Seq       int64          `json:"seq"`
	Timestamp string         `json:"timestamp"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

type MetricsOverview struct {
	GeneratedAt      string  `json:"generated_at"`
	TotalRuns        int     `json:"total_runs"`
	RunningRuns      int     `json:"running_runs"`
	PassRuns         int     `json:"pass_runs"`
	WarnRuns         int     `json:"warn_runs"`
	FailRuns         int     `json:"fail_runs"`
	CriticalFailures int     `json:"critical_failures"`
	AverageDuration  int64   `json:"average_duration_ms"`
	AverageScore     float64 `json:"average_score"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

type StoreSnapshot struct {
	Runs   []RunMeta    `json:"runs"`
	Events []RunEvent   `json:"events"`
	Audit  []AuditEvent `json:"audit"`
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// summarizeBatch rolls one batch report into the stored run summary.
func summarizeBatch(report *harness.BatchReport) RunSummary {
	out := RunSummary{}
	if report == nil {
		return out
	}
	out.Passed = report.Passed
	out.Failed = report.Failed
	out.Errored = report.Errored
	scoreTotal := 0.0
	scored := 0
	for _, cell := range report.Results {
		if cell.Report == nil {
			continue
		}
		scoreTotal += cell.Report.OverallScore
		scored++
		out.CriticalFailures += len(cell.Report.CriticalFailures)
	}
	if scored > 0 {
		out.AverageScore = scoreTotal / float64(scored)
	}
	if total := len(report.Results); total > 0 {
		out.PassRate = float64(report.Passed) / float64(total)
	}
	return out
}
