package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"skillbench/internal/harness"
	"skillbench/internal/provider"
)

type RunManager struct {
	cfg         ServerConfig
	store       Store
	budget      *BudgetManager
	obs         *Observability
	tasks       []harness.Task
	tasksByID   map[string]harness.Task
	queue       chan queuedRun
	wg          sync.WaitGroup
	submitLimit *ipRateLimiter
}

type RunnerService interface {
	CreateAdminRun(request RunRequest, principal Principal, source string) (RunMeta, error)
	CreateSubmission(request SubmitRequest, ipHash, uaHash string) (RunMeta, error)
}

type queuedRun struct {
	RunID       string
	Request     RunRequest
	Creator     Principal
	CreatorType string
	Source      string
}

func NewRunManager(cfg ServerConfig, store Store, budget *BudgetManager, obs *Observability, tasks []harness.Task) *RunManager {
	maxParallel := cfg.Budget.MaxParallelRuns
	if maxParallel <= 0 {
		maxParallel = 2
	}
	byID := make(map[string]harness.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	manager := &RunManager{
		cfg:         cfg,
		store:       store,
		budget:      budget,
		obs:         obs,
		tasks:       tasks,
		tasksByID:   byID,
		queue:       make(chan queuedRun, maxParallel*8),
		submitLimit: newIPRateLimiter(cfg.Limits.SubmitRPM),
	}
	for i := 0; i < maxParallel; i++ {
		manager.wg.Add(1)
		go func() {
			defer manager.wg.Done()
			manager.worker()
		}()
	}
	return manager
}

func (m *RunManager) Shutdown() {
	close(m.queue)
	m.wg.Wait()
}

// TaskIDs lists the exam tasks this server can grade.
func (m *RunManager) TaskIDs() []string {
	out := make([]string, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, task.ID)
	}
	return out
}

func (m *RunManager) CreateAdminRun(request RunRequest, principal Principal, source string) (RunMeta, error) {
	if len(request.Models) == 0 {
		return RunMeta{}, errors.New("at least one model is required")
	}
	if strings.TrimSpace(request.Endpoint) == "" {
		request.Endpoint = "https://api.anthropic.com"
	}
	if request.TimeoutSec <= 0 {
		request.TimeoutSec = m.cfg.Budget.DefaultTimeoutSec
	}
	if request.BudgetCapUSD <= 0 {
		request.BudgetCapUSD = m.cfg.Budget.DefaultRunMaxUSD
	}
	if request.MaxTokens <= 0 {
		request.MaxTokens = m.cfg.Budget.DefaultMaxTokens
	}
	if request.Workers <= 0 {
		request.Workers = 2
	}
	if _, err := m.selectTasks(request.Tasks); err != nil {
		return RunMeta{}, err
	}
	runID, err := randomID("run")
	if err != nil {
		return RunMeta{}, err
	}
	meta := RunMeta{
		RunID:       runID,
		Status:      "queued",
		Source:      source,
		CreatorType: "admin",
		CreatorSub:  principal.Subject,
		Request:     request,
		CreatedAt:   nowRFC3339(),
	}
	if err := m.store.CreateRun(meta); err != nil {
		return RunMeta{}, err
	}
	_, _ = m.store.AppendRunEvent(runID, "queue", "run queued", map[string]any{
		"source": source,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     runID,
		ActorType: "admin",
		ActorSub:  principal.Subject,
		Action:    "run.create",
		Result:    "queued",
	})
	m.queue <- queuedRun{
		RunID:       runID,
		Request:     request,
		Creator:     principal,
		CreatorType: "admin",
		Source:      source,
	}
	return meta, nil
}

// CreateSubmission grades a user-supplied answer synchronously. No provider
// key is spent, so these bypass the run queue entirely.
func (m *RunManager) CreateSubmission(request SubmitRequest, ipHash, uaHash string) (RunMeta, error) {
	if !m.submitLimit.Allow(ipHash) {
		if m.obs != nil {
			m.obs.MarkBudgetBlocked(context.Background(), "submission_rate_limit")
		}
		_ = m.store.AppendAudit(AuditEvent{
			Timestamp: nowRFC3339(),
			ActorType: "user",
			Action:    "submission.reject",
			Result:    "rate_limited",
			IPHash:    ipHash,
			UAHash:    uaHash,
		})
		return RunMeta{}, errors.New("submission rate limit reached")
	}
	taskID := strings.TrimSpace(request.TaskID)
	task, ok := m.tasksByID[taskID]
	if !ok {
		return RunMeta{}, fmt.Errorf("unknown task: %s", taskID)
	}
	if strings.TrimSpace(request.Answer) == "" {
		return RunMeta{}, errors.New("answer is required")
	}
	candidate := strings.TrimSpace(request.CandidateID)
	if candidate == "" {
		candidate = "anonymous"
	}

	runID, err := randomID("sub")
	if err != nil {
		return RunMeta{}, err
	}
	startedAt := nowRFC3339()
	start := time.Now()
	scored, err := harness.ScoreAnswer(task, candidate, request.Answer)
	if err != nil {
		return RunMeta{}, fmt.Errorf("grade submission: %w", err)
	}
	cell := harness.PairResult{
		Task:       task.ID,
		Model:      candidate,
		Report:     scored,
		DurationMS: time.Since(start).Milliseconds(),
	}
	report := &harness.BatchReport{
		GeneratedAt: nowRFC3339(),
		Models:      []string{candidate},
		Tasks:       []string{task.ID},
		Results:     []harness.PairResult{cell},
	}
	if scored.Passed {
		report.Passed = 1
	} else {
		report.Failed = 1
	}
	status := "fail"
	if scored.Passed {
		status = "pass"
	}
	meta := RunMeta{
		RunID:       runID,
		Status:      status,
		Source:      "user.submission",
		CreatorType: "user",
		Request:     RunRequest{Tasks: []string{task.ID}},
		CreatedAt:   startedAt,
		StartedAt:   startedAt,
		FinishedAt:  nowRFC3339(),
		Report:      report,
		Summary:     summarizeBatch(report),
	}
	if err := m.store.CreateRun(meta); err != nil {
		return RunMeta{}, err
	}
	_, _ = m.store.AppendRunEvent(runID, "completed", "submission graded", map[string]any{
		"task":          task.ID,
		"overall_score": scored.OverallScore,
		"passed":        scored.Passed,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     runID,
		ActorType: "user",
		Action:    "submission.graded",
		Result:    status,
		IPHash:    ipHash,
		UAHash:    uaHash,
		Detail:    task.ID,
	})
	if m.obs != nil {
		m.obs.MarkRun(context.Background(), status)
		m.obs.MarkCriticalFailures(context.Background(), task.ID, len(scored.CriticalFailures))
	}
	return meta, nil
}

func (m *RunManager) worker() {
	for queued := range m.queue {
		m.executeRun(queued)
	}
}

func (m *RunManager) executeRun(queued queuedRun) {
	startedAt := nowRFC3339()
	_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
		meta.Status = "running"
		meta.StartedAt = startedAt
	})
	_, _ = m.store.AppendRunEvent(queued.RunID, "start", "run started", nil)

	tasks, err := m.selectTasks(queued.Request.Tasks)
	if err != nil {
		m.failRun(queued.RunID, "task selection failed", err)
		return
	}

	lease, err := m.budget.Acquire(queued.Request.BudgetCapUSD)
	if err != nil {
		_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
			meta.Status = "fail"
			meta.Error = "budget key unavailable: " + err.Error()
			meta.FinishedAt = nowRFC3339()
			meta.KeyUsage = KeyUsageRecord{
				RunID:         queued.RunID,
				BlockedReason: "budget_key_unavailable",
			}
		})
		_, _ = m.store.AppendRunEvent(queued.RunID, "error", "budget key unavailable", map[string]any{"error": err.Error()})
		if m.obs != nil {
			m.obs.MarkRun(context.Background(), "fail")
			m.obs.MarkBudgetBlocked(context.Background(), "key_unavailable")
		}
		return
	}

	timeout := time.Duration(queued.Request.TimeoutSec) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := provider.NewClient(provider.Config{
		BaseURL: queued.Request.Endpoint,
		APIKey:  lease.APIKey,
		Timeout: time.Duration(minInt(queued.Request.TimeoutSec, 120)) * time.Second,
	})
	opts := harness.Options{
		Models:       queued.Request.Models,
		Workers:      queued.Request.Workers,
		MaxTokens:    queued.Request.MaxTokens,
		SystemPrompt: queued.Request.SystemPrompt,
	}
	report := m.runTasksWithEvents(ctx, client, tasks, opts, queued.RunID)

	usage := EstimateUsage(report)
	usage.RunID = queued.RunID
	usage.KeyLabel = lease.Label
	for _, key := range m.cfg.Keys.ProviderKeys {
		if key.Label == lease.Label {
			usage.EstimatedCostUSD = EstimateCostUSD(usage, key)
			break
		}
	}
	m.budget.Commit(lease, usage)

	summary := summarizeBatch(report)
	status := reportOverallStatus(report)
	_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
		meta.Status = status
		meta.FinishedAt = nowRFC3339()
		meta.Report = report
		meta.EstimatedCost = usage.EstimatedCostUSD
		meta.KeyUsage = usage
		meta.Summary = summary
		if status == "fail" {
			meta.Error = "one or more model answers failed the exam"
		}
	})
	_, _ = m.store.AppendRunEvent(queued.RunID, "completed", "run completed", map[string]any{
		"status":         status,
		"estimated_cost": usage.EstimatedCostUSD,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     queued.RunID,
		ActorType: queued.CreatorType,
		ActorSub:  queued.Creator.Subject,
		Action:    "run.completed",
		Result:    status,
		Detail:    fmt.Sprintf("cost=%.4f key=%s", usage.EstimatedCostUSD, lease.Label),
	})
	if m.obs != nil {
		m.obs.MarkRun(ctx, status)
	}
}

// runTasksWithEvents grades one task at a time so the run's event stream
// shows progress, merging per-task batches into one report.
func (m *RunManager) runTasksWithEvents(
	ctx context.Context,
	client harness.ExamClient,
	tasks []harness.Task,
	opts harness.Options,
	runID string,
) *harness.BatchReport {
	merged := &harness.BatchReport{
		GeneratedAt: nowRFC3339(),
		Models:      opts.Models,
	}
	for _, task := range tasks {
		_, _ = m.store.AppendRunEvent(runID, "task_start", "task started", map[string]any{
			"task": task.ID,
		})
		start := time.Now()
		batch := harness.Run(ctx, client, []harness.Task{task}, opts)
		durationMS := time.Since(start).Milliseconds()

		merged.Tasks = append(merged.Tasks, task.ID)
		merged.Results = append(merged.Results, batch.Results...)
		merged.Passed += batch.Passed
		merged.Failed += batch.Failed
		merged.Errored += batch.Errored

		critical := 0
		scoreTotal := 0.0
		scored := 0
		for _, cell := range batch.Results {
			if cell.Report == nil {
				continue
			}
			critical += len(cell.Report.CriticalFailures)
			scoreTotal += cell.Report.OverallScore
			scored++
		}
		data := map[string]any{
			"task":        task.ID,
			"passed":      batch.Passed,
			"failed":      batch.Failed,
			"errored":     batch.Errored,
			"duration_ms": durationMS,
		}
		if scored > 0 {
			data["average_score"] = scoreTotal / float64(scored)
		}
		_, _ = m.store.AppendRunEvent(runID, "task_result", "task graded", data)
		if m.obs != nil {
			m.obs.MarkTask(ctx, task.ID, durationMS)
			m.obs.MarkCriticalFailures(ctx, task.ID, critical)
		}
	}
	return merged
}

func (m *RunManager) failRun(runID, message string, err error) {
	_, _ = m.store.UpdateRun(runID, func(meta *RunMeta) {
		meta.Status = "fail"
		meta.Error = message + ": " + err.Error()
		meta.FinishedAt = nowRFC3339()
	})
	_, _ = m.store.AppendRunEvent(runID, "error", message, map[string]any{"error": err.Error()})
	if m.obs != nil {
		m.obs.MarkRun(context.Background(), "fail")
	}
}

// selectTasks resolves a requested task subset, or all tasks when empty.
func (m *RunManager) selectTasks(ids []string) ([]harness.Task, error) {
	if len(m.tasks) == 0 {
		return nil, errors.New("no exam tasks loaded")
	}
	if len(ids) == 0 {
		return m.tasks, nil
	}
	out := make([]harness.Task, 0, len(ids))
	for _, id := range ids {
		task, ok := m.tasksByID[strings.TrimSpace(id)]
		if !ok {
			return nil, fmt.Errorf("unknown task: %s", id)
		}
		out = append(out, task)
	}
	return out, nil
}

func reportOverallStatus(report *harness.BatchReport) string {
	switch {
	case report.Failed > 0:
		return "fail"
	case report.Errored > 0:
		return "warn"
	default:
		return "pass"
	}
}

func randomID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type ipRateLimiter struct {
	mu      sync.Mutex
	rpm     int
	records map[string][]time.Time
}

func newIPRateLimiter(rpm int) *ipRateLimiter {
	if rpm <= 0 {
		rpm = 6
	}
	return &ipRateLimiter{
		rpm:     rpm,
		records: map[string][]time.Time{},
	}
}

func (l *ipRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(key) == "" {
		key = "unknown"
	}
	now := time.Now()
	cutoff := now.Add(-1 * time.Minute)
	items := l.records[key]
	items = filterRecentTime(items, cutoff)
	if len(items) >= l.rpm {
		l.records[key] = items
		return false
	}
	items = append(items, now)
	l.records[key] = items
	return true
}

func hashString(input string) string {
	sum := sha256Sum(input)
	return sum[:16]
}

func sha256Sum(input string) string {
	hash := sha256.New()
	_, _ = hash.Write([]byte(input))
	return hex.EncodeToString(hash.Sum(nil))
}
