// Package harness runs exam tasks against a set of candidate models and
// collects graded reports into a batch summary.
package harness

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"skillbench/internal/grade"
	"skillbench/internal/provider"
)

// ExamClient is the slice of the provider client the harness needs.
type ExamClient interface {
	Complete(ctx context.Context, model, system, prompt string, maxTokens int) (string, provider.Usage, error)
}

// DefaultSystemPrompt frames the exam so answers come back machine-readable.
const DefaultSystemPrompt = "You are taking a practical occupational exam. " +
	"Answer with a single JSON object inside a ```json fenced block and nothing else. " +
	"Do not add commentary before or after the block."

// Options controls a batch run.
type Options struct {
	Models       []string
	Workers      int
	MaxTokens    int
	SystemPrompt string
	OutDir       string
}

// PairResult is the outcome of one (task, model) cell of the run matrix.
type PairResult struct {
	Task       string             `json:"task"`
	Model      string             `json:"model"`
	Report     *grade.ScoreReport `json:"report,omitempty"`
	Error      string             `json:"error,omitempty"`
	Usage      provider.Usage     `json:"usage"`
	DurationMS int64              `json:"duration_ms"`
}

// BatchReport aggregates a full run matrix.
type BatchReport struct {
	GeneratedAt string       `json:"generated_at"`
	Models      []string     `json:"models"`
	Tasks       []string     `json:"tasks"`
	Results     []PairResult `json:"results"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	Errored     int          `json:"errored"`
}

// Run executes every task against every model using a bounded worker pool.
// Provider failures and malformed answers never abort the batch; they land
// in the matching cell as an error or a defective zero-score report.
func Run(ctx context.Context, client ExamClient, tasks []Task, opts Options) *BatchReport {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}

	report := &BatchReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Models:      opts.Models,
	}
	for _, task := range tasks {
		report.Tasks = append(report.Tasks, task.ID)
	}

	type job struct {
		index int
		task  Task
		model string
	}
	jobs := make(chan job)
	results := make([]PairResult, len(tasks)*len(opts.Models))

	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = runPair(ctx, client, j.task, j.model, opts)
			}
		}()
	}
	index := 0
	for _, task := range tasks {
		for _, model := range opts.Models {
			jobs <- job{index: index, task: task, model: model}
			index++
		}
	}
	close(jobs)
	wg.Wait()

	report.Results = results
	for _, r := range results {
		switch {
		case r.Error != "":
			report.Errored++
		case r.Report != nil && r.Report.Passed:
			report.Passed++
		default:
			report.Failed++
		}
	}
	return report
}

func runPair(ctx context.Context, client ExamClient, task Task, model string, opts Options) PairResult {
	start := time.Now()
	result := PairResult{Task: task.ID, Model: model}

	answer, usage, err := client.Complete(ctx, model, opts.SystemPrompt, task.Prompt, opts.MaxTokens)
	result.Usage = usage
	result.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	scored, err := ScoreAnswer(task, model, answer)
	result.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Report = scored
	return result
}

// ScoreAnswer grades one raw answer against the task's rubric.
// Unextractable answers become defective zero-score reports; a broken
// answer key surfaces as an error since that is task misconfiguration.
func ScoreAnswer(task Task, candidateID, answer string) (*grade.ScoreReport, error) {
	doc, err := grade.ExtractDocument(answer)
	if err != nil {
		var defect *grade.SubmissionDefect
		if errors.As(err, &defect) {
			scored, derr := grade.ScoreDefective(task.Rubric, task.AnswerKey, defect.Reason)
			if derr != nil {
				return nil, derr
			}
			scored.CandidateID = candidateID
			return scored, nil
		}
		return nil, err
	}
	scored, err := grade.Score(task.Rubric, doc, task.AnswerKey)
	if err != nil {
		return nil, err
	}
	scored.CandidateID = candidateID
	return scored, nil
}

// WriteResults persists each graded report under outDir/<task>/<model>/.
func WriteResults(outDir string, report *BatchReport) error {
	for _, r := range report.Results {
		if r.Report == nil {
			continue
		}
		path := filepath.Join(outDir, r.Task, sanitize(r.Model), "test_results.json")
		if err := grade.WriteReport(path, r.Report); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatchReport writes the full matrix as one indented JSON document.
func WriteBatchReport(path string, report *BatchReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// WriteCSV emits the overall-score matrix, one row per (task, model) cell.
func WriteCSV(w io.Writer, report *BatchReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"task", "model", "overall_score", "passed", "error"}); err != nil {
		return err
	}
	for _, r := range report.Results {
		row := []string{r.Task, r.Model, "", "", r.Error}
		if r.Report != nil {
			row[2] = strconv.FormatFloat(r.Report.OverallScore, 'f', 2, 64)
			row[3] = strconv.FormatBool(r.Report.Passed)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

var _ ExamClient = (*provider.Client)(nil)
