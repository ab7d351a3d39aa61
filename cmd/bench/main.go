package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"skillbench/internal/harness"
	"skillbench/internal/provider"
)

func main() {
	baseURL := flag.String("base-url", envOr("CLAUDE_BASE_URL", "https://api.anthropic.com"), "Anthropic-compatible base URL")
	apiKey := flag.String("api-key", envOr("CLAUDE_API_KEY", ""), "API key for endpoint")
	models := flag.String("models", envOr("CLAUDE_MODEL", ""), "Comma-separated candidate model IDs")
	version := flag.String("anthropic-version", envOr("ANTHROPIC_VERSION", "2023-06-01"), "anthropic-version request header")
	beta := flag.String("anthropic-beta", envOr("ANTHROPIC_BETA", ""), "anthropic-beta request header (optional)")
	timeout := flag.Duration("timeout", 120*time.Second, "HTTP timeout per request")
	tasksDir := flag.String("tasks", "./tasks", "Directory of exam task bundles")
	taskFilter := flag.String("task", "", "Comma-separated task IDs to run (default all)")
	workers := flag.Int("workers", 2, "Concurrent grading workers")
	maxTokens := flag.Int("max-tokens", 4096, "Max tokens per model answer")
	systemPrompt := flag.String("system", "", "Override the exam system prompt")
	format := flag.String("format", "text", "Output format: text|json")
	outputPath := flag.String("out", "", "Write full batch report JSON to this file")
	outDir := flag.String("out-dir", "", "Write per-cell test_results.json files under this directory")
	csvPath := flag.String("csv", "", "Write overall_scores.csv to this file")
	strict := flag.Bool("strict", false, "Exit non-zero if any cell failed or errored")
	flag.Parse()

	if strings.TrimSpace(*apiKey) == "" {
		exitWith("CLAUDE_API_KEY or -api-key is required")
	}
	modelList := splitList(*models)
	if len(modelList) == 0 {
		exitWith("CLAUDE_MODEL or -models is required")
	}

	tasks, err := harness.LoadTasks(*tasksDir)
	if err != nil {
		exitWith("failed to load tasks: " + err.Error())
	}
	if filter := splitList(*taskFilter); len(filter) > 0 {
		tasks, err = selectTasks(tasks, filter)
		if err != nil {
			exitWith(err.Error())
		}
	}

	client := provider.NewClient(provider.Config{
		BaseURL: *baseURL,
		APIKey:  *apiKey,
		Version: *version,
		Beta:    *beta,
		Timeout: *timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout*time.Duration(len(tasks)*len(modelList)+1))
	defer cancel()

	report := harness.Run(ctx, client, tasks, harness.Options{
		Models:       modelList,
		Workers:      *workers,
		MaxTokens:    *maxTokens,
		SystemPrompt: *systemPrompt,
	})

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "json":
		printJSON(report)
	default:
		printText(report)
	}

	if strings.TrimSpace(*outputPath) != "" {
		if err := harness.WriteBatchReport(*outputPath, report); err != nil {
			exitWith("failed to write batch report: " + err.Error())
		}
	}
	if strings.TrimSpace(*outDir) != "" {
		if err := harness.WriteResults(*outDir, report); err != nil {
			exitWith("failed to write per-cell reports: " + err.Error())
		}
	}
	if strings.TrimSpace(*csvPath) != "" {
		if err := writeCSVFile(*csvPath, report); err != nil {
			exitWith("failed to write CSV summary: " + err.Error())
		}
	}

	if *strict && (report.Failed > 0 || report.Errored > 0) {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func selectTasks(tasks []harness.Task, ids []string) ([]harness.Task, error) {
	byID := make(map[string]harness.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	out := make([]harness.Task, 0, len(ids))
	for _, id := range ids {
		task, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown task: %s", id)
		}
		out = append(out, task)
	}
	return out, nil
}

func printText(report *harness.BatchReport) {
	fmt.Printf("Generated: %s\n", report.GeneratedAt)
	fmt.Printf("Tasks: %s\n", strings.Join(report.Tasks, ", "))
	fmt.Printf("Models: %s\n\n", strings.Join(report.Models, ", "))

	for _, cell := range report.Results {
		if cell.Error != "" {
			fmt.Printf("[ERROR] %s / %s - %s (%dms)\n", cell.Task, cell.Model, cell.Error, cell.DurationMS)
			continue
		}
		status := "FAIL"
		if cell.Report != nil && cell.Report.Passed {
			status = "PASS"
		}
		fmt.Printf("[%s] %s / %s - %.2f%% (%dms)\n", status, cell.Task, cell.Model, cell.Report.OverallScore, cell.DurationMS)
		if cell.Report.Defect != "" {
			fmt.Printf("  defect: %s\n", cell.Report.Defect)
		}
		if len(cell.Report.CriticalFailures) > 0 {
			fmt.Printf("  critical: %s\n", strings.Join(cell.Report.CriticalFailures, ", "))
		}
	}

	fmt.Printf("\nTotals: pass=%d fail=%d error=%d\n", report.Passed, report.Failed, report.Errored)
}

func printJSON(report *harness.BatchReport) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		exitWith("failed to encode batch report JSON: " + err.Error())
	}
	fmt.Println(string(data))
}

func writeCSVFile(path string, report *harness.BatchReport) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := harness.WriteCSV(file, report); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func exitWith(message string) {
	fmt.Fprintln(os.Stderr, "error:", message)
	os.Exit(2)
}
