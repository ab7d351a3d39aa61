package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"skillbench/internal/grade"
	"skillbench/internal/rubric"
)

func main() {
	candidate := flag.String("candidate", "", "Candidate identifier recorded in the report")
	format := flag.String("format", "text", "Output format: text|json")
	outputPath := flag.String("out", "", "Write full report JSON to this file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) != 3 {
		usage()
		os.Exit(2)
	}
	submissionPath, keyPath, rubricPath := args[0], args[1], args[2]

	r, err := rubric.Load(rubricPath)
	if err != nil {
		exitWith("failed to load rubric: " + err.Error())
	}
	answerKey, err := readJSONDocument(keyPath)
	if err != nil {
		exitWith("failed to load answer key: " + err.Error())
	}

	report := scoreSubmission(r, submissionPath, answerKey)
	report.CandidateID = strings.TrimSpace(*candidate)

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "json":
		printJSON(report)
	default:
		printText(report)
	}

	if strings.TrimSpace(*outputPath) != "" {
		if err := grade.WriteReport(*outputPath, report); err != nil {
			exitWith("failed to write report: " + err.Error())
		}
	}
}

// scoreSubmission always produces a report: unreadable or malformed
// submissions become defective zero-score results rather than tool errors.
// Only rubric or answer-key problems abort.
func scoreSubmission(r rubric.Rubric, path string, answerKey any) *grade.ScoreReport {
	var report *grade.ScoreReport
	var err error

	raw, readErr := os.ReadFile(filepath.Clean(path))
	if readErr != nil {
		exitWith("failed to read submission: " + readErr.Error())
	}
	doc, extractErr := grade.ExtractDocument(string(raw))
	if extractErr != nil {
		var defect *grade.SubmissionDefect
		if !errors.As(extractErr, &defect) {
			exitWith("failed to parse submission: " + extractErr.Error())
		}
		report, err = grade.ScoreDefective(r, answerKey, defect.Reason)
	} else {
		report, err = grade.Score(r, doc, answerKey)
	}
	if err != nil {
		exitWith("scoring failed: " + err.Error())
	}
	return report
}

func readJSONDocument(path string) (any, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func printText(report *grade.ScoreReport) {
	if report.CandidateID != "" {
		fmt.Printf("Candidate: %s\n", report.CandidateID)
	}
	if report.Defect != "" {
		fmt.Printf("Submission defect: %s\n", report.Defect)
	}
	fmt.Println()

	sections := make([]string, 0, len(report.SectionScores))
	for name := range report.SectionScores {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	for _, name := range sections {
		score := report.SectionScores[name]
		fmt.Printf("%s: %.2f/%.2f (%.2f%%)\n", name, score.PointsEarned, score.MaxPoints, score.Percentage)
	}
	fmt.Println()

	for _, field := range report.FieldDetails {
		status := "FAIL"
		if field.Passed {
			status = "PASS"
		}
		fmt.Printf("[%s] %s %.2f/%.2f\n", status, field.Path, field.PointsEarned, field.PointsPossible)
		if field.Detail != "" {
			fmt.Printf("  %s\n", field.Detail)
		}
	}
	fmt.Println()

	if len(report.CriticalFailures) > 0 {
		fmt.Printf("Critical failures: %s\n", strings.Join(report.CriticalFailures, ", "))
	}
	fmt.Printf("Overall: %.2f%% (%.2f/%.2f) verdict=%s\n",
		report.OverallScore, report.OverallEarned, report.OverallPossible, report.Verdict)
}

func printJSON(report *grade.ScoreReport) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		exitWith("failed to encode report JSON: " + err.Error())
	}
	fmt.Println(string(data))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: score [flags] <submission> <answer_key.json> <rubric.yaml|json>")
	flag.PrintDefaults()
}

func exitWith(message string) {
	fmt.Fprintln(os.Stderr, "error:", message)
	os.Exit(2)
}
