package grade

import "fmt"

// ConfigurationError marks a broken rubric or an answer key missing a field
// the rubric expects. It aborts the scoring run for the task instead of
// being silently scored as zero.
type ConfigurationError struct {
	Path   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return "rubric configuration error: " + e.Reason
	}
	return fmt.Sprintf("rubric configuration error at %s: %s", e.Path, e.Reason)
}

// SubmissionDefect marks a candidate submission that could not be parsed at
// all. Individual missing or mistyped fields are not defects; they score
// zero and grading continues.
type SubmissionDefect struct {
	Reason string
}

func (e *SubmissionDefect) Error() string {
	return "submission defect: " + e.Reason
}
