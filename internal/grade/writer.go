package grade

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EncodeReport serializes a report as indented JSON.
func EncodeReport(w io.Writer, report *ScoreReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode score report: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write score report: %w", err)
	}
	return nil
}

// WriteReport persists a report to path, creating parent directories as
// needed. Write failures are returned to the caller, never swallowed.
func WriteReport(path string, report *ScoreReport) error {
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	file, err := os.Create(cleanPath)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()
	if err := EncodeReport(file, report); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	return nil
}
