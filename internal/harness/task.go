package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"skillbench/internal/rubric"
)

// Task is one occupational exam bundle on disk: the prompt given to the
// model, the trusted answer key, and the rubric that grades the answer.
type Task struct {
	ID        string
	Dir       string
	Prompt    string
	Rubric    rubric.Rubric
	AnswerKey any
}

var promptNames = []string{"prompt.md", "prompt.txt"}
var rubricNames = []string{"rubric.yaml", "rubric.yml", "rubric.json"}

// LoadTask reads a task bundle directory. The answer key is trusted input;
// any problem here is a task-authoring error, not a grading result.
func LoadTask(dir string) (Task, error) {
	cleanDir := filepath.Clean(dir)
	task := Task{ID: filepath.Base(cleanDir), Dir: cleanDir}

	promptPath, err := firstExisting(cleanDir, promptNames)
	if err != nil {
		return Task{}, fmt.Errorf("task %s: %w", task.ID, err)
	}
	promptData, err := os.ReadFile(promptPath)
	if err != nil {
		return Task{}, fmt.Errorf("task %s: read prompt: %w", task.ID, err)
	}
	task.Prompt = strings.TrimSpace(string(promptData))
	if task.Prompt == "" {
		return Task{}, fmt.Errorf("task %s: empty prompt", task.ID)
	}

	rubricPath, err := firstExisting(cleanDir, rubricNames)
	if err != nil {
		return Task{}, fmt.Errorf("task %s: %w", task.ID, err)
	}
	task.Rubric, err = rubric.Load(rubricPath)
	if err != nil {
		return Task{}, fmt.Errorf("task %s: %w", task.ID, err)
	}

	keyData, err := os.ReadFile(filepath.Join(cleanDir, "answer_key.json"))
	if err != nil {
		return Task{}, fmt.Errorf("task %s: read answer key: %w", task.ID, err)
	}
	if err := json.Unmarshal(keyData, &task.AnswerKey); err != nil {
		return Task{}, fmt.Errorf("task %s: parse answer key: %w", task.ID, err)
	}
	return task, nil
}

// LoadTasks loads every bundle directory under root, sorted by task ID.
func LoadTasks(root string) ([]Task, error) {
	entries, err := os.ReadDir(filepath.Clean(root))
	if err != nil {
		return nil, fmt.Errorf("read tasks dir: %w", err)
	}
	tasks := make([]Task, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := firstExisting(dir, rubricNames); err != nil {
			continue
		}
		task, err := LoadTask(dir)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no task bundles under %s", root)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func firstExisting(dir string, names []string) (string, error) {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("none of %s found", strings.Join(names, "/"))
}
