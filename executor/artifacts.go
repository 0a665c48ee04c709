package executor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nachoal/simple-batch-go/task"
)

// Artifact file names inside a task directory
const (
	InfoFile     = "task_info.json"
	ResponseFile = "response.json"
	TextFile     = "response_text.md"
)

// Info is the provenance record written before a task runs
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Prompt    string    `json:"prompt"`
	Images    []string  `json:"images"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskID derives the run-scoped identifier: local time to the second plus the
// task's ordinal in the batch.
func TaskID(at time.Time, ordinal int) string {
	return fmt.Sprintf("%s_%d", at.Format("20060102150405"), ordinal)
}

var unsafeNameChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", "\x00", "_",
)

func sanitizeName(name string) string {
	name = strings.TrimSpace(unsafeNameChars.Replace(name))
	if name == "" || name == "." || name == ".." {
		return "task"
	}
	return name
}

// createTaskDir makes <outputDir>/<id>_<name>, adding -2, -3, ... when a
// directory of that name already exists, so runs never share a directory.
func createTaskDir(outputDir, id, name string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := filepath.Join(outputDir, id+"_"+sanitizeName(name))
	dir := base
	for n := 2; ; n++ {
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create task directory: %w", err)
		}
		dir = fmt.Sprintf("%s-%d", base, n)
	}
}

func writeInfo(dir, id string, t task.Task, at time.Time) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	info := Info{
		ID:        id,
		Name:      t.Name,
		Prompt:    t.Prompt,
		Images:    t.Images,
		Model:     t.Model,
		Timestamp: at,
	}
	if info.Images == nil {
		info.Images = []string{}
	}
	if err := enc.Encode(info); err != nil {
		return fmt.Errorf("failed to marshal task info: %w", err)
	}

	return writeArtifact(dir, InfoFile, buf.Bytes())
}

func writeArtifact(dir, name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
