package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	tasksFileName   = "tasks.json"
	exampleFileName = "tasks.json.example"
	imagesDirName   = "images"
)

// ErrBootstrapped is returned by LoadOrBootstrap when it wrote the template
// task file instead of loading tasks. Nothing should be processed.
var ErrBootstrapped = errors.New("task file created from template")

// ErrIndexOutOfRange is returned for task indexes outside the list
var ErrIndexOutOfRange = errors.New("task index out of range")

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Store reads and writes the JSON task list under an input directory:
//
//	<inputDir>/tasks.json
//	<inputDir>/tasks.json.example
//	<inputDir>/images/
type Store struct {
	inputDir string
	mu       sync.Mutex
	now      func() time.Time
}

// NewStore creates a store rooted at inputDir
func NewStore(inputDir string) *Store {
	return &Store{
		inputDir: inputDir,
		now:      time.Now,
	}
}

// Path returns the task file path
func (s *Store) Path() string {
	return filepath.Join(s.inputDir, tasksFileName)
}

// ExamplePath returns the example task file path
func (s *Store) ExamplePath() string {
	return filepath.Join(s.inputDir, exampleFileName)
}

// ImagesDir returns the directory relative image references resolve against
func (s *Store) ImagesDir() string {
	return filepath.Join(s.inputDir, imagesDirName)
}

// Exists reports whether the task file is present
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Load reads the task list. A missing file is an empty list.
func (s *Store) Load() ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]Task, error) {
	tasks, err := readTasks(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return []Task{}, nil
	}
	return tasks, err
}

// Save overwrites the task file
func (s *Store) Save(tasks []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(tasks)
}

func (s *Store) save(tasks []Task) error {
	if err := os.MkdirAll(s.inputDir, 0755); err != nil {
		return fmt.Errorf("failed to create input directory: %w", err)
	}

	data, err := encodeTasks(tasks)
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}

	if err := os.WriteFile(s.Path(), data, 0644); err != nil {
		return fmt.Errorf("failed to write task file: %w", err)
	}
	return nil
}

// LoadOrBootstrap loads the task list for a batch run. When the file is
// absent or holds no tasks it writes ExampleTasks to both the task file and
// the example file (unless one exists), creates the images directory and
// returns ErrBootstrapped.
func (s *Store) LoadOrBootstrap() ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := readTasks(s.Path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load task file %s: %w", s.Path(), err)
	}
	if len(tasks) > 0 {
		return tasks, nil
	}

	if err := os.MkdirAll(s.ImagesDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}
	if err := s.save(ExampleTasks()); err != nil {
		return nil, err
	}
	if err := s.writeExample(); err != nil {
		return nil, err
	}
	return nil, ErrBootstrapped
}

// writeExample writes ExampleTasks to the example file if it is absent
func (s *Store) writeExample() error {
	if _, err := os.Stat(s.ExamplePath()); err == nil {
		return nil
	}

	data, err := encodeTasks(ExampleTasks())
	if err != nil {
		return fmt.Errorf("failed to marshal example tasks: %w", err)
	}
	if err := os.WriteFile(s.ExamplePath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write example file: %w", err)
	}
	return nil
}

// Add appends a task
func (s *Store) Add(tasks ...Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return err
	}
	return s.save(append(current, tasks...))
}

// Update replaces the task at index i
func (s *Store) Update(i int, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return err
	}
	if i < 0 || i >= len(current) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	current[i] = t
	return s.save(current)
}

// Delete removes and returns the task at index i
func (s *Store) Delete(i int) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return Task{}, err
	}
	if i < 0 || i >= len(current) {
		return Task{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	removed := current[i]
	current = append(current[:i], current[i+1:]...)
	return removed, s.save(current)
}

// ImportExample appends the tasks from tasks.json.example, or ExampleTasks
// when that file is absent, and returns how many were imported
func (s *Store) ImportExample() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	examples, err := readTasks(s.ExamplePath())
	if errors.Is(err, os.ErrNotExist) {
		examples, err = ExampleTasks(), nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read example file: %w", err)
	}

	current, err := s.load()
	if err != nil {
		return 0, err
	}
	if err := s.save(append(current, examples...)); err != nil {
		return 0, err
	}
	return len(examples), nil
}

// Backup copies the task file to tasks_backup_<timestamp>.json next to it
func (s *Store) Backup() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.Path())
	if err != nil {
		return "", fmt.Errorf("no task file to back up: %w", err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		return "", fmt.Errorf("failed to read task file: %w", err)
	}

	backup := filepath.Join(s.inputDir, fmt.Sprintf("tasks_backup_%s.json", s.now().Format("20060102150405")))
	if err := os.WriteFile(backup, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	// keep the original modification time, like cp -p
	if err := os.Chtimes(backup, info.ModTime(), info.ModTime()); err != nil {
		return backup, fmt.Errorf("failed to preserve backup modification time: %w", err)
	}

	return backup, nil
}

// ListImages returns the image file names in the images directory, sorted
func (s *Store) ListImages() ([]string, error) {
	entries, err := os.ReadDir(s.ImagesDir())
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	images := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			images = append(images, e.Name())
		}
	}
	sort.Strings(images)
	return images, nil
}

// BulkCreate appends one single-image task per available image, named
// <prefix>_1, <prefix>_2, ... It returns the number of tasks created.
func (s *Store) BulkCreate(prefix, prompt, model string) (int, error) {
	images, err := s.ListImages()
	if err != nil {
		return 0, err
	}
	if len(images) == 0 {
		return 0, nil
	}

	created := make([]Task, 0, len(images))
	for i, image := range images {
		created = append(created, Task{
			Name:   fmt.Sprintf("%s_%d", prefix, i+1),
			Prompt: prompt,
			Images: []string{image},
			Model:  model,
		})
	}

	if err := s.Add(created...); err != nil {
		return 0, err
	}
	return len(created), nil
}

func readTasks(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tasks []Task
	if len(bytes.TrimSpace(data)) == 0 {
		return tasks, nil
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return tasks, nil
}

// encodeTasks writes indented JSON without escaping <, > and & in prompts
func encodeTasks(tasks []Task) ([]byte, error) {
	if tasks == nil {
		tasks = []Task{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tasks); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
