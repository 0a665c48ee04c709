// Package task defines batch task descriptors and their JSON file store.
package task

import (
	"github.com/nachoal/simple-batch-go/internal/validator"
)

// MaxImages is the most images a single task may reference
const MaxImages = 10

// DefaultModel is used when neither the task nor the environment names one
const DefaultModel = "gpt-4o-image-vip"

// Task is one unit of batch work: a prompt, an optional image set and a model.
// Images are file names under the input images directory or absolute paths.
type Task struct {
	Name   string   `json:"name" schema:"required"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images" schema:"max:10"`
	Model  string   `json:"model"`
}

// Validate checks the task shape. Call it after WithDefaults; a task with more
// than MaxImages images is rejected rather than truncated.
func (t Task) Validate() error {
	return validator.Validate(t)
}

// WithDefaults fills an empty model and name
func (t Task) WithDefaults(defaultModel, fallbackName string) Task {
	if t.Model == "" {
		t.Model = defaultModel
	}
	if t.Name == "" {
		t.Name = fallbackName
	}
	return t
}

// ExampleTasks is the template written on first run
func ExampleTasks() []Task {
	return []Task{
		{
			Name:   "example_1",
			Prompt: "Please describe this image.",
			Images: []string{"example.jpg"},
			Model:  DefaultModel,
		},
		{
			Name:   "example_2",
			Prompt: "Create a brand-new chibi sticker set with six unique poses, starring the person in the photo.",
			Images: []string{"example.jpg"},
			Model:  DefaultModel,
		},
	}
}
