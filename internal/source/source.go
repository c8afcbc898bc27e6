// Package source provides the task-source list that feeds the loop.
// Adapters that convert richer formats (markdown PRDs, issue trackers)
// into task records live outside the core; the loop only needs ordered
// task ids with stable identifiers.
package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Task is one unit of work reported by a task source. Declaration order
// in the source is significant: the loop selects tasks in this order.
type Task struct {
	// ID is the stable identifier for the task.
	ID string `yaml:"id"`

	// Title is the short summary shown to the operator and the agent.
	Title string `yaml:"title"`

	// Description is the detailed standalone description, if any.
	Description string `yaml:"description,omitempty"`

	// Source tags where the task came from.
	Source string `yaml:"source,omitempty"`
}

// Source lists tasks for the loop to work through.
type Source interface {
	// List returns all tasks in declaration order.
	List() ([]Task, error)
}

// YAMLSource reads tasks from a YAML file:
//
//	tasks:
//	  - id: task-1
//	    title: Add login endpoint
type YAMLSource struct {
	path string
}

// yamlFile is the on-disk structure of a tasks file.
type yamlFile struct {
	Tasks []Task `yaml:"tasks"`
}

// NewYAMLSource creates a Source backed by the given YAML file.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

// List reads the tasks file and returns the tasks in declaration order.
// A missing file yields an empty list, not an error: the loop reports
// "no tasks" as its own stop reason.
func (s *YAMLSource) List() ([]Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading tasks file: %w", err)
	}

	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing tasks file %s: %w", s.path, err)
	}

	tasks := make([]Task, 0, len(f.Tasks))
	seen := make(map[string]bool, len(f.Tasks))
	for _, t := range f.Tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("task with empty id in %s", s.path)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate task id %q in %s", t.ID, s.path)
		}
		seen[t.ID] = true
		if t.Source == "" {
			t.Source = "yaml"
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Write saves the given tasks to path in declaration order. Used by
// `afk init` to create a starter file.
func Write(path string, tasks []Task) error {
	data, err := yaml.Marshal(yamlFile{Tasks: tasks})
	if err != nil {
		return fmt.Errorf("marshaling tasks: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing tasks file: %w", err)
	}
	return nil
}

// Ensure YAMLSource implements Source.
var _ Source = (*YAMLSource)(nil)
