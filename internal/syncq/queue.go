// Package syncq keeps mutations that could not reach the API so they can be
// replayed later. Each entry carries its idempotency key, so a replay of a
// request that did land server-side is rejected instead of applied twice.
package syncq

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

type Queue struct {
	path string
}

func New(path string) *Queue {
	return &Queue{path: path}
}

// Default is the outbox under FL_HOME, or ~/.fl when unset.
func Default() (*Queue, error) {
	dir := os.Getenv("FL_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".fl")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return New(filepath.Join(dir, "outbox.json")), nil
}

func (q *Queue) Load() ([]Command, error) {
	raw, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Command{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) Save(commands []Command) error {
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(q.path, raw, 0o600)
}

func (q *Queue) Push(cmd Command) error {
	commands, err := q.Load()
	if err != nil {
		return err
	}
	commands = append(commands, cmd)
	return q.Save(commands)
}
