// Package commands stores the user-defined command presets the client can
// trigger, and executes them through the shell.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/screenlink/agent/internal/logging"
)

var log = logging.L("commands")

// Command is one preset.
type Command struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Command string `json:"command"`
	Icon    string `json:"icon,omitempty"`
}

// Store holds the presets, persisted as JSON. Persistence failures are
// logged, not fatal — presets then live for the process only.
type Store struct {
	mu       sync.RWMutex
	path     string
	commands []Command
}

// Load reads presets from path, seeding defaults when the file is absent.
func Load(path string) *Store {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(data, &s.commands); jsonErr != nil {
			log.Warn("commands file unreadable, reseeding", "path", path, "error", jsonErr)
		}
	}
	if len(s.commands) == 0 {
		s.commands = []Command{
			{ID: uuid.NewString(), Name: "Build", Command: "npm run build", Icon: "build"},
			{ID: uuid.NewString(), Name: "Test", Command: "npm test", Icon: "test"},
		}
		s.persist()
	}
	return s
}

// List returns a copy of the presets.
func (s *Store) List() []Command {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// Add appends a preset and persists the list.
func (s *Store) Add(name, command string) Command {
	cmd := Command{
		ID:      uuid.NewString(),
		Name:    name,
		Command: command,
	}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	s.persist()
	return cmd
}

// Execute runs the preset with the given id through the shell and returns
// its combined output. found is false for unknown ids.
func (s *Store) Execute(ctx context.Context, id string) (output string, success, found bool) {
	s.mu.RLock()
	var target *Command
	for i := range s.commands {
		if s.commands[i].ID == id {
			target = &s.commands[i]
			break
		}
	}
	s.mu.RUnlock()

	if target == nil {
		return "", false, false
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", target.Command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", target.Command)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) == 0 {
			return err.Error(), false, true
		}
		return string(out), false, true
	}
	return string(out), true, true
}

func (s *Store) persist() {
	if s.path == "" {
		return
	}
	s.mu.RLock()
	data, err := json.MarshalIndent(s.commands, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		log.Warn("marshal commands", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		log.Warn("create commands directory", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		log.Warn("persist commands", "error", err)
	}
}

// String implements fmt.Stringer for debug logs.
func (c Command) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.ID)
}
