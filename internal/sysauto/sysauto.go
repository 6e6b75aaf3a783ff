// Package sysauto executes OS-level operations on behalf of the client:
// listing and focusing applications, browsing the filesystem, driving
// browser/terminal tabs, and window management. Calls block on platform
// scripting and must run on the worker pool, never on a session loop.
package sysauto

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrUnsupported is returned for operations the platform cannot script.
var ErrUnsupported = errors.New("operation not supported on this platform")

type RunningApp struct {
	Name string `json:"name"`
	PID  int32  `json:"pid"`
}

type FileEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

type BrowserTab struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

type TerminalTab struct {
	WindowIndex int    `json:"window_index"`
	TabIndex    int    `json:"tab_index"`
	Title       string `json:"title"`
}

type WindowListItem struct {
	Index int    `json:"index"`
	Title string `json:"title"`
}

type WindowInfo struct {
	AppName string `json:"app_name"`
	Title   string `json:"title"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type MessagesChat struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Controller is the OS-automation surface the session multiplexer dispatches
// to. One implementation per platform; all methods may block.
type Controller interface {
	GetRunningApps() ([]RunningApp, error)
	FocusApp(appName string) error
	SpotlightSearch(query string) error

	ListDirectory(path string) ([]FileEntry, error)
	OpenFile(path string) error

	GetBrowserTabs(appName string) ([]BrowserTab, error)
	ActivateTab(appName string, tabIndex int) error
	GetTerminalTabs(appName string) ([]TerminalTab, error)
	ActivateTerminalTab(appName string, windowIndex, tabIndex int) error

	GetAppWindows(appName string) ([]WindowListItem, error)
	FocusAppWindow(appName string, windowIndex int) error
	GetWindowInfo() (*WindowInfo, error)
	FocusAndGetWindow(appName string) (*WindowInfo, error)
	MaximizeWindow() error
	ResizeWindow(width, height int) error
	CloseWindow() error
	QuitApp(appName string) error

	GetMessagesChats() ([]MessagesChat, error)
	OpenMessagesChat(chatID string) error

	TypeText(text string) error
	TypeTextAndEnter(text string) error
	PressKey(key string) error
}

// System is the default controller: portable pieces on gopsutil and the
// standard library, window/tab scripting delegated to the platform layer.
type System struct{}

func NewSystem() *System {
	return &System{}
}

// GetRunningApps lists every named process, deduplicated by name and sorted
// by name. Background and system processes are not filtered out.
func (s *System) GetRunningApps() ([]RunningApp, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	seen := make(map[string]RunningApp)
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = RunningApp{Name: name, PID: p.Pid}
	}

	apps := make([]RunningApp, 0, len(seen))
	for _, app := range seen {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps, nil
}

func (s *System) ListDirectory(path string) ([]FileEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	out := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		fe := FileEntry{
			Name:  entry.Name(),
			Path:  filepath.Join(path, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil {
			fe.Size = info.Size()
		}
		out = append(out, fe)
	}
	return out, nil
}

func (s *System) OpenFile(path string) error {
	cmd := exec.Command(openCommand(), path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	// Releases the child once it exits; the open itself is fire-and-forget.
	go cmd.Wait()
	return nil
}
