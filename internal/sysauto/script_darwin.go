//go:build darwin

package sysauto

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

func openCommand() string { return "open" }

// osascript runs one AppleScript and returns its trimmed output.
func osascript(script string) (string, error) {
	out, err := exec.Command("osascript", "-e", script).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func (s *System) FocusApp(appName string) error {
	_, err := osascript(fmt.Sprintf(`tell application %q to activate`, appName))
	return err
}

func (s *System) SpotlightSearch(query string) error {
	script := fmt.Sprintf(`tell application "System Events"
  key code 49 using {command down}
  delay 0.3
  keystroke %q
end tell`, query)
	_, err := osascript(script)
	return err
}

func (s *System) GetBrowserTabs(appName string) ([]BrowserTab, error) {
	var script string
	switch {
	case strings.Contains(strings.ToLower(appName), "safari"):
		script = `tell application "Safari" to get name of tabs of front window`
	case strings.Contains(strings.ToLower(appName), "chrome"):
		script = `tell application "Google Chrome" to get title of tabs of front window`
	default:
		return nil, ErrUnsupported
	}
	out, err := osascript(script)
	if err != nil {
		return nil, err
	}
	var tabs []BrowserTab
	for i, title := range splitAppleScriptList(out) {
		tabs = append(tabs, BrowserTab{Index: i + 1, Title: title})
	}
	return tabs, nil
}

func (s *System) ActivateTab(appName string, tabIndex int) error {
	var script string
	switch {
	case strings.Contains(strings.ToLower(appName), "safari"):
		script = fmt.Sprintf(`tell application "Safari" to set current tab of front window to tab %d of front window`, tabIndex)
	case strings.Contains(strings.ToLower(appName), "chrome"):
		script = fmt.Sprintf(`tell application "Google Chrome" to set active tab index of front window to %d`, tabIndex)
	default:
		return ErrUnsupported
	}
	_, err := osascript(script)
	return err
}

func (s *System) GetTerminalTabs(appName string) ([]TerminalTab, error) {
	app := "Terminal"
	if strings.Contains(strings.ToLower(appName), "iterm") {
		app = "iTerm"
	}
	out, err := osascript(fmt.Sprintf(`tell application %q to get name of tabs of windows`, app))
	if err != nil {
		return nil, err
	}
	var tabs []TerminalTab
	for i, title := range splitAppleScriptList(out) {
		tabs = append(tabs, TerminalTab{WindowIndex: 1, TabIndex: i + 1, Title: title})
	}
	return tabs, nil
}

func (s *System) ActivateTerminalTab(appName string, windowIndex, tabIndex int) error {
	app := "Terminal"
	if strings.Contains(strings.ToLower(appName), "iterm") {
		app = "iTerm"
	}
	_, err := osascript(fmt.Sprintf(
		`tell application %q to set selected tab of window %d to tab %d of window %d`,
		app, windowIndex, tabIndex, windowIndex))
	return err
}

func (s *System) GetAppWindows(appName string) ([]WindowListItem, error) {
	out, err := osascript(fmt.Sprintf(
		`tell application "System Events" to get name of windows of process %q`, appName))
	if err != nil {
		return nil, err
	}
	var windows []WindowListItem
	for i, title := range splitAppleScriptList(out) {
		windows = append(windows, WindowListItem{Index: i + 1, Title: title})
	}
	return windows, nil
}

func (s *System) FocusAppWindow(appName string, windowIndex int) error {
	_, err := osascript(fmt.Sprintf(`tell application "System Events"
  tell process %q
    set frontmost to true
    perform action "AXRaise" of window %d
  end tell
end tell`, appName, windowIndex))
	return err
}

func (s *System) GetWindowInfo() (*WindowInfo, error) {
	out, err := osascript(`tell application "System Events"
  set frontApp to first process whose frontmost is true
  set appName to name of frontApp
  set w to front window of frontApp
  set {x, y} to position of w
  set {ww, wh} to size of w
  return appName & "|" & (name of w) & "|" & x & "|" & y & "|" & ww & "|" & wh
end tell`)
	if err != nil {
		return nil, err
	}
	return parseWindowInfo(out)
}

func (s *System) FocusAndGetWindow(appName string) (*WindowInfo, error) {
	if err := s.FocusApp(appName); err != nil {
		return nil, err
	}
	return s.GetWindowInfo()
}

func (s *System) MaximizeWindow() error {
	_, err := osascript(`tell application "System Events"
  set frontApp to first process whose frontmost is true
  tell front window of frontApp
    set position to {0, 25}
    set size to {9999, 9999}
  end tell
end tell`)
	return err
}

func (s *System) ResizeWindow(width, height int) error {
	_, err := osascript(fmt.Sprintf(`tell application "System Events"
  set frontApp to first process whose frontmost is true
  set size of front window of frontApp to {%d, %d}
end tell`, width, height))
	return err
}

func (s *System) CloseWindow() error {
	_, err := osascript(`tell application "System Events" to keystroke "w" using {command down}`)
	return err
}

func (s *System) QuitApp(appName string) error {
	_, err := osascript(fmt.Sprintf(`tell application %q to quit`, appName))
	return err
}

func (s *System) GetMessagesChats() ([]MessagesChat, error) {
	out, err := osascript(`tell application "Messages" to get name of chats`)
	if err != nil {
		return nil, err
	}
	var chats []MessagesChat
	for i, name := range splitAppleScriptList(out) {
		chats = append(chats, MessagesChat{ID: strconv.Itoa(i + 1), Name: name})
	}
	return chats, nil
}

func (s *System) OpenMessagesChat(chatID string) error {
	idx, err := strconv.Atoi(chatID)
	if err != nil {
		return fmt.Errorf("chat id %q: %w", chatID, err)
	}
	_, err = osascript(fmt.Sprintf(`tell application "Messages"
  activate
  set active chat to chat %d
end tell`, idx))
	return err
}

func (s *System) TypeText(text string) error {
	_, err := osascript(fmt.Sprintf(`tell application "System Events" to keystroke %q`, text))
	return err
}

func (s *System) TypeTextAndEnter(text string) error {
	_, err := osascript(fmt.Sprintf(`tell application "System Events"
  keystroke %q
  keystroke return
end tell`, text))
	return err
}

func (s *System) PressKey(key string) error {
	_, err := osascript(fmt.Sprintf(`tell application "System Events" to keystroke %q`, key))
	return err
}

// splitAppleScriptList splits osascript's comma-joined list output.
func splitAppleScriptList(out string) []string {
	if out == "" {
		return nil
	}
	parts := strings.Split(out, ", ")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseWindowInfo(out string) (*WindowInfo, error) {
	parts := strings.Split(out, "|")
	if len(parts) != 6 {
		return nil, fmt.Errorf("unexpected window info %q", out)
	}
	atoi := func(s string) int {
		v, _ := strconv.Atoi(strings.TrimSpace(s))
		return v
	}
	return &WindowInfo{
		AppName: parts[0],
		Title:   parts[1],
		X:       atoi(parts[2]),
		Y:       atoi(parts[3]),
		Width:   atoi(parts[4]),
		Height:  atoi(parts[5]),
	}, nil
}
