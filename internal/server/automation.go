package server

import (
	"encoding/json"

	"github.com/screenlink/agent/internal/protocol"
)

// handleAutomation dispatches OS-automation requests onto the worker pool so
// the streaming path is never blocked, and returns whether kind was an
// automation message. Responses are sent after the platform call returns, so
// success flags reflect the actual outcome. Fire-and-forget operations drop
// failures silently (logged only).
func (s *session) handleAutomation(kind string, data []byte) bool {
	switch kind {
	case protocol.TypeGetRunningApps:
		s.submit(func() {
			apps, err := s.srv.deps.Automation.GetRunningApps()
			if err != nil {
				s.log.Warn("get_running_apps failed", "error", err)
			}
			s.sendJSON(struct {
				protocol.Envelope
				Apps any `json:"apps"`
			}{protocol.Envelope{Type: protocol.TypeRunningApps}, orEmpty(apps, err)})
		})

	case protocol.TypeFocusApp:
		var msg protocol.AppNameRequest
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.submit(func() {
			err := s.srv.deps.Automation.FocusApp(msg.AppName)
			if err != nil {
				s.log.Warn("focus_app failed", "app", msg.AppName, "error", err)
			}
			s.sendJSON(protocol.SuccessResult{
				Envelope: protocol.Envelope{Type: protocol.TypeFocusResult},
				Success:  err == nil,
			})
		})

	case protocol.TypeSpotlightSearch:
		var msg protocol.SpotlightSearch
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.fireAndForget("spotlight_search", func() error {
			return s.srv.deps.Automation.SpotlightSearch(msg.Query)
		})

	case protocol.TypeListDirectory:
		var msg protocol.ListDirectory
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.submit(func() {
			entries, err := s.srv.deps.Automation.ListDirectory(msg.Path)
			if err != nil {
				s.log.Warn("list_directory failed", "path", msg.Path, "error", err)
			}
			s.sendJSON(struct {
				protocol.Envelope
				Path    string `json:"path"`
				Entries any    `json:"entries"`
			}{protocol.Envelope{Type: protocol.TypeDirectoryContents}, msg.Path, orEmpty(entries, err)})
		})

	case protocol.TypeOpenFile:
		var msg protocol.OpenFile
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.fireAndForget("open_file", func() error {
			return s.srv.deps.Automation.OpenFile(msg.Path)
		})

	case protocol.TypeGetBrowserTabs:
		var msg protocol.AppNameRequest
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.submit(func() {
			tabs, err := s.srv.deps.Automation.GetBrowserTabs(msg.AppName)
			if err != nil {
				s.log.Warn("get_browser_tabs failed", "app", msg.AppName, "error", err)
			}
			s.sendJSON(struct {
				protocol.Envelope
				Tabs any `json:"tabs"`
			}{protocol.Envelope{Type: protocol.TypeBrowserTabs}, orEmpty(tabs, err)})
		})

	case protocol.TypeActivateTab:
		var msg protocol.ActivateTab
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.submit(func() {
			err := s.srv.deps.Automation.ActivateTab(msg.AppName, msg.TabIndex)
			if err != nil {
				s.log.Warn("activate_tab failed", "app", msg.AppName, "error", err)
			}
			s.sendJSON(protocol.SuccessResult{
				Envelope: protocol.Envelope{Type: protocol.TypeActivateTabResult},
				Success:  err == nil,
			})
		})

	case protocol.TypeGetTerminalTabs:
		var msg protocol.AppNameRequest
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.submit(func() {
			tabs, err := s.srv.deps.Automation.GetTerminalTabs(msg.AppName)
			if err != nil {
				s.log.Warn("get_terminal_tabs failed", "app", msg.AppName, "error", err)
			}
			s.sendJSON(struct {
				protocol.Envelope
				Tabs any `json:"tabs"`
			}{protocol.Envelope{Type: protocol.TypeTerminalTabs}, orEmpty(tabs, err)})
		})

	case protocol.TypeActivateTerminalTab:
		var msg protocol.ActivateTerminalTab
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.fireAndForget("activate_terminal_tab", func() error {
			return s.srv.deps.Automation.ActivateTerminalTab(msg.AppName, msg.WindowIndex, msg.TabIndex)
		})

	case protocol.TypeGetAppWindows:
		var msg protocol.AppNameRequest
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.submit(func() {
			windows, err := s.srv.deps.Automation.GetAppWindows(msg.AppName)
			if err != nil {
				s.log.Warn("get_app_windows failed", "app", msg.AppName, "error", err)
			}
			s.sendJSON(struct {
				protocol.Envelope
				AppName string `json:"app_name"`
				Windows any    `json:"windows"`
			}{protocol.Envelope{Type: protocol.TypeAppWindows}, msg.AppName, orEmpty(windows, err)})
		})

	case protocol.TypeFocusAppWindow:
		var msg protocol.FocusAppWindow
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.fireAndForget("focus_app_window", func() error {
			return s.srv.deps.Automation.FocusAppWindow(msg.AppName, msg.WindowIndex)
		})

	case protocol.TypeGetMessagesChats:
		s.submit(func() {
			chats, err := s.srv.deps.Automation.GetMessagesChats()
			if err != nil {
				s.log.Warn("get_messages_chats failed", "error", err)
			}
			s.sendJSON(struct {
				protocol.Envelope
				Chats any `json:"chats"`
			}{protocol.Envelope{Type: protocol.TypeMessagesChats}, orEmpty(chats, err)})
		})

	case protocol.TypeOpenMessagesChat:
		var msg protocol.OpenMessagesChat
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.fireAndForget("open_messages_chat", func() error {
			return s.srv.deps.Automation.OpenMessagesChat(msg.ChatID)
		})

	case protocol.TypeGetWindowInfo:
		s.submit(func() {
			info, err := s.srv.deps.Automation.GetWindowInfo()
			if err != nil {
				s.log.Warn("get_window_info failed", "error", err)
			}
			s.sendJSON(struct {
				protocol.Envelope
				Info any `json:"info"`
			}{protocol.Envelope{Type: protocol.TypeWindowInfo}, info})
		})

	case protocol.TypeFocusAndGetWindow:
		var msg protocol.AppNameRequest
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.submit(func() {
			info, err := s.srv.deps.Automation.FocusAndGetWindow(msg.AppName)
			if err != nil {
				s.log.Warn("focus_and_get_window failed", "app", msg.AppName, "error", err)
			}
			s.sendJSON(struct {
				protocol.Envelope
				Info any `json:"info"`
			}{protocol.Envelope{Type: protocol.TypeWindowInfo}, info})
		})

	case protocol.TypeMaximizeWindow:
		s.fireAndForget("maximize_window", s.srv.deps.Automation.MaximizeWindow)

	case protocol.TypeResizeWindow:
		var msg protocol.ResizeWindow
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.fireAndForget("resize_window", func() error {
			return s.srv.deps.Automation.ResizeWindow(msg.Width, msg.Height)
		})

	case protocol.TypeCloseWindow:
		s.fireAndForget("close_window", s.srv.deps.Automation.CloseWindow)

	case protocol.TypeQuitApp:
		var msg protocol.AppNameRequest
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.fireAndForget("quit_app", func() error {
			return s.srv.deps.Automation.QuitApp(msg.AppName)
		})

	case protocol.TypeTypeText:
		var msg protocol.TypeText
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.fireAndForget("type_text", func() error {
			return s.srv.deps.Automation.TypeText(msg.Text)
		})

	case protocol.TypeTypeTextAndEnter:
		var msg protocol.TypeText
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.fireAndForget("type_text_and_enter", func() error {
			return s.srv.deps.Automation.TypeTextAndEnter(msg.Text)
		})

	case protocol.TypePressKey:
		var msg protocol.PressKey
		if json.Unmarshal(data, &msg) != nil {
			return true
		}
		s.fireAndForget("press_key", func() error {
			return s.srv.deps.Automation.PressKey(msg.Key)
		})

	default:
		return false
	}
	return true
}

// submit schedules response-bearing work on the pool. Rejection means the
// pool is saturated; the client sees no response and retries.
func (s *session) submit(task func()) {
	if !s.srv.deps.Pool.Submit(task) {
		s.log.Warn("automation task rejected, pool saturated")
	}
}

// fireAndForget schedules work whose failures are dropped silently.
func (s *session) fireAndForget(name string, call func() error) {
	s.submit(func() {
		if err := call(); err != nil {
			s.log.Debug("automation call failed", "op", name, "error", err)
		}
	})
}

// orEmpty substitutes an empty slice on error so responses always carry a
// JSON array, never null.
func orEmpty[T any](items []T, err error) []T {
	if err != nil || items == nil {
		return []T{}
	}
	return items
}
