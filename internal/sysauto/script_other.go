//go:build !darwin

package sysauto

import "runtime"

func openCommand() string {
	if runtime.GOOS == "windows" {
		return "explorer"
	}
	return "xdg-open"
}

// Window and tab scripting needs an accessibility bridge that only the
// macOS build carries today.

func (s *System) FocusApp(string) error          { return ErrUnsupported }
func (s *System) SpotlightSearch(string) error   { return ErrUnsupported }

func (s *System) GetBrowserTabs(string) ([]BrowserTab, error) { return nil, ErrUnsupported }
func (s *System) ActivateTab(string, int) error               { return ErrUnsupported }

func (s *System) GetTerminalTabs(string) ([]TerminalTab, error)  { return nil, ErrUnsupported }
func (s *System) ActivateTerminalTab(string, int, int) error     { return ErrUnsupported }

func (s *System) GetAppWindows(string) ([]WindowListItem, error) { return nil, ErrUnsupported }
func (s *System) FocusAppWindow(string, int) error               { return ErrUnsupported }
func (s *System) GetWindowInfo() (*WindowInfo, error)            { return nil, ErrUnsupported }
func (s *System) FocusAndGetWindow(string) (*WindowInfo, error)  { return nil, ErrUnsupported }
func (s *System) MaximizeWindow() error                          { return ErrUnsupported }
func (s *System) ResizeWindow(int, int) error                    { return ErrUnsupported }
func (s *System) CloseWindow() error                             { return ErrUnsupported }
func (s *System) QuitApp(string) error                           { return ErrUnsupported }

func (s *System) GetMessagesChats() ([]MessagesChat, error) { return nil, ErrUnsupported }
func (s *System) OpenMessagesChat(string) error             { return ErrUnsupported }

func (s *System) TypeText(string) error         { return ErrUnsupported }
func (s *System) TypeTextAndEnter(string) error { return ErrUnsupported }
func (s *System) PressKey(string) error         { return ErrUnsupported }
