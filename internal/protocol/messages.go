// Package protocol defines the wire format shared with the mobile client:
// JSON control messages (a tagged union keyed on "type") and binary frame
// packets. Unknown message types are ignored by both sides.
package protocol

import "encoding/json"

// Control message types, client → host unless noted.
const (
	TypeAuth         = "auth"
	TypeAuthResponse = "auth_response" // host → client
	TypeCommandList  = "command_list"  // host → client
	TypeExecute      = "execute"
	TypeExecuteResult = "execute_result" // host → client
	TypeAddCommand   = "add_command"

	TypeStartScreenShare   = "start_screen_share"
	TypeStopScreenShare    = "stop_screen_share"
	TypeSetCaptureRegion   = "set_capture_region"
	TypeSetViewport        = "set_viewport"
	TypeResetCaptureRegion = "reset_capture_region"
	TypeMousePosition      = "mouse_position" // host → client
	TypeInput              = "input"
	TypeScroll             = "scroll"

	TypeStartWebRTC        = "start_webrtc"
	TypeStopWebRTC         = "stop_webrtc"
	TypeWebRTCOffer        = "webrtc_offer" // host → client
	TypeWebRTCAnswer       = "webrtc_answer"
	TypeWebRTCICECandidate = "webrtc_ice_candidate" // both directions

	// OS automation requests and their responses.
	TypeGetRunningApps      = "get_running_apps"
	TypeRunningApps         = "running_apps"
	TypeFocusApp            = "focus_app"
	TypeFocusResult         = "focus_result"
	TypeSpotlightSearch     = "spotlight_search"
	TypeListDirectory       = "list_directory"
	TypeDirectoryContents   = "directory_contents"
	TypeOpenFile            = "open_file"
	TypeGetBrowserTabs      = "get_browser_tabs"
	TypeBrowserTabs         = "browser_tabs"
	TypeActivateTab         = "activate_tab"
	TypeActivateTabResult   = "activate_tab_result"
	TypeGetTerminalTabs     = "get_terminal_tabs"
	TypeTerminalTabs        = "terminal_tabs"
	TypeActivateTerminalTab = "activate_terminal_tab"
	TypeGetAppWindows       = "get_app_windows"
	TypeAppWindows          = "app_windows"
	TypeFocusAppWindow      = "focus_app_window"
	TypeGetMessagesChats    = "get_messages_chats"
	TypeMessagesChats       = "messages_chats"
	TypeOpenMessagesChat    = "open_messages_chat"
	TypeQuitApp             = "quit_app"
	TypeCloseWindow         = "close_window"
	TypeGetWindowInfo       = "get_window_info"
	TypeWindowInfo          = "window_info"
	TypeFocusAndGetWindow   = "focus_and_get_window"
	TypeMaximizeWindow      = "maximize_window"
	TypeResizeWindow        = "resize_window"
	TypeTypeText            = "type_text"
	TypeTypeTextAndEnter    = "type_text_and_enter"
	TypePressKey            = "press_key"
)

// PeekType extracts the type tag without decoding the full message.
func PeekType(data []byte) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", err
	}
	return head.Type, nil
}

// Envelope is embedded by every message struct to supply the type tag.
type Envelope struct {
	Type string `json:"type"`
}

type Auth struct {
	Envelope
	Token      string `json:"token"`
	DeviceName string `json:"device_name"`
	IsExternal bool   `json:"is_external,omitempty"`
}

type ScreenInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type AuthResponse struct {
	Envelope
	Success    bool        `json:"success"`
	ScreenInfo *ScreenInfo `json:"screen_info,omitempty"`
}

type Command struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Command string `json:"command"`
	Icon    string `json:"icon,omitempty"`
}

type CommandList struct {
	Envelope
	Commands []Command `json:"commands"`
}

type Execute struct {
	Envelope
	CommandID string `json:"command_id"`
}

type ExecuteResult struct {
	Envelope
	CommandID string `json:"command_id"`
	Output    string `json:"output"`
	Success   bool   `json:"success"`
}

type AddCommand struct {
	Envelope
	Name    string `json:"name"`
	Command string `json:"command"`
}

type SetCaptureRegion struct {
	Envelope
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type SetViewport struct {
	Envelope
	ViewportX      int    `json:"viewport_x"`
	ViewportY      int    `json:"viewport_y"`
	ViewportWidth  int    `json:"viewport_width"`
	ViewportHeight int    `json:"viewport_height"`
	QualityMode    string `json:"quality_mode"`
}

type MousePosition struct {
	Envelope
	X int `json:"x"`
	Y int `json:"y"`
}

type Scroll struct {
	Envelope
	Direction string `json:"direction"`
	Amount    int    `json:"amount"`
}

type WebRTCOffer struct {
	Envelope
	SDP string `json:"sdp"`
}

type WebRTCAnswer struct {
	Envelope
	SDP string `json:"sdp"`
}

type WebRTCICECandidate struct {
	Envelope
	Candidate string `json:"candidate"`
}

// Automation request payloads. Responses embed the matching result types.

type AppNameRequest struct {
	Envelope
	AppName string `json:"app_name"`
}

type SpotlightSearch struct {
	Envelope
	Query string `json:"query"`
}

type ListDirectory struct {
	Envelope
	Path string `json:"path"`
}

type OpenFile struct {
	Envelope
	Path string `json:"path"`
}

type ActivateTab struct {
	Envelope
	AppName  string `json:"app_name"`
	TabIndex int    `json:"tab_index"`
}

type ActivateTerminalTab struct {
	Envelope
	AppName     string `json:"app_name"`
	WindowIndex int    `json:"window_index"`
	TabIndex    int    `json:"tab_index"`
}

type FocusAppWindow struct {
	Envelope
	AppName     string `json:"app_name"`
	WindowIndex int    `json:"window_index"`
}

type OpenMessagesChat struct {
	Envelope
	ChatID string `json:"chat_id"`
}

type ResizeWindow struct {
	Envelope
	Width  int `json:"width"`
	Height int `json:"height"`
}

type TypeText struct {
	Envelope
	Text string `json:"text"`
}

type PressKey struct {
	Envelope
	Key string `json:"key"`
}

type SuccessResult struct {
	Envelope
	Success bool `json:"success"`
}
