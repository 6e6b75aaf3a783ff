package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/screenlink/agent/internal/encode"
	"github.com/screenlink/agent/internal/input"
	"github.com/screenlink/agent/internal/protocol"
	"github.com/screenlink/agent/internal/rtc"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	// mousePollInterval is how often the OS cursor is sampled while
	// streaming; positions are only transmitted when they change.
	mousePollInterval = 50 * time.Millisecond
)

// sessionState is the per-connection state machine.
//
//	idle → authPending → (approved | closed)
//	approved ↔ streamingReliable (start/stop_screen_share)
//	approved | streamingReliable → streamingDC (start_webrtc)
//	streamingDC → streamingReliable (stop_webrtc) | approved (peer failure)
//	any → closed
type sessionState int

const (
	stateIdle sessionState = iota
	stateAuthPending
	stateApproved // authenticated + approved, streaming off
	stateStreamingReliable
	stateStreamingDC
	stateClosed
)

// session is one connected client. The read loop processes control messages
// in arrival order; blocking OS work is pushed to the worker pool.
type session struct {
	srv  *Server
	conn *websocket.Conn
	log  *slog.Logger

	// ctx is cancelled when the connection dies; it abandons any pending
	// approval wait.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      sessionState
	deviceName string

	sendText chan []byte
	frames   chan []byte
	done     chan struct{}

	closeOnce sync.Once

	rtcMu      sync.Mutex
	rtcSession *rtc.Session
	dcVideo    *encode.VideoEncoder
}

func newSession(srv *Server, conn *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		srv:      srv,
		conn:     conn,
		log:      srv.log.With("remote", conn.RemoteAddr().String()),
		ctx:      ctx,
		cancel:   cancel,
		state:    stateIdle,
		sendText: make(chan []byte, 256),
		frames:   make(chan []byte, subscriberBuffer),
		done:     make(chan struct{}),
	}
}

func (s *session) run() {
	go s.writePump()
	go s.mouseLoop()
	s.readLoop()
	s.teardown()
}

func (s *session) setState(st sessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *session) getState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// approvedState reports whether the session has passed auth and approval.
func (s *session) approvedState() bool {
	switch s.getState() {
	case stateApproved, stateStreamingReliable, stateStreamingDC:
		return true
	}
	return false
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("read error", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		kind, err := protocol.PeekType(data)
		if err != nil {
			// Malformed control messages are ignored; the session lives on.
			s.log.Debug("malformed message ignored", "error", err)
			continue
		}
		s.handleMessage(kind, data)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case msg := <-s.sendText:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Warn("write error", "error", err)
				return
			}

		case frame := <-s.frames:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				s.log.Warn("frame write error", "error", err)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// mouseLoop samples the OS cursor while frames are flowing and reports
// position changes. Coalesced by nature: only the latest position matters.
func (s *session) mouseLoop() {
	ticker := time.NewTicker(mousePollInterval)
	defer ticker.Stop()

	lastX, lastY := -1, -1
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			switch s.getState() {
			case stateStreamingReliable, stateStreamingDC:
			default:
				continue
			}
			x, y, ok := s.srv.deps.Input.CursorPosition()
			if !ok || (x == lastX && y == lastY) {
				continue
			}
			lastX, lastY = x, y
			s.sendJSON(protocol.MousePosition{
				Envelope: protocol.Envelope{Type: protocol.TypeMousePosition},
				X:        x,
				Y:        y,
			})
		}
	}
}

// sendJSON queues a control message. A full queue drops the message rather
// than blocking the caller.
func (s *session) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal message", "error", err)
		return
	}
	select {
	case s.sendText <- data:
	case <-s.done:
	default:
		s.log.Warn("send queue full, message dropped")
	}
}

// sendFramePacket ships one packet over the active data channel.
func (s *session) sendFramePacket(pkt []byte) error {
	s.rtcMu.Lock()
	sess := s.rtcSession
	s.rtcMu.Unlock()
	if sess == nil {
		return rtc.ErrChannelNotOpen
	}
	return sess.Send(pkt)
}

func (s *session) handleMessage(kind string, data []byte) {
	if kind == protocol.TypeAuth {
		s.handleAuth(data)
		return
	}

	// Everything else requires an authenticated, approved session.
	// Operations out of state are silently ignored.
	if !s.approvedState() {
		return
	}

	switch kind {
	case protocol.TypeExecute:
		var msg protocol.Execute
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		s.srv.deps.Pool.Submit(func() {
			output, ok, found := s.srv.deps.Commands.Execute(s.ctx, msg.CommandID)
			if !found {
				return
			}
			s.sendJSON(protocol.ExecuteResult{
				Envelope:  protocol.Envelope{Type: protocol.TypeExecuteResult},
				CommandID: msg.CommandID,
				Output:    output,
				Success:   ok,
			})
		})

	case protocol.TypeAddCommand:
		var msg protocol.AddCommand
		if json.Unmarshal(data, &msg) != nil || msg.Name == "" || msg.Command == "" {
			return
		}
		s.srv.deps.Commands.Add(msg.Name, msg.Command)
		s.sendCommandList()

	case protocol.TypeStartScreenShare:
		if err := s.srv.ensureReliableCapture(); err != nil {
			// Streaming stays off; the client retries.
			s.log.Warn("capture unavailable", "error", err)
			return
		}
		if s.getState() == stateApproved {
			s.srv.broadcast.Subscribe(s.frames)
			s.setState(stateStreamingReliable)
			s.log.Info("screen share started")
		}

	case protocol.TypeStopScreenShare:
		if s.getState() == stateStreamingReliable {
			s.srv.broadcast.Unsubscribe(s.frames)
			s.setState(stateApproved)
			s.log.Info("screen share stopped")
		}

	case protocol.TypeSetCaptureRegion:
		var msg protocol.SetCaptureRegion
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		s.srv.deps.Regions.Set(msg.X, msg.Y, msg.Width, msg.Height)

	case protocol.TypeSetViewport:
		var msg protocol.SetViewport
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		s.srv.deps.Regions.SetViewport(
			msg.ViewportX, msg.ViewportY,
			msg.ViewportWidth, msg.ViewportHeight,
			msg.QualityMode,
		)

	case protocol.TypeResetCaptureRegion:
		s.srv.deps.Regions.Reset()

	case protocol.TypeInput:
		ev, err := input.ParseEvent(data)
		if err != nil {
			return
		}
		s.srv.deps.Input.Send(ev)

	case protocol.TypeScroll:
		var msg protocol.Scroll
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		if err := s.srv.deps.Input.Scroll(msg.Direction, msg.Amount); err != nil {
			s.log.Debug("scroll failed", "error", err)
		}

	case protocol.TypeStartWebRTC:
		s.handleStartWebRTC()

	case protocol.TypeWebRTCAnswer:
		var msg protocol.WebRTCAnswer
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		s.rtcMu.Lock()
		sess := s.rtcSession
		s.rtcMu.Unlock()
		if sess == nil {
			return
		}
		if err := sess.SetAnswer(msg.SDP); err != nil {
			s.log.Warn("set answer failed", "error", err)
		}

	case protocol.TypeWebRTCICECandidate:
		var msg protocol.WebRTCICECandidate
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		s.rtcMu.Lock()
		sess := s.rtcSession
		s.rtcMu.Unlock()
		if sess == nil {
			return
		}
		if err := sess.AddICECandidate(msg.Candidate); err != nil {
			s.log.Warn("add ice candidate failed", "error", err)
		}

	case protocol.TypeStopWebRTC:
		s.stopWebRTC(true)

	default:
		if s.handleAutomation(kind, data) {
			return
		}
		// Unknown types are ignored by contract.
	}
}

func (s *session) handleAuth(data []byte) {
	if s.getState() != stateIdle {
		return
	}

	var msg protocol.Auth
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	if msg.Token != s.srv.deps.Credential.Token {
		s.log.Warn("auth failed, bad token", "device", msg.DeviceName)
		s.sendAuthResponse(false)
		// Give the writer a moment to flush the refusal.
		time.Sleep(100 * time.Millisecond)
		s.conn.Close()
		return
	}

	approved := msg.IsExternal
	if approved {
		s.log.Info("external session auto-approved", "device", msg.DeviceName)
	} else {
		s.setState(stateAuthPending)
		remoteIP := s.conn.RemoteAddr().String()
		if host, _, err := net.SplitHostPort(remoteIP); err == nil {
			remoteIP = host
		}
		approved = s.srv.deps.Approvals.Submit(s.ctx, msg.DeviceName, remoteIP)
	}

	if !approved {
		s.setState(stateIdle)
		s.sendAuthResponse(false)
		time.Sleep(100 * time.Millisecond)
		s.conn.Close()
		return
	}

	s.mu.Lock()
	s.deviceName = msg.DeviceName
	s.state = stateApproved
	s.mu.Unlock()
	s.srv.setConnectedDevice(msg.DeviceName)

	s.sendAuthResponse(true)
	s.sendCommandList()
	s.log.Info("session approved", "device", msg.DeviceName)
}

func (s *session) sendAuthResponse(success bool) {
	resp := protocol.AuthResponse{
		Envelope: protocol.Envelope{Type: protocol.TypeAuthResponse},
		Success:  success,
	}
	if success {
		w, h := s.srv.screenInfo()
		resp.ScreenInfo = &protocol.ScreenInfo{Width: w, Height: h}
	}
	s.sendJSON(resp)
}

func (s *session) sendCommandList() {
	list := s.srv.deps.Commands.List()
	msg := protocol.CommandList{
		Envelope: protocol.Envelope{Type: protocol.TypeCommandList},
		Commands: make([]protocol.Command, 0, len(list)),
	}
	for _, c := range list {
		msg.Commands = append(msg.Commands, protocol.Command{
			ID:      c.ID,
			Name:    c.Name,
			Command: c.Command,
			Icon:    c.Icon,
		})
	}
	s.sendJSON(msg)
}

// handleStartWebRTC performs the reliable→data-channel handoff. Honored only
// from streaming-off or streaming-reliable.
func (s *session) handleStartWebRTC() {
	switch s.getState() {
	case stateApproved, stateStreamingReliable:
	default:
		return
	}

	// Leave the reliable frame path before the grabber handoff.
	s.srv.broadcast.Unsubscribe(s.frames)

	if err := s.srv.acquireDataChannel(s); err != nil {
		s.log.Warn("transport switch refused", "error", err)
		return
	}

	sess, err := rtc.NewSession(rtc.Config{
		STUNServers: s.srv.deps.Config.STUNServers,
		OnICECandidate: func(candidate string) {
			s.sendJSON(protocol.WebRTCICECandidate{
				Envelope:  protocol.Envelope{Type: protocol.TypeWebRTCICECandidate},
				Candidate: candidate,
			})
		},
		OnOpen: func() {
			// pion callback: the handoff sleeps, so run it off-thread.
			go func() {
				if err := s.srv.startDataChannelCapture(s); err != nil {
					s.log.Warn("data channel capture failed", "error", err)
				}
			}()
		},
		OnClosed: func() {
			go s.stopWebRTC(false)
		},
	})
	if err != nil {
		s.log.Warn("webrtc session failed", "error", err)
		s.srv.releaseDataChannel(s, true)
		return
	}

	s.rtcMu.Lock()
	s.rtcSession = sess
	s.rtcMu.Unlock()
	s.setState(stateStreamingDC)

	offer, err := sess.CreateOffer()
	if err != nil {
		s.log.Warn("create offer failed", "error", err)
		s.stopWebRTC(true)
		return
	}
	s.sendJSON(protocol.WebRTCOffer{
		Envelope: protocol.Envelope{Type: protocol.TypeWebRTCOffer},
		SDP:      offer,
	})
}

// stopWebRTC tears the data-channel session down. resumeReliable restarts
// the reliable producer and, while the connection is live, puts this client
// back on reliable frames (stop_webrtc); peer failures leave streaming off
// until the client re-subscribes.
func (s *session) stopWebRTC(resumeReliable bool) {
	s.rtcMu.Lock()
	sess := s.rtcSession
	s.rtcSession = nil
	s.rtcMu.Unlock()
	if sess == nil {
		return
	}

	sess.Close()
	s.srv.releaseDataChannel(s, resumeReliable)
	if s.getState() == stateStreamingDC {
		// teardown cancels ctx first, so a dead client is never resubscribed.
		if resumeReliable && s.ctx.Err() == nil {
			s.srv.broadcast.Subscribe(s.frames)
			s.setState(stateStreamingReliable)
		} else {
			s.setState(stateApproved)
		}
	}
	s.log.Info("webrtc session stopped", "resumedReliable", resumeReliable)
}

// teardown runs when the connection dies for any reason.
func (s *session) teardown() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)

		s.srv.broadcast.Unsubscribe(s.frames)
		// A dead client cannot re-subscribe; free the grabber for the next
		// session's reliable path.
		s.stopWebRTC(true)

		s.mu.Lock()
		wasApproved := s.state == stateApproved || s.state == stateStreamingReliable || s.state == stateStreamingDC
		s.state = stateClosed
		s.mu.Unlock()

		if wasApproved {
			s.srv.setConnectedDevice("")
		}
		s.conn.Close()
		s.log.Info("connection closed")
	})
}
