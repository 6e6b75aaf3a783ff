// Package rtc implements the unreliable transport: a single peer-to-peer
// data channel negotiated over the reliable control channel. The channel is
// unordered with no retransmits — UDP-like, latest frame wins.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"

	"github.com/screenlink/agent/internal/logging"
)

// ErrChannelNotOpen is returned by Send before the data channel opens or
// after it closes.
var ErrChannelNotOpen = errors.New("data channel not open")

// Config wires a session to its owner. Callbacks fire on pion's goroutines;
// they must not block.
type Config struct {
	// STUNServers, empty means the public Google servers.
	STUNServers []string

	// OnICECandidate receives local trickled candidates as JSON strings.
	OnICECandidate func(candidateJSON string)
	// OnOpen fires when the data channel becomes usable. The host requests a
	// keyframe and starts the data-channel capture task here.
	OnOpen func()
	// OnClosed fires once when the peer connection fails or closes.
	OnClosed func()
}

// Session is one peer connection with its "screen" data channel.
type Session struct {
	pc  *webrtc.PeerConnection
	dc  *webrtc.DataChannel
	log *slog.Logger

	closeOnce  sync.Once
	closedOnce sync.Once
}

// NewSession builds the peer and the data channel and registers callbacks.
// The offer is created by the host side (the client answers).
func NewSession(cfg Config) (*Session, error) {
	servers := cfg.STUNServers
	if len(servers) == 0 {
		servers = []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		}
	}

	// mDNS candidates resolve poorly outside browsers and can stall ICE in
	// headless processes.
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	settingEngine.SetICETimeouts(5*time.Second, 25*time.Second, 2*time.Second)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: servers}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	s := &Session{
		pc:  pc,
		log: logging.L("rtc"),
	}

	ordered := false
	maxRetransmits := uint16(0)
	dc, err := pc.CreateDataChannel("screen", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	s.dc = dc

	dc.OnOpen(func() {
		s.log.Info("data channel open")
		if cfg.OnOpen != nil {
			cfg.OnOpen()
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil || cfg.OnICECandidate == nil {
			return
		}
		raw, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			s.log.Warn("marshal ice candidate", "error", err)
			return
		}
		cfg.OnICECandidate(string(raw))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Info("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.closedOnce.Do(func() {
				if cfg.OnClosed != nil {
					cfg.OnClosed()
				}
			})
		}
	})

	return s, nil
}

// CreateOffer produces the local SDP. Candidates trickle separately via
// OnICECandidate, so this does not wait for gathering.
func (s *Session) CreateOffer() (string, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

// SetAnswer installs the client's SDP answer.
func (s *Session) SetAnswer(sdp string) error {
	return s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

// AddICECandidate installs one remote trickled candidate.
func (s *Session) AddICECandidate(candidateJSON string) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidateJSON), &candidate); err != nil {
		return fmt.Errorf("parse ice candidate: %w", err)
	}
	return s.pc.AddICECandidate(candidate)
}

// Open reports whether the data channel is usable.
func (s *Session) Open() bool {
	return s.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// Send ships one frame packet. Failures are per-frame: the caller logs and
// moves on.
func (s *Session) Send(pkt []byte) error {
	if !s.Open() {
		return ErrChannelNotOpen
	}
	return s.dc.Send(pkt)
}

// Close tears down the channel and the peer connection.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.dc != nil {
			s.dc.Close()
		}
		err = s.pc.Close()
		s.log.Info("session closed")
	})
	return err
}
