// Package server is the reliable transport and session multiplexer: it
// accepts WebSocket connections on the pairing port, runs the auth/approval
// handshake, multiplexes control traffic, forwards frames, and owns the
// transport handoff between reliable frames and the WebRTC data channel.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/screenlink/agent/internal/approval"
	"github.com/screenlink/agent/internal/commands"
	"github.com/screenlink/agent/internal/config"
	"github.com/screenlink/agent/internal/display"
	"github.com/screenlink/agent/internal/encode"
	"github.com/screenlink/agent/internal/input"
	"github.com/screenlink/agent/internal/logging"
	"github.com/screenlink/agent/internal/pairing"
	"github.com/screenlink/agent/internal/region"
	"github.com/screenlink/agent/internal/stream"
	"github.com/screenlink/agent/internal/sysauto"
	"github.com/screenlink/agent/internal/workerpool"
)

// switchGrace is how long the transport handoff waits after pausing the old
// capture task before constructing the new one.
const switchGrace = 200 * time.Millisecond

// Deps are the collaborators a Server multiplexes between.
type Deps struct {
	Config     *config.Config
	Credential *pairing.Credential
	Approvals  *approval.Registry
	Source     *display.Source
	Regions    *region.Store
	Commands   *commands.Store
	Input      *input.Dispatcher
	Automation sysauto.Controller
	Pool       *workerpool.Pool

	// NewVideoEncoder builds the H.264 encoder for a data-channel session.
	// nil uses the default constructor; a constructor error falls back to
	// bounded stills.
	NewVideoEncoder func() (*encode.VideoEncoder, error)
}

// Server accepts sessions and owns the single frame producer.
type Server struct {
	deps Deps
	log  *slog.Logger

	broadcast *frameBroadcast
	httpSrv   *http.Server

	upgrader websocket.Upgrader

	// captureMu serializes all producer state transitions; the data channel
	// and the reliable path must never both drive the grabber.
	captureMu sync.Mutex
	dcOwner   *session

	deviceMu        sync.Mutex
	connectedDevice string
}

func New(deps Deps) *Server {
	if deps.NewVideoEncoder == nil {
		cfg := deps.Config
		deps.NewVideoEncoder = func() (*encode.VideoEncoder, error) {
			return encode.NewVideoEncoder(encode.VideoConfig{
				FPS:              cfg.CaptureFPS,
				Bitrate:          cfg.VideoBitrate,
				KeyframeInterval: uint64(cfg.KeyframeInterval),
			})
		}
	}
	return &Server{
		deps:      deps,
		log:       logging.L("server"),
		broadcast: newFrameBroadcast(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The pairing token is the trust anchor; origins are meaningless
			// for a native mobile client.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run starts the frame producer and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.startReliableCapture(); err != nil {
		// Not fatal: sessions can still authenticate and drive automation;
		// streaming starts when the client reissues start_screen_share.
		s.log.Warn("initial capture start failed", "error", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)

	addr := fmt.Sprintf(":%d", s.deps.Config.ListenPort)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.log.Info("listening", "addr", addr, "blob", s.deps.Credential.Blob())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
		s.deps.Source.Pause()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ConnectedDevice returns the label of the connected client, if any.
func (s *Server) ConnectedDevice() (string, bool) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()
	return s.connectedDevice, s.connectedDevice != ""
}

func (s *Server) setConnectedDevice(name string) {
	s.deviceMu.Lock()
	s.connectedDevice = name
	s.deviceMu.Unlock()
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket handshake failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	sess := newSession(s, conn)
	s.log.Info("connection accepted", "remote", conn.RemoteAddr().String())
	go sess.run()
}

// screenInfo reports the logical screen size for auth_response.
func (s *Server) screenInfo() (int, int) {
	w, h, scale := s.deps.Source.Dimensions()
	if scale > 0 {
		return int(float64(w) / scale), int(float64(h) / scale)
	}
	return w, h
}

// startReliableCapture binds the producer to the broadcast. Callers hold no
// locks; capture state is guarded by captureMu.
func (s *Server) startReliableCapture() error {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	return s.startReliableCaptureLocked()
}

func (s *Server) startReliableCaptureLocked() error {
	if s.dcOwner != nil || s.deps.Source.Running() {
		return nil
	}
	_, _, scale := s.deps.Source.Dimensions()
	pipeline := stream.New(stream.Config{
		Transport: stream.TransportReliable,
		Regions:   s.deps.Regions,
		Scale:     scale,
		Send: func(pkt []byte) error {
			s.broadcast.Publish(pkt)
			return nil
		},
	})
	return s.deps.Source.Start(func(f *display.Frame) {
		if s.broadcast.Subscribers() == 0 {
			return
		}
		pipeline.HandleFrame(f)
	})
}

// ensureReliableCapture restarts the producer if an earlier acquisition
// failed. Called on start_screen_share so the client can retry streaming.
func (s *Server) ensureReliableCapture() error {
	return s.startReliableCapture()
}

// acquireDataChannel performs the reliable→data-channel half of the
// transport handoff: stop the reliable capture task, wait out the release
// grace, and clear the region so the new receiver starts full screen.
func (s *Server) acquireDataChannel(sess *session) error {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	if s.dcOwner != nil && s.dcOwner != sess {
		return fmt.Errorf("data channel already owned by another session")
	}
	s.deps.Source.Pause()
	time.Sleep(switchGrace)
	s.deps.Regions.Reset()
	s.dcOwner = sess
	return nil
}

// startDataChannelCapture runs once the channel opens: prime a keyframe and
// bind the producer to the channel. The old capture task stopped inside
// acquireDataChannel, so exactly one task is alive at any instant.
func (s *Server) startDataChannelCapture(sess *session) error {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	if s.dcOwner != sess {
		return fmt.Errorf("session no longer owns the data channel")
	}

	var video *encode.VideoEncoder
	if enc, err := s.deps.NewVideoEncoder(); err != nil {
		s.log.Warn("video encoder unavailable, using bounded stills", "error", err)
	} else {
		video = enc
	}
	sess.dcVideo = video

	_, _, scale := s.deps.Source.Dimensions()
	pipeline := stream.New(stream.Config{
		Transport: stream.TransportDataChannel,
		Regions:   s.deps.Regions,
		Scale:     scale,
		Video:     video,
		Send:      sess.sendFramePacket,
	})

	// New receiver: the first video packet must decode standalone.
	pipeline.ForceKeyframe()

	return s.deps.Source.Resume(pipeline.HandleFrame)
}

// releaseDataChannel undoes the handoff. resume restarts the reliable-path
// producer; on peer failure the client is expected to re-subscribe instead.
func (s *Server) releaseDataChannel(sess *session, resume bool) {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	if s.dcOwner != sess {
		return
	}
	s.deps.Source.Pause()
	time.Sleep(switchGrace)
	s.dcOwner = nil
	if sess.dcVideo != nil {
		sess.dcVideo.Close()
		sess.dcVideo = nil
	}
	if resume {
		if err := s.startReliableCaptureLocked(); err != nil {
			s.log.Warn("reliable capture resume failed", "error", err)
		}
	}
}
