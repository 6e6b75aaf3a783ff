package display

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/screenlink/agent/internal/logging"
)

const (
	// defaultAcquireRetries bounds grabber reacquisition after a pause or a
	// hard capture error.
	defaultAcquireRetries = 10
	defaultAcquireDelay   = time.Second

	// defaultReleaseGrace is how long to wait after closing a grabber before
	// a new one may be constructed. Some platforms leak a display-stream
	// callback briefly after release; a grabber built too soon can receive
	// frames still owned by the old callback.
	defaultReleaseGrace = time.Second

	// wouldBlockSleep paces the poll loop when no frame is ready.
	wouldBlockSleep = 5 * time.Millisecond
)

// ErrAcquire is returned when the grabber cannot be reacquired within the
// retry budget. The session stays alive; streaming remains off until the
// client reissues a start.
var ErrAcquire = errors.New("screen grabber acquisition failed")

// Sink receives produced frames. It must not retain the frame's Pix slice
// past the call.
type Sink func(*Frame)

// SourceConfig configures the frame producer. The retry knobs exist for
// tests; zero values take the defaults above.
type SourceConfig struct {
	DisplayIndex int
	FPS          int
	// NewGrabber defaults to NewScreenGrabber.
	NewGrabber GrabberFactory

	AcquireRetries int
	AcquireDelay   time.Duration
	ReleaseGrace   time.Duration
}

// Source is the exclusive frame producer: one OS grabber, one worker
// goroutine, pausable so a second transport can take over the screen.
type Source struct {
	cfg SourceConfig
	log *slog.Logger

	running    atomic.Bool
	wg         sync.WaitGroup
	releasedAt atomic.Int64 // unix nanos of the last grabber release

	mu     sync.Mutex
	width  int
	height int
	scale  float64
}

func NewSource(cfg SourceConfig) *Source {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.NewGrabber == nil {
		cfg.NewGrabber = NewScreenGrabber
	}
	if cfg.AcquireRetries <= 0 {
		cfg.AcquireRetries = defaultAcquireRetries
	}
	if cfg.AcquireDelay <= 0 {
		cfg.AcquireDelay = defaultAcquireDelay
	}
	if cfg.ReleaseGrace <= 0 {
		cfg.ReleaseGrace = defaultReleaseGrace
	}
	return &Source{
		cfg:   cfg,
		log:   logging.L("display"),
		scale: 1.0,
	}
}

// Start acquires the grabber and begins producing frames into sink at the
// target rate. It fails if the source is already running (the grabber is
// globally exclusive) or if acquisition exhausts its retry budget.
func (s *Source) Start(sink Sink) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("frame source already running")
	}

	grabber, err := s.acquire()
	if err != nil {
		s.running.Store(false)
		return err
	}

	w, h := grabber.Dimensions()
	s.mu.Lock()
	s.width, s.height = w, h
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.produce(grabber, sink)
	}()

	s.log.Info("frame source started", "width", w, "height", h, "fps", s.cfg.FPS)
	return nil
}

// Pause stops production. When it returns, the grabber and its platform
// callbacks have been released; Resume may then reacquire.
func (s *Source) Pause() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.wg.Wait()
	s.log.Info("frame source paused")
}

// Resume restarts production after a Pause with a fresh grabber.
func (s *Source) Resume(sink Sink) error {
	return s.Start(sink)
}

// Running reports whether the producer loop is live.
func (s *Source) Running() bool {
	return s.running.Load()
}

// Dimensions returns the last-known capture size and the logical scale
// factor. Valid after the first successful Start.
func (s *Source) Dimensions() (width, height int, scale float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height, s.scale
}

// acquire builds a grabber, honoring the post-release grace period and
// retrying on failure while the source remains running.
func (s *Source) acquire() (Grabber, error) {
	if released := s.releasedAt.Load(); released > 0 {
		elapsed := time.Since(time.Unix(0, released))
		if elapsed < s.cfg.ReleaseGrace {
			time.Sleep(s.cfg.ReleaseGrace - elapsed)
		}
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.AcquireRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.cfg.AcquireDelay)
			if !s.running.Load() {
				return nil, ErrAcquire
			}
		}
		grabber, err := s.cfg.NewGrabber(s.cfg.DisplayIndex)
		if err == nil {
			return grabber, nil
		}
		lastErr = err
		s.log.Warn("grabber acquisition failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%w: %v", ErrAcquire, lastErr)
}

// produce is the dedicated capture worker. A hard grab error drops the
// current grabber and loops back to reacquisition; running its own retry
// budget out ends production.
func (s *Source) produce(grabber Grabber, sink Sink) {
	defer func() {
		if grabber != nil {
			s.release(grabber)
		}
	}()

	frameDuration := time.Second / time.Duration(s.cfg.FPS)

	for s.running.Load() {
		start := time.Now()

		frame, err := grabber.Frame()
		switch {
		case err == nil:
			sink(frame)
		case errors.Is(err, ErrWouldBlock):
			time.Sleep(wouldBlockSleep)
			continue
		default:
			s.log.Warn("capture error, reacquiring grabber", "error", err)
			s.release(grabber)
			grabber = nil
			if !s.running.Load() {
				return
			}
			next, acqErr := s.acquire()
			if acqErr != nil {
				s.log.Error("frame source stopped", "error", acqErr)
				s.running.Store(false)
				return
			}
			grabber = next
			w, h := grabber.Dimensions()
			s.mu.Lock()
			s.width, s.height = w, h
			s.mu.Unlock()
			continue
		}

		if elapsed := time.Since(start); elapsed < frameDuration {
			time.Sleep(frameDuration - elapsed)
		}
	}
}

func (s *Source) release(grabber Grabber) {
	if err := grabber.Close(); err != nil {
		s.log.Warn("grabber close failed", "error", err)
	}
	s.releasedAt.Store(time.Now().UnixNano())
}
