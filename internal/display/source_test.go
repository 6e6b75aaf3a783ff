package display

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeGrabber produces synthetic BGRA frames and records lifecycle calls.
type fakeGrabber struct {
	mu       sync.Mutex
	frames   int
	closed   bool
	closedAt time.Time
	failWith error
	block    int // serve ErrWouldBlock this many times first
}

func (g *fakeGrabber) Frame() (*Frame, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	if g.block > 0 {
		g.block--
		return nil, ErrWouldBlock
	}
	g.frames++
	stride := 64 * 4
	return &Frame{
		Pix:    make([]byte, stride*48),
		Width:  64,
		Height: 48,
		Stride: stride,
	}, nil
}

func (g *fakeGrabber) Dimensions() (int, int) { return 64, 48 }

func (g *fakeGrabber) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.closedAt = time.Now()
	return nil
}

func (g *fakeGrabber) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func newTestSource(factory GrabberFactory) *Source {
	return NewSource(SourceConfig{
		FPS:          60,
		NewGrabber:   factory,
		AcquireDelay: 10 * time.Millisecond,
		ReleaseGrace: 50 * time.Millisecond,
	})
}

func TestStartProducesFrames(t *testing.T) {
	g := &fakeGrabber{}
	s := newTestSource(func(int) (Grabber, error) { return g, nil })

	var count atomic.Int32
	if err := s.Start(func(f *Frame) {
		if f.Stride < f.Width*4 {
			t.Errorf("stride %d < width*4", f.Stride)
		}
		count.Add(1)
	}); err != nil {
		t.Fatal(err)
	}
	defer s.Pause()

	deadline := time.Now().Add(2 * time.Second)
	for count.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if count.Load() < 3 {
		t.Fatalf("produced %d frames", count.Load())
	}
}

func TestSourceIsExclusive(t *testing.T) {
	g := &fakeGrabber{}
	s := newTestSource(func(int) (Grabber, error) { return g, nil })

	if err := s.Start(func(*Frame) {}); err != nil {
		t.Fatal(err)
	}
	defer s.Pause()

	if err := s.Start(func(*Frame) {}); err == nil {
		t.Fatal("second Start must fail while running")
	}
}

func TestPauseReleasesGrabberBeforeReturning(t *testing.T) {
	g := &fakeGrabber{}
	s := newTestSource(func(int) (Grabber, error) { return g, nil })

	if err := s.Start(func(*Frame) {}); err != nil {
		t.Fatal(err)
	}
	s.Pause()

	if !g.isClosed() {
		t.Fatal("grabber still open after Pause returned")
	}
	if s.Running() {
		t.Fatal("source still running after Pause")
	}
}

func TestResumeWaitsReleaseGraceAndUsesFreshGrabber(t *testing.T) {
	var built []*fakeGrabber
	var mu sync.Mutex
	factory := func(int) (Grabber, error) {
		mu.Lock()
		defer mu.Unlock()
		g := &fakeGrabber{}
		built = append(built, g)
		return g, nil
	}

	s := newTestSource(factory)
	if err := s.Start(func(*Frame) {}); err != nil {
		t.Fatal(err)
	}
	s.Pause()

	mu.Lock()
	first := built[0]
	mu.Unlock()
	pausedAt := first.closedAt

	if err := s.Resume(func(*Frame) {}); err != nil {
		t.Fatal(err)
	}
	defer s.Pause()

	mu.Lock()
	n := len(built)
	mu.Unlock()
	if n != 2 {
		t.Fatalf("expected a fresh grabber on resume, built %d", n)
	}
	if elapsed := time.Since(pausedAt); elapsed < s.cfg.ReleaseGrace {
		t.Fatalf("resume acquired after %v, want >= %v", elapsed, s.cfg.ReleaseGrace)
	}
}

func TestWouldBlockIsNotAnError(t *testing.T) {
	g := &fakeGrabber{block: 5}
	s := newTestSource(func(int) (Grabber, error) { return g, nil })

	var count atomic.Int32
	if err := s.Start(func(*Frame) { count.Add(1) }); err != nil {
		t.Fatal(err)
	}
	defer s.Pause()

	deadline := time.Now().Add(2 * time.Second)
	for count.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if count.Load() < 1 {
		t.Fatal("no frame after would-block run")
	}
}

func TestAcquisitionFailureIsBounded(t *testing.T) {
	attempts := 0
	factory := func(int) (Grabber, error) {
		attempts++
		return nil, errors.New("display busy")
	}
	s := newTestSource(factory)

	err := s.Start(func(*Frame) {})
	if !errors.Is(err, ErrAcquire) {
		t.Fatalf("err = %v, want ErrAcquire", err)
	}
	if attempts != s.cfg.AcquireRetries {
		t.Fatalf("attempts = %d, want %d", attempts, s.cfg.AcquireRetries)
	}
	if s.Running() {
		t.Fatal("source must not be running after failed Start")
	}
}

func TestHardErrorTriggersReacquire(t *testing.T) {
	bad := &fakeGrabber{failWith: errors.New("display stream died")}
	good := &fakeGrabber{}
	calls := 0
	var mu sync.Mutex
	factory := func(int) (Grabber, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return bad, nil
		}
		return good, nil
	}

	s := newTestSource(factory)
	var count atomic.Int32
	if err := s.Start(func(*Frame) { count.Add(1) }); err != nil {
		t.Fatal(err)
	}
	defer s.Pause()

	deadline := time.Now().Add(5 * time.Second)
	for count.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if count.Load() < 1 {
		t.Fatal("no frames after reacquire")
	}
	if !bad.isClosed() {
		t.Fatal("failed grabber was not released")
	}
}
