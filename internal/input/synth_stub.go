package input

// stubSynthesizer stands in where no OS input backend is wired. The real
// synthesizer lives outside this module (per-platform helper binary).
type stubSynthesizer struct{}

func newPlatformSynthesizer() Synthesizer {
	return stubSynthesizer{}
}

func (stubSynthesizer) Synthesize(Event) error            { return ErrNotSupported }
func (stubSynthesizer) Scroll(string, int) error          { return ErrNotSupported }
func (stubSynthesizer) CursorPosition() (int, int, bool)  { return 0, 0, false }
