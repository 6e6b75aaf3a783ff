package display

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// screenGrabber captures via the portable screenshot backend. It polls; every
// call yields a frame, so it never reports ErrWouldBlock.
type screenGrabber struct {
	bounds image.Rectangle
	closed bool
}

// NewScreenGrabber opens the default platform grabber for one display.
func NewScreenGrabber(displayIndex int) (Grabber, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, ErrNotSupported
	}
	if displayIndex < 0 || displayIndex >= n {
		displayIndex = 0
	}
	bounds := screenshot.GetDisplayBounds(displayIndex)
	if bounds.Empty() {
		return nil, fmt.Errorf("display %d has empty bounds", displayIndex)
	}
	return &screenGrabber{bounds: bounds}, nil
}

func (g *screenGrabber) Frame() (*Frame, error) {
	if g.closed {
		return nil, fmt.Errorf("grabber is closed")
	}
	img, err := screenshot.CaptureRect(g.bounds)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	// The backend returns RGBA; the pipeline contract is BGRA.
	rgbaToBGRAInPlace(img.Pix)

	return &Frame{
		Pix:    img.Pix,
		Width:  img.Rect.Dx(),
		Height: img.Rect.Dy(),
		Stride: img.Stride,
	}, nil
}

func (g *screenGrabber) Dimensions() (int, int) {
	return g.bounds.Dx(), g.bounds.Dy()
}

func (g *screenGrabber) Close() error {
	g.closed = true
	return nil
}

func rgbaToBGRAInPlace(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
