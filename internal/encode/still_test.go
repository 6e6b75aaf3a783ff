package encode

import (
	"bytes"
	"image"
	"image/jpeg"
	"math/rand"
	"testing"
)

func noisyRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(7))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func TestAdaptiveStillParamsTable(t *testing.T) {
	cases := []struct {
		pixels  int
		half    bool
		quality int
	}{
		{100_000, false, 80},
		{150_000, false, 80},
		{150_001, false, 65},
		{300_000, false, 65},
		{300_001, true, 70},
		{480_000, true, 70}, // 800x600 region
		{600_000, true, 70},
		{600_001, true, 65},
		{2_073_600, true, 65}, // full 1920x1080
	}
	for _, tc := range cases {
		got := AdaptiveStillParams(tc.pixels)
		if got.HalfScale != tc.half || got.Quality != tc.quality {
			t.Errorf("AdaptiveStillParams(%d) = %+v, want half=%v quality=%d",
				tc.pixels, got, tc.half, tc.quality)
		}
	}
}

func TestEncodeProducesDecodableJPEG(t *testing.T) {
	e := NewStillEncoder()
	img := noisyRGBA(320, 240)

	data, err := e.Encode(img, 80)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := decoded.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Fatalf("decoded size = %dx%d", b.Dx(), b.Dy())
	}
}

func TestEncodeBoundedShrinksUnderLimit(t *testing.T) {
	e := NewStillEncoder()
	img := noisyRGBA(320, 240) // noise compresses poorly

	full, err := e.Encode(img, 80)
	if err != nil {
		t.Fatal(err)
	}
	// A limit just under the quality-80 size forces at least one 5-point step.
	limit := len(full) - 1

	data, err := e.EncodeBounded(img, 80, limit)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) > limit {
		t.Fatalf("bounded encode produced %d bytes", len(data))
	}
}

func TestEncodeBoundedDropsWhenImpossible(t *testing.T) {
	e := NewStillEncoder()
	img := noisyRGBA(1920, 1080)

	_, err := e.EncodeBounded(img, 80, 512)
	if err != ErrFrameTooLarge {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestHalveRGBA(t *testing.T) {
	img := noisyRGBA(640, 481)
	half := HalveRGBA(img)
	if b := half.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Fatalf("halved size = %dx%d", b.Dx(), b.Dy())
	}
	// Top-left pixel is preserved by nearest neighbor.
	for c := 0; c < 4; c++ {
		if half.Pix[c] != img.Pix[c] {
			t.Fatalf("pixel channel %d = %d, want %d", c, half.Pix[c], img.Pix[c])
		}
	}
}
