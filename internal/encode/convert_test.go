package encode

import (
	"image"
	"testing"
)

// bgraFrame builds a zeroed, stride-padded BGRA buffer; setBGRA marks pixels.
func bgraFrame(w, h, stride int) []byte {
	pix := make([]byte, stride*h)
	return pix
}

func setBGRA(pix []byte, stride, x, y int, b, g, r byte) {
	i := y*stride + x*4
	pix[i], pix[i+1], pix[i+2], pix[i+3] = b, g, r, 0xff
}

func TestCropRGBAHonorsStride(t *testing.T) {
	// 128-byte row alignment: 10px wide rows padded to 128 bytes.
	stride := 128
	pix := bgraFrame(10, 8, stride)
	setBGRA(pix, stride, 4, 3, 0x10, 0x20, 0x30) // B G R

	img := CropRGBA(pix, stride, 4, 3, 4, 4)
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
		t.Fatalf("crop size = %dx%d", b.Dx(), b.Dy())
	}
	// The marked source pixel lands at (0,0), converted to RGBA order.
	if img.Pix[0] != 0x30 || img.Pix[1] != 0x20 || img.Pix[2] != 0x10 || img.Pix[3] != 0xff {
		t.Fatalf("pixel = % x", img.Pix[:4])
	}
}

func TestEvenAlign(t *testing.T) {
	cases := map[int]int{0: 2, 1: 2, 2: 2, 3: 2, 640: 640, 641: 640, 1081: 1080}
	for in, want := range cases {
		if got := EvenAlign(in); got != want {
			t.Errorf("EvenAlign(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestBGRAToI420OddDimensionsStayValid(t *testing.T) {
	stride := 16 * 4
	pix := bgraFrame(16, 16, stride)
	// White pixel at origin.
	setBGRA(pix, stride, 0, 0, 0xff, 0xff, 0xff)

	// Odd 15x13 crop decimated by 1 → 14x12 output.
	w, h := EvenAlign(15), EvenAlign(13)
	dst := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	bgraToI420(pix, stride, 0, 0, 15, 13, 1, dst)

	if dst.Y[0] < 200 {
		t.Fatalf("white pixel luma = %d", dst.Y[0])
	}
	// Black pixel elsewhere is near the BT.601 floor.
	if dst.Y[1] > 32 {
		t.Fatalf("black pixel luma = %d", dst.Y[1])
	}
}

func TestBGRAToI420Decimation(t *testing.T) {
	stride := 32 * 4
	pix := bgraFrame(32, 32, stride)
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			setBGRA(pix, stride, x, y, 0x80, 0x80, 0x80)
		}
	}

	dst := image.NewYCbCr(image.Rect(0, 0, 16, 16), image.YCbCrSubsampleRatio420)
	bgraToI420(pix, stride, 0, 0, 32, 32, 2, dst)

	// Uniform gray input stays uniform after decimation.
	first := dst.Y[0]
	for i, v := range dst.Y {
		if v != first {
			t.Fatalf("luma plane not uniform at %d: %d vs %d", i, v, first)
		}
	}
}
