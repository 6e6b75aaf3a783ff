// Package encode converts raw BGRA frames into compressed bitstreams: a JPEG
// still path that is always available, and an H.264 video path used on the
// unreliable channel.
package encode

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"sync"
)

// ErrFrameTooLarge is returned when a still frame cannot be shrunk under the
// transport budget even at minimum quality. The frame is dropped.
var ErrFrameTooLarge = errors.New("encoded frame exceeds size budget at minimum quality")

// BoundedStillLimit is the byte budget for stills headed to the unreliable
// transport. The reliable transport is unconstrained.
const BoundedStillLimit = 63 * 1024

const (
	qualityStep = 5
	qualityMin  = 10
)

// StillParams is the adaptive operating point for the still encoder.
type StillParams struct {
	// HalfScale halves both dimensions before encoding.
	HalfScale bool
	// Quality is the starting JPEG quality.
	Quality int
}

// AdaptiveStillParams picks scale and starting quality from the cropped
// logical pixel count.
func AdaptiveStillParams(pixels int) StillParams {
	switch {
	case pixels <= 150_000:
		return StillParams{HalfScale: false, Quality: 80}
	case pixels <= 300_000:
		return StillParams{HalfScale: false, Quality: 65}
	case pixels <= 600_000:
		return StillParams{HalfScale: true, Quality: 70}
	default:
		return StillParams{HalfScale: true, Quality: 65}
	}
}

// bufferPool recycles encode buffers; still frames are produced 30 times a
// second on the hot path.
var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 512*1024 {
		return // don't pool oversized buffers
	}
	bufferPool.Put(buf)
}

// StillEncoder is the baseline codec: one standalone compressed image per
// call, decodable by any client.
type StillEncoder struct{}

func NewStillEncoder() *StillEncoder {
	return &StillEncoder{}
}

// Encode produces one JPEG at the given quality. Size is unconstrained.
func (e *StillEncoder) Encode(img *image.RGBA, quality int) ([]byte, error) {
	return e.encodeOnce(img, clampQuality(quality))
}

// EncodeBounded produces one JPEG no larger than limit bytes, stepping the
// quality down from start until it fits. Below the quality floor the frame
// is dropped with ErrFrameTooLarge.
func (e *StillEncoder) EncodeBounded(img *image.RGBA, quality, limit int) ([]byte, error) {
	quality = clampQuality(quality)
	for {
		data, err := e.encodeOnce(img, quality)
		if err != nil {
			return nil, err
		}
		if len(data) <= limit {
			return data, nil
		}
		if quality <= qualityMin {
			return nil, ErrFrameTooLarge
		}
		quality -= qualityStep
		if quality < qualityMin {
			quality = qualityMin
		}
	}
}

func (e *StillEncoder) encodeOnce(img *image.RGBA, quality int) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
