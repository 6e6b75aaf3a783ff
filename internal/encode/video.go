package encode

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	openh264 "github.com/y9o/go-openh264"

	"github.com/screenlink/agent/internal/logging"
)

var log = logging.L("encode")

// ErrVideoUnavailable is returned when the OpenH264 library could not be
// loaded; callers fall back to the still path.
var ErrVideoUnavailable = errors.New("h264 encoder unavailable")

var (
	loadOnce sync.Once
	loadErr  error
)

// LoadH264 loads the OpenH264 shared library, trying the given paths and
// then the platform default names. Safe to call more than once.
func LoadH264(paths ...string) error {
	loadOnce.Do(func() {
		candidates := append([]string{}, paths...)
		switch runtime.GOOS {
		case "darwin":
			candidates = append(candidates, "libopenh264.dylib", "/usr/local/lib/libopenh264.dylib")
		case "windows":
			candidates = append(candidates, "openh264.dll")
		default:
			candidates = append(candidates, "libopenh264.so", "libopenh264.so.7")
		}
		for _, path := range candidates {
			if err := openh264.Open(path); err == nil {
				log.Info("openh264 loaded", "path", path)
				return
			}
		}
		loadErr = fmt.Errorf("%w: no loadable openh264 library", ErrVideoUnavailable)
	})
	return loadErr
}

// VideoConfig configures the H.264 encoder.
type VideoConfig struct {
	FPS              int
	Bitrate          int
	KeyframeInterval uint64
}

func (c *VideoConfig) applyDefaults() {
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.Bitrate <= 0 {
		c.Bitrate = 5_000_000
	}
	if c.KeyframeInterval == 0 {
		c.KeyframeInterval = 15
	}
}

// VideoEncoder produces an H.264 stream whose packets depend on previous
// packets except at intra frames. The encoder is rebuilt whenever the target
// dimensions change; the first frame after a rebuild is intra, as is every
// KeyframeInterval-th frame and any frame after ForceIntra.
type VideoEncoder struct {
	mu  sync.Mutex
	cfg VideoConfig

	enc    *openh264.ISVCEncoder
	width  int
	height int

	frameCount uint64
	forceIntra atomic.Bool

	ycbcr  *image.YCbCr
	pinner runtime.Pinner
}

// NewVideoEncoder verifies the codec library is loaded. The underlying
// encoder instance is created lazily at the first Encode, once the output
// dimensions are known.
func NewVideoEncoder(cfg VideoConfig) (*VideoEncoder, error) {
	if err := LoadH264(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &VideoEncoder{cfg: cfg}, nil
}

// ForceIntra makes the next encoded frame an IDR. Called when the unreliable
// channel opens: the new receiver cannot decode inter frames.
func (e *VideoEncoder) ForceIntra() {
	e.forceIntra.Store(true)
}

// FrameCount returns the number of frames passed to the codec since the last
// rebuild, frames the codec skipped included.
func (e *VideoEncoder) FrameCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameCount
}

// Dimensions reports the current even-aligned output size. Zero until the
// first Encode builds the codec instance.
func (e *VideoEncoder) Dimensions() (width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width, e.height
}

// Encode converts one BGRA crop window (decimated by factor 1 or 2) into an
// H.264 access unit. Returns the bitstream and the frame counter value used
// for fragmentation ids. A frame the codec skips returns nil data.
func (e *VideoEncoder) Encode(pix []byte, stride, x, y, w, h, factor int) (data []byte, frame uint64, err error) {
	if factor < 1 {
		factor = 1
	}
	outW := EvenAlign(w / factor)
	outH := EvenAlign(h / factor)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.enc == nil || outW != e.width || outH != e.height {
		if err := e.rebuildLocked(outW, outH); err != nil {
			return nil, 0, err
		}
	}

	bgraToI420(pix, stride, x, y, w, h, factor, e.ycbcr)

	intra := e.frameCount == 0 ||
		e.frameCount%e.cfg.KeyframeInterval == 0 ||
		e.forceIntra.Swap(false)
	if intra {
		e.enc.ForceIntraFrame(true)
	}

	e.pinner.Pin(&e.ycbcr.Y[0])
	e.pinner.Pin(&e.ycbcr.Cb[0])
	e.pinner.Pin(&e.ycbcr.Cr[0])
	defer e.pinner.Unpin()

	src := openh264.SSourcePicture{
		IColorFormat: openh264.VideoFormatI420,
		IStride:      [4]int32{int32(e.ycbcr.YStride), int32(e.ycbcr.CStride), int32(e.ycbcr.CStride), 0},
		IPicWidth:    int32(e.width),
		IPicHeight:   int32(e.height),
		UiTimeStamp:  int64(e.frameCount) * 1000 / int64(e.cfg.FPS),
	}
	src.PData[0] = (*uint8)(unsafe.Pointer(&e.ycbcr.Y[0]))
	src.PData[1] = (*uint8)(unsafe.Pointer(&e.ycbcr.Cb[0]))
	src.PData[2] = (*uint8)(unsafe.Pointer(&e.ycbcr.Cr[0]))

	info := openh264.SFrameBSInfo{}
	if ret := e.enc.EncodeFrame(&src, &info); ret != openh264.CmResultSuccess {
		return nil, 0, fmt.Errorf("h264 encode failed: %d", ret)
	}

	frame = e.frameCount
	e.frameCount++

	if info.EFrameType == openh264.VideoFrameTypeSkip {
		return nil, frame, nil
	}

	for layer := 0; layer < int(info.ILayerNum); layer++ {
		li := &info.SLayerInfo[layer]
		var layerSize int32
		for _, n := range unsafe.Slice(li.PNalLengthInByte, li.INalCount) {
			layerSize += n
		}
		data = append(data, unsafe.Slice(li.PBsBuf, layerSize)...)
	}
	return data, frame, nil
}

// Close releases the codec instance.
func (e *VideoEncoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyLocked()
}

// rebuildLocked tears down any existing codec instance and creates one for
// the new output size. Resets the frame counter so the first frame is intra.
func (e *VideoEncoder) rebuildLocked(w, h int) error {
	e.destroyLocked()

	var enc *openh264.ISVCEncoder
	if ret := openh264.WelsCreateSVCEncoder(&enc); ret != 0 || enc == nil {
		return fmt.Errorf("create h264 encoder: %d", ret)
	}

	// CAMERA_VIDEO_REAL_TIME: the screen-content mode crashes on some
	// systems.
	param := openh264.SEncParamBase{
		IUsageType:     openh264.CAMERA_VIDEO_REAL_TIME,
		IPicWidth:      int32(w),
		IPicHeight:     int32(h),
		ITargetBitrate: int32(e.cfg.Bitrate),
		FMaxFrameRate:  float32(e.cfg.FPS),
	}
	if ret := enc.Initialize(&param); ret != 0 {
		openh264.WelsDestroySVCEncoder(enc)
		return fmt.Errorf("initialize h264 encoder: %d", ret)
	}

	e.enc = enc
	e.width = w
	e.height = h
	e.frameCount = 0
	e.ycbcr = image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	log.Info("h264 encoder ready", "width", w, "height", h, "bitrate", e.cfg.Bitrate)
	return nil
}

func (e *VideoEncoder) destroyLocked() {
	if e.enc != nil {
		e.enc.Uninitialize()
		openh264.WelsDestroySVCEncoder(e.enc)
		e.enc = nil
	}
}
