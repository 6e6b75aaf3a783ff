// Package stream binds the frame source, capture region, encoders, and
// packetizer into a per-transport capture pipeline. Exactly one pipeline is
// fed by the frame source at any instant; the session multiplexer swaps
// pipelines when the client switches transports.
package stream

import (
	"errors"
	"log/slog"

	"github.com/screenlink/agent/internal/display"
	"github.com/screenlink/agent/internal/encode"
	"github.com/screenlink/agent/internal/logging"
	"github.com/screenlink/agent/internal/protocol"
	"github.com/screenlink/agent/internal/region"
)

// Transport selects the packet budget and codec for a pipeline.
type Transport int

const (
	// TransportReliable ships still frames over the message-framed channel.
	TransportReliable Transport = iota
	// TransportDataChannel ships H.264 over the unreliable channel, falling
	// back to bounded stills when the video codec is unavailable.
	TransportDataChannel
)

// Config assembles a pipeline.
type Config struct {
	Transport Transport
	Regions   *region.Store
	// Scale converts logical region coordinates to native pixels.
	Scale float64
	Still *encode.StillEncoder
	// Video may be nil; the still path is the correctness floor.
	Video *encode.VideoEncoder
	// Send ships one packet. Errors are logged and do not stop the stream.
	Send func(pkt []byte) error
}

type Pipeline struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}
	if cfg.Still == nil {
		cfg.Still = encode.NewStillEncoder()
	}
	return &Pipeline{
		cfg: cfg,
		log: logging.L("stream"),
	}
}

// ForceKeyframe requests an intra frame from the video encoder. No-op on the
// still path, where every frame is standalone.
func (p *Pipeline) ForceKeyframe() {
	if p.cfg.Video != nil {
		p.cfg.Video.ForceIntra()
	}
}

// HandleFrame is the display.Sink for this pipeline.
func (p *Pipeline) HandleFrame(f *display.Frame) {
	x, y, w, h := 0, 0, f.Width, f.Height
	qualityMode := region.QualityHigh
	if r, ok := p.cfg.Regions.Snapshot(); ok {
		x, y, w, h, _ = r.Crop(f.Width, f.Height, p.cfg.Scale)
		qualityMode = r.QualityMode
	}

	// Video delegates rate control to the codec; the adaptive table below is
	// still-mode only.
	if p.cfg.Transport == TransportDataChannel && p.cfg.Video != nil {
		p.handleVideo(f, x, y, w, h)
		return
	}

	logicalPixels := int(float64(w) / p.cfg.Scale * float64(h) / p.cfg.Scale)
	params := encode.AdaptiveStillParams(logicalPixels)
	if qualityMode == region.QualityLow {
		// The client is scrolling; crispness matters less than rate.
		params.Quality -= 15
		if params.Quality < 30 {
			params.Quality = 30
		}
	}
	p.handleStill(f, x, y, w, h, params)
}

func (p *Pipeline) handleVideo(f *display.Frame, x, y, w, h int) {
	data, frame, err := p.cfg.Video.Encode(f.Pix, f.Stride, x, y, w, h, 1)
	if err != nil {
		p.log.Warn("video encode failed", "error", err)
		return
	}
	if len(data) == 0 {
		return // codec skipped the frame
	}
	for _, pkt := range protocol.PacketizeVideo(data, frame, protocol.DataChannelMTU) {
		if err := p.cfg.Send(pkt); err != nil {
			p.log.Debug("video packet send failed", "error", err)
		}
	}
}

func (p *Pipeline) handleStill(f *display.Frame, x, y, w, h int, params encode.StillParams) {
	img := encode.CropRGBA(f.Pix, f.Stride, x, y, w, h)
	if params.HalfScale {
		img = encode.HalveRGBA(img)
	}

	var payload []byte
	var err error
	mtu := protocol.NoMTU
	if p.cfg.Transport == TransportDataChannel {
		mtu = protocol.DataChannelMTU
		payload, err = p.cfg.Still.EncodeBounded(img, params.Quality, encode.BoundedStillLimit)
	} else {
		payload, err = p.cfg.Still.Encode(img, params.Quality)
	}
	if err != nil {
		if errors.Is(err, encode.ErrFrameTooLarge) {
			p.log.Debug("still frame dropped, over size budget")
		} else {
			p.log.Warn("still encode failed", "error", err)
		}
		return
	}

	pkt, err := protocol.PacketizeStill(payload, mtu)
	if err != nil {
		p.log.Debug("still frame dropped", "error", err)
		return
	}
	if err := p.cfg.Send(pkt); err != nil {
		p.log.Debug("still packet send failed", "error", err)
	}
}
