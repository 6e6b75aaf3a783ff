package protocol

import (
	"errors"
	"fmt"
	"sort"
)

// Frame packet type tags (first byte of every binary frame).
const (
	PacketStill         byte = 0x00 // standalone compressed image
	PacketVideoSingle   byte = 0x01 // whole video frame, fits the MTU
	PacketVideoFragment byte = 0x02 // video frame fragment
)

// DataChannelMTU is the payload budget per packet on the unreliable channel,
// kept under the ~16 KiB practical limit of SCTP-backed data channels.
const DataChannelMTU = 15 * 1024

// NoMTU disables fragmentation; the reliable transport is message-framed and
// carries frames of any size in a single packet.
const NoMTU = 0

// fragmentHeaderLen is tag + index + total + frame_id (2 bytes).
const fragmentHeaderLen = 5

var (
	ErrPacketTooShort = errors.New("packet too short")
	ErrOversized      = errors.New("frame exceeds transport MTU")
)

// PacketizeStill wraps a compressed still image. With a positive mtu the
// packet must fit it whole — stills are never fragmented; oversized frames
// are the encoder's problem (it shrinks or drops them).
func PacketizeStill(payload []byte, mtu int) ([]byte, error) {
	if mtu > 0 && 1+len(payload) > mtu {
		return nil, fmt.Errorf("%w: still %d bytes, mtu %d", ErrOversized, len(payload), mtu)
	}
	pkt := make([]byte, 1+len(payload))
	pkt[0] = PacketStill
	copy(pkt[1:], payload)
	return pkt, nil
}

// PacketizeVideo splits one encoded video frame into 1..N packets. frameCount
// is the encoder's frame counter; fragments carry its low 16 bits. A frame that
// fits the MTU (or an unlimited transport) is emitted as a single packet. A
// frame needing more than 255 fragments does not fit the one-byte index/total
// header and yields no packets (the frame is dropped).
func PacketizeVideo(payload []byte, frameCount uint64, mtu int) [][]byte {
	if mtu <= 0 || 1+len(payload) <= mtu {
		pkt := make([]byte, 1+len(payload))
		pkt[0] = PacketVideoSingle
		copy(pkt[1:], payload)
		return [][]byte{pkt}
	}

	frameID := uint16(frameCount)
	chunk := mtu - fragmentHeaderLen
	total := (len(payload) + chunk - 1) / chunk
	if total > 255 {
		return nil
	}
	packets := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunk
		end := start + chunk
		if end > len(payload) {
			end = len(payload)
		}
		pkt := make([]byte, fragmentHeaderLen+end-start)
		pkt[0] = PacketVideoFragment
		pkt[1] = byte(i)
		pkt[2] = byte(total)
		pkt[3] = byte(frameID >> 8)
		pkt[4] = byte(frameID)
		copy(pkt[fragmentHeaderLen:], payload[start:end])
		packets = append(packets, pkt)
	}
	return packets
}

// Fragment is one parsed video fragment.
type Fragment struct {
	Index   int
	Total   int
	FrameID uint16
	Payload []byte
}

// ParsePacket splits a binary frame into its tag and payload. frag is non-nil
// only for PacketVideoFragment.
func ParsePacket(pkt []byte) (kind byte, payload []byte, frag *Fragment, err error) {
	if len(pkt) < 1 {
		return 0, nil, nil, ErrPacketTooShort
	}
	switch pkt[0] {
	case PacketStill, PacketVideoSingle:
		return pkt[0], pkt[1:], nil, nil
	case PacketVideoFragment:
		if len(pkt) < fragmentHeaderLen {
			return 0, nil, nil, ErrPacketTooShort
		}
		f := &Fragment{
			Index:   int(pkt[1]),
			Total:   int(pkt[2]),
			FrameID: uint16(pkt[3])<<8 | uint16(pkt[4]),
			Payload: pkt[fragmentHeaderLen:],
		}
		if f.Total == 0 || f.Index >= f.Total {
			return 0, nil, nil, fmt.Errorf("invalid fragment header index=%d total=%d", f.Index, f.Total)
		}
		return pkt[0], f.Payload, f, nil
	default:
		return 0, nil, nil, fmt.Errorf("unknown packet type 0x%02x", pkt[0])
	}
}

// Reassembler rebuilds frames from fragments that may arrive out of order.
// Incomplete frames are discarded when a newer frame completes, matching the
// latest-wins semantics of the unreliable channel.
type Reassembler struct {
	frames map[uint16]map[int][]byte
	totals map[uint16]int
}

func NewReassembler() *Reassembler {
	return &Reassembler{
		frames: make(map[uint16]map[int][]byte),
		totals: make(map[uint16]int),
	}
}

// Add records a fragment. When the frame is complete it returns the payload
// bytes in index order and true.
func (r *Reassembler) Add(f Fragment) ([]byte, bool) {
	parts, ok := r.frames[f.FrameID]
	if !ok {
		parts = make(map[int][]byte)
		r.frames[f.FrameID] = parts
		r.totals[f.FrameID] = f.Total
	}
	parts[f.Index] = f.Payload

	if len(parts) < r.totals[f.FrameID] {
		return nil, false
	}

	indices := make([]int, 0, len(parts))
	for i := range parts {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var out []byte
	for _, i := range indices {
		out = append(out, parts[i]...)
	}

	// Older incomplete frames are superseded once anything newer completes.
	delete(r.frames, f.FrameID)
	delete(r.totals, f.FrameID)
	return out, true
}
