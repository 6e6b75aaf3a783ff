package protocol

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestStillPacketTag(t *testing.T) {
	pkt, err := PacketizeStill([]byte{1, 2, 3}, NoMTU)
	if err != nil {
		t.Fatal(err)
	}
	if pkt[0] != PacketStill || !bytes.Equal(pkt[1:], []byte{1, 2, 3}) {
		t.Fatalf("packet = %v", pkt)
	}
}

func TestStillPacketRejectsOversizeOnBoundedTransport(t *testing.T) {
	payload := make([]byte, DataChannelMTU)
	if _, err := PacketizeStill(payload, DataChannelMTU); err == nil {
		t.Fatal("still exceeding the MTU must be rejected")
	}
	if _, err := PacketizeStill(payload, NoMTU); err != nil {
		t.Fatalf("unlimited transport rejected still: %v", err)
	}
}

func TestVideoSingleWhenFrameFits(t *testing.T) {
	payload := make([]byte, DataChannelMTU-1)
	pkts := PacketizeVideo(payload, 7, DataChannelMTU)
	if len(pkts) != 1 {
		t.Fatalf("got %d packets, want 1", len(pkts))
	}
	if pkts[0][0] != PacketVideoSingle {
		t.Fatalf("tag = 0x%02x", pkts[0][0])
	}
}

func TestReliablePathNeverFragments(t *testing.T) {
	payload := make([]byte, 4*DataChannelMTU)
	pkts := PacketizeVideo(payload, 1, NoMTU)
	if len(pkts) != 1 || pkts[0][0] != PacketVideoSingle {
		t.Fatalf("reliable path produced %d packets, tag 0x%02x", len(pkts), pkts[0][0])
	}
}

func TestThirtyKiBFrameSplitsIntoTwoFragments(t *testing.T) {
	payload := make([]byte, 30*1024)
	pkts := PacketizeVideo(payload, 42, DataChannelMTU)
	if len(pkts) != 2 {
		t.Fatalf("got %d packets, want 2", len(pkts))
	}
	for i, pkt := range pkts {
		_, _, frag, err := ParsePacket(pkt)
		if err != nil {
			t.Fatal(err)
		}
		if pkt[0] != PacketVideoFragment {
			t.Fatalf("packet %d tag = 0x%02x", i, pkt[0])
		}
		if frag.Index != i || frag.Total != 2 || frag.FrameID != 42 {
			t.Fatalf("fragment %d header = %+v", i, frag)
		}
	}
}

func TestEveryPacketRespectsMTU(t *testing.T) {
	for _, size := range []int{1, 100, DataChannelMTU - 1, DataChannelMTU, DataChannelMTU + 1, 100 * 1024, 963 * 1024} {
		payload := make([]byte, size)
		for _, pkt := range PacketizeVideo(payload, 3, DataChannelMTU) {
			if len(pkt) > DataChannelMTU {
				t.Fatalf("size %d produced a %d-byte packet", size, len(pkt))
			}
		}
	}
}

func TestFragmentIndicesCoverRangeExactlyOnce(t *testing.T) {
	payload := make([]byte, 5*DataChannelMTU)
	pkts := PacketizeVideo(payload, 9, DataChannelMTU)
	seen := make(map[int]bool)
	total := -1
	for _, pkt := range pkts {
		_, _, frag, err := ParsePacket(pkt)
		if err != nil {
			t.Fatal(err)
		}
		if seen[frag.Index] {
			t.Fatalf("index %d emitted twice", frag.Index)
		}
		seen[frag.Index] = true
		total = frag.Total
	}
	if total < 2 {
		t.Fatalf("total = %d, want >= 2", total)
	}
	if len(seen) != total {
		t.Fatalf("covered %d of %d indices", len(seen), total)
	}
	for i := 0; i < total; i++ {
		if !seen[i] {
			t.Fatalf("index %d missing", i)
		}
	}
}

func TestPacketizeReassembleRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	chunk := DataChannelMTU - 5
	for n := 1; n <= 64; n++ {
		payload := make([]byte, chunk*n-n/2)
		rng.Read(payload)

		pkts := PacketizeVideo(payload, uint64(n), DataChannelMTU)
		if n == 1 {
			// One chunk minus slack still fits a single packet.
			kind, got, _, err := ParsePacket(pkts[0])
			if err != nil {
				t.Fatal(err)
			}
			if kind != PacketVideoSingle || !bytes.Equal(got, payload) {
				t.Fatalf("n=1 single round trip failed")
			}
			continue
		}

		// Deliver out of order.
		order := rng.Perm(len(pkts))
		r := NewReassembler()
		var out []byte
		complete := false
		for _, i := range order {
			_, _, frag, err := ParsePacket(pkts[i])
			if err != nil {
				t.Fatal(err)
			}
			if data, done := r.Add(*frag); done {
				out = data
				complete = true
			}
		}
		if !complete {
			t.Fatalf("n=%d never completed", n)
		}
		if !bytes.Equal(out, payload) {
			t.Fatalf("n=%d reassembled bytes differ", n)
		}
	}
}

func TestFrameIDWraps16Bits(t *testing.T) {
	payload := make([]byte, 2*DataChannelMTU)
	pkts := PacketizeVideo(payload, 1<<16|5, DataChannelMTU)
	_, _, frag, err := ParsePacket(pkts[0])
	if err != nil {
		t.Fatal(err)
	}
	if frag.FrameID != 5 {
		t.Fatalf("frameID = %d, want 5", frag.FrameID)
	}
}

func TestParsePacketErrors(t *testing.T) {
	if _, _, _, err := ParsePacket(nil); err == nil {
		t.Fatal("empty packet must error")
	}
	if _, _, _, err := ParsePacket([]byte{PacketVideoFragment, 0, 0}); err == nil {
		t.Fatal("short fragment must error")
	}
	if _, _, _, err := ParsePacket([]byte{0x7f, 1}); err == nil {
		t.Fatal("unknown tag must error")
	}
	if _, _, _, err := ParsePacket([]byte{PacketVideoFragment, 3, 2, 0, 0, 1}); err == nil {
		t.Fatal("index >= total must error")
	}
}
