package server

import "testing"

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := newFrameBroadcast()
	a := make(chan []byte, subscriberBuffer)
	c := make(chan []byte, subscriberBuffer)
	b.Subscribe(a)
	b.Subscribe(c)

	b.Publish([]byte{1})

	if got := <-a; got[0] != 1 {
		t.Fatalf("a got %v", got)
	}
	if got := <-c; got[0] != 1 {
		t.Fatalf("c got %v", got)
	}
}

func TestBroadcastDropsOldestForSlowReader(t *testing.T) {
	b := newFrameBroadcast()
	ch := make(chan []byte, subscriberBuffer)
	b.Subscribe(ch)

	b.Publish([]byte{1})
	b.Publish([]byte{2})
	b.Publish([]byte{3}) // buffer is 2: frame 1 is displaced

	first := <-ch
	second := <-ch
	if first[0] != 2 || second[0] != 3 {
		t.Fatalf("got %d,%d want 2,3", first[0], second[0])
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra frame %v", extra)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newFrameBroadcast()
	ch := make(chan []byte, subscriberBuffer)
	b.Subscribe(ch)
	b.Unsubscribe(ch)

	if n := b.Subscribers(); n != 0 {
		t.Fatalf("subscribers = %d", n)
	}
	b.Publish([]byte{9})
	select {
	case pkt := <-ch:
		t.Fatalf("delivered after unsubscribe: %v", pkt)
	default:
	}
}
