package approval

import (
	"context"
	"testing"
	"time"
)

func TestApprove(t *testing.T) {
	r := NewRegistry(5 * time.Second)
	got := make(chan bool, 1)

	r.OnRequest = func(req Request) {
		go func() {
			if err := r.Respond(req.ID, true); err != nil {
				t.Errorf("Respond: %v", err)
			}
		}()
	}

	go func() {
		got <- r.Submit(context.Background(), "phone", "10.0.0.5")
	}()

	select {
	case approved := <-got:
		if !approved {
			t.Fatal("expected approval")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return")
	}

	if n := len(r.Pending()); n != 0 {
		t.Fatalf("pending list not cleaned up: %d", n)
	}
}

func TestDeny(t *testing.T) {
	r := NewRegistry(5 * time.Second)
	r.OnRequest = func(req Request) {
		go r.Respond(req.ID, false)
	}
	if r.Submit(context.Background(), "phone", "10.0.0.5") {
		t.Fatal("expected denial")
	}
}

func TestTimeoutDenies(t *testing.T) {
	r := NewRegistry(50 * time.Millisecond)
	start := time.Now()
	if r.Submit(context.Background(), "phone", "10.0.0.5") {
		t.Fatal("unanswered request should be denied")
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("denied before the deadline")
	}
	if n := len(r.Pending()); n != 0 {
		t.Fatalf("pending list not cleaned up: %d", n)
	}
}

func TestPeerDisconnectAbandons(t *testing.T) {
	r := NewRegistry(10 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		done <- r.Submit(ctx, "phone", "10.0.0.5")
	}()

	// Wait until the request is visible, then drop the peer.
	deadline := time.Now().Add(time.Second)
	for len(r.Pending()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case approved := <-done:
		if approved {
			t.Fatal("abandoned request must not be approved")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after cancel")
	}
}

func TestRespondUnknownID(t *testing.T) {
	r := NewRegistry(time.Second)
	if err := r.Respond("missing", true); err == nil {
		t.Fatal("expected error for unknown request id")
	}
}

func TestPendingListsOldestFirst(t *testing.T) {
	r := NewRegistry(time.Second)
	release := make(chan struct{})
	for _, name := range []string{"a", "b"} {
		name := name
		go func() {
			<-release
			r.Submit(context.Background(), name, "10.0.0.1")
		}()
		release <- struct{}{}
		deadline := time.Now().Add(time.Second)
		for {
			reqs := r.Pending()
			if len(reqs) > 0 && reqs[len(reqs)-1].DeviceName == name {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("request %q never appeared", name)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	reqs := r.Pending()
	if len(reqs) != 2 || reqs[0].DeviceName != "a" || reqs[1].DeviceName != "b" {
		t.Fatalf("pending order = %+v", reqs)
	}
}
