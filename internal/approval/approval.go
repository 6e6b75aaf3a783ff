// Package approval implements the user-consent step that gates frame
// delivery for non-external sessions.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/screenlink/agent/internal/logging"
)

var log = logging.L("approval")

// DefaultTimeout is applied when a registry is created with no timeout.
// An unanswered request is denied when it expires.
const DefaultTimeout = 30 * time.Second

// Request is a pending connection awaiting a user decision.
type Request struct {
	ID         string `json:"request_id"`
	DeviceName string `json:"device_name"`
	RemoteIP   string `json:"ip_address"`
}

// Registry tracks pending approval requests. Decisions arrive through
// Respond (from the UI) and are delivered to the waiting session via a
// one-shot channel keyed by request id. Both a push callback and a polling
// accessor are exposed; the polling list is the source of truth.
type Registry struct {
	mu      sync.Mutex
	pending map[string]chan bool
	order   []Request
	timeout time.Duration

	// OnRequest, when set, is invoked for each new request (UI push path).
	OnRequest func(Request)
}

func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		pending: make(map[string]chan bool),
		timeout: timeout,
	}
}

// Submit registers a request and blocks until the user decides, the timeout
// expires, or ctx is cancelled (peer gone). Timeout and cancellation both
// count as denial. Exactly one outcome is observed per request.
func (r *Registry) Submit(ctx context.Context, deviceName, remoteIP string) bool {
	req := Request{
		ID:         uuid.NewString(),
		DeviceName: deviceName,
		RemoteIP:   remoteIP,
	}
	decision := make(chan bool, 1)

	r.mu.Lock()
	r.pending[req.ID] = decision
	r.order = append(r.order, req)
	onRequest := r.OnRequest
	r.mu.Unlock()

	log.Info("approval requested", "request", req.ID, "device", deviceName, "ip", remoteIP)
	if onRequest != nil {
		onRequest(req)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	approved := false
	select {
	case approved = <-decision:
	case <-timer.C:
		log.Info("approval timed out", "request", req.ID)
	case <-ctx.Done():
		log.Info("approval abandoned, peer gone", "request", req.ID)
	}

	r.remove(req.ID)
	return approved
}

// Respond resolves a pending request. Unknown ids return an error (the
// request may have timed out or the peer disconnected).
func (r *Registry) Respond(requestID string, approved bool) error {
	r.mu.Lock()
	decision, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
	}
	r.removeLocked(requestID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("approval request %s not found", requestID)
	}
	decision <- approved
	return nil
}

// Pending returns the requests still awaiting a decision, oldest first.
func (r *Registry) Pending() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Request, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) remove(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, requestID)
	r.removeLocked(requestID)
}

func (r *Registry) removeLocked(requestID string) {
	for i, req := range r.order {
		if req.ID == requestID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
