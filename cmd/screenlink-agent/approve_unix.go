//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/screenlink/agent/internal/approval"
)

// watchApprovalSignal approves the oldest pending request on SIGUSR1 so a
// headless host can be driven without the UI.
func watchApprovalSignal(approvals *approval.Registry) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			pending := approvals.Pending()
			if len(pending) == 0 {
				continue
			}
			if err := approvals.Respond(pending[0].ID, true); err != nil {
				log.Warn("approve failed", "error", err)
			}
		}
	}()
}
