//go:build windows

package main

import "github.com/screenlink/agent/internal/approval"

// Windows has no user signals; approvals come from the UI polling endpoint.
func watchApprovalSignal(*approval.Registry) {}
