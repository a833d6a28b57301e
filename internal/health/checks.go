// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"os"

	"github.com/ManuGH/embytv/internal/capabilities"
	"github.com/ManuGH/embytv/internal/resilience"
)

// FileChecker checks if a file exists and is readable
type FileChecker struct {
	name string
	path string
}

func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path}
}

func (c *FileChecker) Name() string { return c.name }

func (c *FileChecker) Check(context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}

	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			// the snapshot is optional when a probe fallback exists
			return CheckResult{Status: StatusDegraded, Error: "file not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected file, got directory"}
	}
	if info.Size() == 0 {
		return CheckResult{Status: StatusDegraded, Message: "file is empty"}
	}
	return CheckResult{Status: StatusHealthy, Message: "file exists and readable"}
}

// BreakerChecker reports the circuit guarding the media server.
type BreakerChecker struct {
	name  string
	state func() resilience.State
}

func NewBreakerChecker(name string, state func() resilience.State) *BreakerChecker {
	return &BreakerChecker{name: name, state: state}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch s := c.state(); s {
	case resilience.StateOpen:
		return CheckResult{Status: StatusUnhealthy, Message: "circuit open"}
	case resilience.StateHalfOpen:
		return CheckResult{Status: StatusDegraded, Message: "circuit half-open"}
	default:
		return CheckResult{Status: StatusHealthy, Message: "circuit " + string(s)}
	}
}

// CapabilitiesChecker requires at least one usable video decoder.
type CapabilitiesChecker struct {
	src capabilities.Source
}

func NewCapabilitiesChecker(src capabilities.Source) *CapabilitiesChecker {
	return &CapabilitiesChecker{src: src}
}

func (c *CapabilitiesChecker) Name() string { return "capabilities" }

func (c *CapabilitiesChecker) Check(context.Context) CheckResult {
	caps := c.src.Probe()
	switch {
	case len(caps.VideoCodecs) == 0:
		return CheckResult{Status: StatusUnhealthy, Error: "no video decoders"}
	case caps.H264Level() <= 0:
		return CheckResult{Status: StatusDegraded, Message: "h264 level unknown, advertising compatibility level"}
	default:
		return CheckResult{Status: StatusHealthy}
	}
}
