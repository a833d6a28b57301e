// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/embytv/internal/capabilities"
	"github.com/ManuGH/embytv/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker struct {
	name   string
	result CheckResult
}

func (c staticChecker) Name() string                      { return c.name }
func (c staticChecker) Check(context.Context) CheckResult { return c.result }

func TestReady_AggregatesStatus(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []Status
		wantReady bool
		want      Status
	}{
		{name: "no checkers", wantReady: true, want: StatusHealthy},
		{name: "all healthy", statuses: []Status{StatusHealthy, StatusHealthy}, wantReady: true, want: StatusHealthy},
		{name: "degraded stays ready", statuses: []Status{StatusHealthy, StatusDegraded}, wantReady: true, want: StatusDegraded},
		{name: "unhealthy wins", statuses: []Status{StatusUnhealthy, StatusDegraded}, wantReady: false, want: StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("test")
			for i, s := range tt.statuses {
				m.RegisterChecker(staticChecker{name: string(rune('a' + i)), result: CheckResult{Status: s}})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.statuses))
		})
	}
}

func TestServeReady_StatusCodes(t *testing.T) {
	m := NewManager("v1")
	state := resilience.StateClosed
	m.RegisterChecker(NewBreakerChecker("emby", func() resilience.State { return state }))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	state = resilience.StateOpen
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Ready)
	assert.Equal(t, "v1", resp.Version)
	assert.Equal(t, StatusUnhealthy, resp.Checks["emby"].Status)
}

func TestBreakerChecker_HalfOpenIsDegraded(t *testing.T) {
	c := NewBreakerChecker("emby", func() resilience.State { return resilience.StateHalfOpen })
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}

func TestFileChecker(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "caps.yaml")
	require.NoError(t, os.WriteFile(full, []byte("videoCodecs: [h264]\n"), 0o600))
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	tests := []struct {
		name string
		path string
		want Status
	}{
		{name: "unset", path: "", want: StatusHealthy},
		{name: "present", path: full, want: StatusHealthy},
		{name: "missing", path: filepath.Join(dir, "nope.yaml"), want: StatusDegraded},
		{name: "empty", path: empty, want: StatusDegraded},
		{name: "directory", path: dir, want: StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewFileChecker("snapshot", tt.path).Check(context.Background())
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestCapabilitiesChecker(t *testing.T) {
	none := NewCapabilitiesChecker(capabilities.Static{})
	assert.Equal(t, StatusUnhealthy, none.Check(context.Background()).Status)

	unleveled := NewCapabilitiesChecker(capabilities.Static{VideoCodecs: []string{"h264"}})
	assert.Equal(t, StatusDegraded, unleveled.Check(context.Background()).Status)

	ok := NewCapabilitiesChecker(capabilities.Static{
		VideoCodecs: []string{"h264"},
		CodecLevels: []capabilities.CodecLevel{{Codec: "h264", MaxLevel: 51}},
	})
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)
}
