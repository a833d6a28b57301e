// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package emby

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

// MockServer is a configurable Emby server for tests.
type MockServer struct {
	*httptest.Server

	mu            sync.Mutex
	playbackInfo  map[string]PlaybackInfoResponse
	sessions      [][]SessionInfo // served in order; the last entry repeats
	sessionCalls  int
	failures      map[string][]int // path -> queued status codes
	infoRequests  []RecordedPlaybackInfo
	reports       []RecordedReport
	stopEncodings []string
	headers       []http.Header
}

// RecordedPlaybackInfo is one PlaybackInfo call seen by the mock.
type RecordedPlaybackInfo struct {
	ItemID  string
	Query   url.Values
	Profile *DeviceProfile
}

// RecordedReport is one session report seen by the mock.
type RecordedReport struct {
	Event string // "playing" | "progress" | "stopped"
	Info  PlaybackProgressInfo
}

// NewMockServer starts a mock server.
func NewMockServer() *MockServer {
	m := &MockServer{
		playbackInfo: make(map[string]PlaybackInfoResponse),
		failures:     make(map[string][]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/Items/", m.handlePlaybackInfo)
	mux.HandleFunc("/Sessions/Playing", m.handleReport("playing"))
	mux.HandleFunc("/Sessions/Playing/Progress", m.handleReport("progress"))
	mux.HandleFunc("/Sessions/Playing/Stopped", m.handleReport("stopped"))
	mux.HandleFunc("/Sessions", m.handleSessions)
	mux.HandleFunc("/Videos/ActiveEncodings/Delete", m.handleStopEncodings)

	m.Server = httptest.NewServer(mux)
	return m
}

// SetPlaybackInfo configures the response for an item.
func (m *MockServer) SetPlaybackInfo(itemID string, resp PlaybackInfoResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbackInfo[itemID] = resp
}

// SetSessions configures the successive responses of GET /Sessions.
func (m *MockServer) SetSessions(responses ...[]SessionInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = responses
	m.sessionCalls = 0
}

// FailNext makes the next len(statuses) requests to path fail with the given codes.
func (m *MockServer) FailNext(path string, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = append(m.failures[path], statuses...)
}

// PlaybackInfoRequests returns the recorded negotiations.
func (m *MockServer) PlaybackInfoRequests() []RecordedPlaybackInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedPlaybackInfo(nil), m.infoRequests...)
}

// Reports returns the recorded session reports.
func (m *MockServer) Reports() []RecordedReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedReport(nil), m.reports...)
}

// ReportsOf returns the recorded reports of one event type.
func (m *MockServer) ReportsOf(event string) []RecordedReport {
	var out []RecordedReport
	for _, r := range m.Reports() {
		if r.Event == event {
			out = append(out, r)
		}
	}
	return out
}

// StopEncodingCalls returns the play session ids passed to ActiveEncodings/Delete.
func (m *MockServer) StopEncodingCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stopEncodings...)
}

// SessionCalls returns how often GET /Sessions was served.
func (m *MockServer) SessionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionCalls
}

// Headers returns the request headers seen so far.
func (m *MockServer) Headers() []http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]http.Header(nil), m.headers...)
}

// injectFailure pops a queued failure for the path. Caller holds the lock.
func (m *MockServer) injectFailure(w http.ResponseWriter, path string) bool {
	queue := m.failures[path]
	if len(queue) == 0 {
		return false
	}
	status := queue[0]
	m.failures[path] = queue[1:]
	http.Error(w, http.StatusText(status), status)
	return true
}

func (m *MockServer) handlePlaybackInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/PlaybackInfo") {
		http.NotFound(w, r)
		return
	}
	itemID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/Items/"), "/PlaybackInfo")

	var body PlaybackInfoRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	m.mu.Lock()
	m.headers = append(m.headers, r.Header.Clone())
	m.infoRequests = append(m.infoRequests, RecordedPlaybackInfo{ItemID: itemID, Query: r.URL.Query(), Profile: body.DeviceProfile})
	if m.injectFailure(w, "/PlaybackInfo") {
		m.mu.Unlock()
		return
	}
	resp, ok := m.playbackInfo[itemID]
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, resp)
}

func (m *MockServer) handleReport(event string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var info PlaybackProgressInfo
		_ = json.NewDecoder(r.Body).Decode(&info)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.headers = append(m.headers, r.Header.Clone())
		if m.injectFailure(w, r.URL.Path) {
			return
		}
		m.reports = append(m.reports, RecordedReport{Event: event, Info: info})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (m *MockServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	if m.injectFailure(w, "/Sessions") {
		m.mu.Unlock()
		return
	}
	var resp []SessionInfo
	if len(m.sessions) > 0 {
		i := m.sessionCalls
		if i >= len(m.sessions) {
			i = len(m.sessions) - 1
		}
		resp = m.sessions[i]
	}
	m.sessionCalls++
	m.mu.Unlock()

	if resp == nil {
		resp = []SessionInfo{}
	}
	writeJSON(w, resp)
}

func (m *MockServer) handleStopEncodings(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.injectFailure(w, "/Videos/ActiveEncodings/Delete") {
		return
	}
	m.stopEncodings = append(m.stopEncodings, r.URL.Query().Get("PlaySessionId"))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
