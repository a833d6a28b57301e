// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package emby

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:    base,
		APIKey:     "secret",
		UserID:     "user-1",
		DeviceID:   "dev-1",
		Version:    "test",
		Backoff:    time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func intPtr(v int) *int { return &v }

func TestNewClient_NormalizesBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "trailing slash", in: "http://emby.local:8096/", want: "http://emby.local:8096"},
		{name: "userinfo stripped", in: "https://u:p@emby.example.com", want: "https://emby.example.com"},
		{name: "idn host", in: "http://bücher.example:8096", want: "http://xn--bcher-kva.example:8096"},
		{name: "ip host", in: "http://192.168.1.10:8096", want: "http://192.168.1.10:8096"},
		{name: "empty", in: "", wantErr: true},
		{name: "no scheme", in: "emby.local:8096", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(Options{BaseURL: tt.in})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.BaseURL())
		})
	}
}

func TestPlaybackInfo_SendsQueryAndProfile(t *testing.T) {
	srv := NewMockServer()
	defer srv.Close()
	srv.SetPlaybackInfo("item-1", PlaybackInfoResponse{
		PlaySessionID: "ps-1",
		MediaSources:  []MediaSourceInfo{{ID: "src-1", Container: "mkv"}},
	})

	c := newTestClient(t, srv.URL)
	profile := &DeviceProfile{MaxStreamingBitrate: 1000}
	resp, err := c.PlaybackInfo(context.Background(), "item-1", PlaybackInfoQuery{
		StartTimeTicks:      5 * TicksPerSecond,
		MaxStreamingBitrate: 1000,
		AudioStreamIndex:    intPtr(2),
		SubtitleStreamIndex: intPtr(-1),
	}, profile)
	require.NoError(t, err)
	assert.Equal(t, "ps-1", resp.PlaySessionID)
	require.Len(t, resp.MediaSources, 1)

	reqs := srv.PlaybackInfoRequests()
	require.Len(t, reqs, 1)
	q := reqs[0].Query
	assert.Equal(t, "user-1", q.Get("UserId"))
	assert.Equal(t, "50000000", q.Get("StartTimeTicks"))
	assert.Equal(t, "1000", q.Get("MaxStreamingBitrate"))
	assert.Equal(t, "2", q.Get("AudioStreamIndex"))
	assert.Equal(t, "-1", q.Get("SubtitleStreamIndex"))
	require.NotNil(t, reqs[0].Profile)
	assert.Equal(t, int64(1000), reqs[0].Profile.MaxStreamingBitrate)

	h := srv.Headers()[0]
	assert.Equal(t, "secret", h.Get("X-Emby-Token"))
	assert.Contains(t, h.Get("X-Emby-Authorization"), `DeviceId="dev-1"`)
}

func TestPlaybackInfo_OmitsUnsetIndices(t *testing.T) {
	srv := NewMockServer()
	defer srv.Close()
	srv.SetPlaybackInfo("item-1", PlaybackInfoResponse{})

	c := newTestClient(t, srv.URL)
	_, err := c.PlaybackInfo(context.Background(), "item-1", PlaybackInfoQuery{}, nil)
	require.NoError(t, err)

	q := srv.PlaybackInfoRequests()[0].Query
	assert.False(t, q.Has("AudioStreamIndex"))
	assert.False(t, q.Has("SubtitleStreamIndex"))
}

func TestPlaybackInfo_IsNotRetried(t *testing.T) {
	srv := NewMockServer()
	defer srv.Close()
	srv.SetPlaybackInfo("item-1", PlaybackInfoResponse{PlaySessionID: "ps"})
	srv.FailNext("/PlaybackInfo", http.StatusBadGateway)

	c := newTestClient(t, srv.URL)
	_, err := c.PlaybackInfo(context.Background(), "item-1", PlaybackInfoQuery{}, nil)
	require.ErrorIs(t, err, ErrUpstreamError)
	assert.Len(t, srv.PlaybackInfoRequests(), 1)
}

func TestSessions_RetriesServerErrors(t *testing.T) {
	srv := NewMockServer()
	defer srv.Close()
	srv.SetSessions([]SessionInfo{{ID: "s1"}})
	srv.FailNext("/Sessions", http.StatusBadGateway, http.StatusServiceUnavailable)

	c := newTestClient(t, srv.URL)
	sessions, err := c.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, srv.SessionCalls())
}

func TestPlaybackInfo_NotFoundIsNotRetried(t *testing.T) {
	srv := NewMockServer()
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.PlaybackInfo(context.Background(), "missing", PlaybackInfoQuery{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "playback_info", apiErr.Operation)
	assert.Len(t, srv.PlaybackInfoRequests(), 1)
}

func TestReports_AreNotRetried(t *testing.T) {
	srv := NewMockServer()
	defer srv.Close()
	srv.FailNext("/Sessions/Playing/Progress", http.StatusInternalServerError)

	c := newTestClient(t, srv.URL)
	err := c.ReportProgress(context.Background(), PlaybackProgressInfo{ItemID: "i"})
	assert.ErrorIs(t, err, ErrUpstreamError)
	assert.Empty(t, srv.ReportsOf("progress"))

	require.NoError(t, c.ReportStopped(context.Background(), PlaybackProgressInfo{ItemID: "i", PositionTicks: 7}))
	stopped := srv.ReportsOf("stopped")
	require.Len(t, stopped, 1)
	assert.Equal(t, int64(7), stopped[0].Info.PositionTicks)
}

func TestStopActiveEncodings_SendsPlaySession(t *testing.T) {
	srv := NewMockServer()
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.StopActiveEncodings(context.Background(), "ps-9"))
	assert.Equal(t, []string{"ps-9"}, srv.StopEncodingCalls())
}

func TestSessions_Decodes(t *testing.T) {
	srv := NewMockServer()
	defer srv.Close()
	srv.SetSessions([]SessionInfo{{ID: "s1", NowPlayingItem: &NowPlayingItem{ID: "item-1"}}})

	c := newTestClient(t, srv.URL)
	sessions, err := c.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "item-1", sessions[0].NowPlayingItem.ID)
}

func TestSubtitleURL(t *testing.T) {
	c := newTestClient(t, "http://emby.local:8096")
	got := c.SubtitleURL("item-1", "src-1", 3, "srt")
	assert.Equal(t, "http://emby.local:8096/Videos/item-1/src-1/Subtitles/3/Stream.srt?api_key=secret", got)
}

func TestAbsoluteURL(t *testing.T) {
	c := newTestClient(t, "http://emby.local:8096")

	assert.Equal(t, "http://emby.local:8096/videos/x/stream.m3u8?api_key=secret", c.AbsoluteURL("/videos/x/stream.m3u8"))
	assert.Equal(t, "http://emby.local:8096/videos/x/master.m3u8?a=1&api_key=secret", c.AbsoluteURL("/videos/x/master.m3u8?a=1"))
	assert.Equal(t, "http://cdn/x?api_key=other", c.AbsoluteURL("http://cdn/x?api_key=other"))
	assert.Equal(t, "", c.AbsoluteURL(""))
}

func TestBreaker_OpensOnRepeatedServerFaults(t *testing.T) {
	srv := NewMockServer()
	defer srv.Close()

	c, err := NewClient(Options{
		BaseURL:          srv.URL,
		MaxRetries:       -1,
		BreakerThreshold: 2,
		BreakerReset:     time.Hour,
	})
	require.NoError(t, err)

	srv.FailNext("/Sessions", 500, 500, 500)
	for i := 0; i < 2; i++ {
		_, err := c.Sessions(context.Background())
		require.ErrorIs(t, err, ErrUpstreamError)
	}

	_, err = c.Sessions(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.True(t, strings.Contains(err.Error(), "circuit breaker is open"))
	assert.Equal(t, 0, srv.SessionCalls(), "open breaker must not reach the server")
}

func TestTicksConversion(t *testing.T) {
	assert.Equal(t, int64(15*TicksPerSecond), ToTicks(15*time.Second))
	assert.Equal(t, 1500*time.Millisecond, FromTicks(15_000_000))
}
