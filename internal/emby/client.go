// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package emby is the HTTP surface of the Emby server used by the playback core.
package emby

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/embytv/internal/metrics"
	"github.com/ManuGH/embytv/internal/resilience"
	"github.com/ManuGH/embytv/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/idna"
	"golang.org/x/time/rate"
)

// Client talks to one Emby server on behalf of one user and device.
type Client struct {
	base       string
	apiKey     string
	userID     string
	deviceID   string
	deviceName string
	clientName string
	version    string

	http       *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// Options configures the client.
type Options struct {
	BaseURL    string
	APIKey     string
	UserID     string
	DeviceID   string
	DeviceName string
	ClientName string
	Version    string

	Timeout          time.Duration
	MaxRetries       int
	Backoff          time.Duration
	MaxBackoff       time.Duration
	RateLimit        rate.Limit
	RateLimitBurst   int
	BreakerThreshold int
	BreakerReset     time.Duration

	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
}

const (
	defaultTimeout        = 15 * time.Second
	defaultRetries        = 2
	defaultBackoff        = 250 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultRateLimit      = 20
	defaultRateLimitBurst = 40
	defaultClientName     = "embytv"
	defaultDeviceName     = "embytv"
)

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if strings.TrimSpace(opts.ClientName) == "" {
		opts.ClientName = defaultClientName
	}
	if strings.TrimSpace(opts.DeviceName) == "" {
		opts.DeviceName = defaultDeviceName
	}
	return opts
}

// NewClient validates the server URL and builds a client.
func NewClient(opts Options) (*Client, error) {
	base, err := normalizeBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	nopts := normalizeOptions(opts)

	transport := nopts.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		}
	}

	return &Client{
		base:       base,
		apiKey:     nopts.APIKey,
		userID:     nopts.UserID,
		deviceID:   nopts.DeviceID,
		deviceName: nopts.DeviceName,
		clientName: nopts.ClientName,
		version:    nopts.Version,
		http: &http.Client{
			Timeout:   nopts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		limiter: rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst),
		breaker: resilience.NewCircuitBreaker("emby", nopts.BreakerThreshold, nopts.BreakerReset,
			resilience.WithFailureFilter(IsServerFault)),
		maxRetries: nopts.MaxRetries,
		backoff:    nopts.Backoff,
		maxBackoff: nopts.MaxBackoff,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}, nil
}

// normalizeBaseURL trims the URL and converts an internationalised host to ASCII.
func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", fmt.Errorf("emby: base URL is empty")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("emby: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("emby: base URL must be http(s): %q", raw)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("emby: base URL has no host: %q", raw)
	}
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("emby: invalid host %q: %w", host, err)
		}
		host = ascii
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	u.User = nil
	return strings.TrimRight(u.String(), "/"), nil
}

// BaseURL returns the normalised server URL.
func (c *Client) BaseURL() string { return c.base }

// UserID returns the user the client acts for.
func (c *Client) UserID() string { return c.userID }

// DeviceID returns the device id sent in the authorization header.
func (c *Client) DeviceID() string { return c.deviceID }

// BreakerState reports the circuit guarding the server.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

// APIKey returns the access token used for side-channel URLs.
func (c *Client) APIKey() string { return c.apiKey }

// PlaybackInfo negotiates playback of itemID with the given device profile.
func (c *Client) PlaybackInfo(ctx context.Context, itemID string, q PlaybackInfoQuery, profile *DeviceProfile) (*PlaybackInfoResponse, error) {
	params := url.Values{}
	userID := q.UserID
	if userID == "" {
		userID = c.userID
	}
	params.Set("UserId", userID)
	params.Set("StartTimeTicks", strconv.FormatInt(q.StartTimeTicks, 10))
	params.Set("IsPlayback", "true")
	params.Set("AutoOpenLiveStream", "true")
	if q.MaxStreamingBitrate > 0 {
		params.Set("MaxStreamingBitrate", strconv.FormatInt(q.MaxStreamingBitrate, 10))
	}
	if q.AudioStreamIndex != nil {
		params.Set("AudioStreamIndex", strconv.Itoa(*q.AudioStreamIndex))
	}
	if q.SubtitleStreamIndex != nil {
		params.Set("SubtitleStreamIndex", strconv.Itoa(*q.SubtitleStreamIndex))
	}
	if q.MediaSourceID != "" {
		params.Set("MediaSourceId", q.MediaSourceID)
	}

	var out PlaybackInfoResponse
	path := "/Items/" + url.PathEscape(itemID) + "/PlaybackInfo"
	if err := c.do(ctx, "playback_info", http.MethodPost, path, params, PlaybackInfoRequest{DeviceProfile: profile}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportPlaying sends the session start event.
func (c *Client) ReportPlaying(ctx context.Context, info PlaybackProgressInfo) error {
	return c.do(ctx, "report_playing", http.MethodPost, "/Sessions/Playing", nil, info, nil, false)
}

// ReportProgress sends a periodic heartbeat.
func (c *Client) ReportProgress(ctx context.Context, info PlaybackProgressInfo) error {
	return c.do(ctx, "report_progress", http.MethodPost, "/Sessions/Playing/Progress", nil, info, nil, false)
}

// ReportStopped sends the session end event.
func (c *Client) ReportStopped(ctx context.Context, info PlaybackProgressInfo) error {
	return c.do(ctx, "report_stopped", http.MethodPost, "/Sessions/Playing/Stopped", nil, info, nil, false)
}

// Sessions lists the server's active sessions.
func (c *Client) Sessions(ctx context.Context) ([]SessionInfo, error) {
	params := url.Values{}
	params.Set("ActiveWithinSeconds", "960")
	var out []SessionInfo
	if err := c.do(ctx, "sessions", http.MethodGet, "/Sessions", params, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// StopActiveEncodings asks the server to kill the transcode of a play session.
func (c *Client) StopActiveEncodings(ctx context.Context, playSessionID string) error {
	params := url.Values{}
	params.Set("PlaySessionId", playSessionID)
	if c.deviceID != "" {
		params.Set("DeviceId", c.deviceID)
	}
	return c.do(ctx, "stop_encodings", http.MethodPost, "/Videos/ActiveEncodings/Delete", params, nil, nil, false)
}

// SubtitleURL builds the side-channel URL of an external subtitle stream.
func (c *Client) SubtitleURL(itemID, mediaSourceID string, index int, format string) string {
	u := fmt.Sprintf("%s/Videos/%s/%s/Subtitles/%d/Stream.%s",
		c.base, url.PathEscape(itemID), url.PathEscape(mediaSourceID), index, format)
	if c.apiKey != "" {
		u += "?api_key=" + url.QueryEscape(c.apiKey)
	}
	return u
}

// AbsoluteURL resolves a server-relative stream URL and makes sure it carries
// the access token the player needs.
func (c *Client) AbsoluteURL(raw string) string {
	if raw == "" {
		return ""
	}
	out := raw
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		if !strings.HasPrefix(raw, "/") {
			out = "/" + raw
		}
		out = c.base + out
	}
	if c.apiKey != "" && !strings.Contains(strings.ToLower(out), "api_key=") {
		sep := "?"
		if strings.Contains(out, "?") {
			sep = "&"
		}
		out += sep + "api_key=" + url.QueryEscape(c.apiKey)
	}
	return out
}

func (c *Client) authorizationHeader() string {
	return fmt.Sprintf(`MediaBrowser Client="%s", Device="%s", DeviceId="%s", Version="%s"`,
		c.clientName, c.deviceName, c.deviceID, c.version)
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Emby-Authorization", c.authorizationHeader())
	if c.apiKey != "" {
		req.Header.Set("X-Emby-Token", c.apiKey)
	}
}

// do runs one API operation through the breaker, limiter and retry loop.
// Only retryable operations are repeated, and only on server faults.
func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, body, out any, retryable bool) error {
	ctx, span := telemetry.Tracer("embytv.emby").Start(ctx, "emby."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)
	defer span.End()

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("emby: %s: encode body: %w", op, err)
		}
		payload = b
	}

	rawURL := c.base + path
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}

	attempts := 1
	if retryable {
		attempts += c.maxRetries
	}

	err := c.breaker.Execute(func() error {
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			lastErr = c.attempt(ctx, op, method, rawURL, payload, out)
			if lastErr == nil || !IsServerFault(lastErr) || attempt == attempts {
				return lastErr
			}
			if err := sleepWithContext(ctx, c.backoffFor(attempt-1)); err != nil {
				return lastErr
			}
		}
		return lastErr
	})

	outcome := "ok"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		outcome = "circuit_open"
		err = &APIError{Sentinel: ErrUpstreamUnavailable, Operation: op, Err: err}
	case err != nil:
		outcome = "error"
	}
	metrics.UpstreamRequestTotal.WithLabelValues(op, outcome).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (c *Client) attempt(ctx context.Context, op, method, rawURL string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Sentinel: classifyTransport(err), Operation: op, Err: err}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	c.applyHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Sentinel: classifyTransport(err), Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if sentinel := classifyStatus(resp.StatusCode); sentinel != nil {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{
			Sentinel:  sentinel,
			Operation: op,
			Status:    resp.StatusCode,
			Body:      strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) backoffFor(retry int) time.Duration {
	d := c.backoff << retry
	if d > c.maxBackoff || d <= 0 {
		d = c.maxBackoff
	}
	c.mu.Lock()
	jitter := time.Duration(c.rnd.Int63n(int64(d)/2 + 1))
	c.mu.Unlock()
	return d/2 + jitter
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
