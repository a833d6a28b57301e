// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestHolder(t *testing.T, body string) (*Holder, string) {
	t.Helper()
	path := writeConfig(t, t.TempDir(), body)
	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)
	return NewHolder(cfg, l), path
}

func TestHolder_ReloadSwapsAndNotifies(t *testing.T) {
	h, path := newTestHolder(t, minimalYAML)
	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"log:\n  level: debug\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, "debug", h.Get().Log.Level)
	select {
	case got := <-ch:
		assert.Equal(t, "debug", got.Log.Level)
	default:
		t.Fatal("listener was not notified")
	}
}

func TestHolder_InvalidReloadKeepsCurrent(t *testing.T) {
	h, path := newTestHolder(t, minimalYAML)
	before := h.Get()

	require.NoError(t, os.WriteFile(path, []byte("emby:\n  baseUrl: nope\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, before, h.Get())
}

func TestHolder_ListenerNeverBlocks(t *testing.T) {
	h, _ := newTestHolder(t, minimalYAML)
	full := make(chan AppConfig) // unbuffered, nobody reading
	h.RegisterListener(full)

	done := make(chan struct{})
	go func() {
		_ = h.Reload(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reload blocked on a listener")
	}
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h, path := newTestHolder(t, minimalYAML)
	h.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.StartWatcher(ctx))

	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"api:\n  listenAddr: \":9000\"\n"), 0o600))
	require.Eventually(t, func() bool { return h.Get().API.ListenAddr == ":9000" }, 3*time.Second, 10*time.Millisecond)

	cancel()
	h.Stop()
}

func TestHolder_WatcherDisabledWithoutFile(t *testing.T) {
	t.Setenv(EnvEmbyURL, "http://emby:8096")
	t.Setenv(EnvUserID, "u")
	l := NewLoader("")
	cfg, err := l.Load()
	require.NoError(t, err)

	h := NewHolder(cfg, l)
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
