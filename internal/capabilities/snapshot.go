// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capabilities

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	xglog "github.com/ManuGH/embytv/internal/log"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// LoadSnapshot reads a YAML capability snapshot. Unknown keys are rejected.
func LoadSnapshot(path string) (DeviceCapabilities, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied snapshot path
	if err != nil {
		return DeviceCapabilities{}, fmt.Errorf("read capability snapshot: %w", err)
	}
	var caps DeviceCapabilities
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&caps); err != nil {
		return DeviceCapabilities{}, fmt.Errorf("parse capability snapshot %s: %w", path, err)
	}
	return caps, nil
}

// WriteSnapshot writes caps atomically to path.
func WriteSnapshot(path string, caps DeviceCapabilities) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending snapshot: %w", err)
	}
	defer func() { _ = pf.Cleanup() }()

	enc := yaml.NewEncoder(pf)
	enc.SetIndent(2)
	if err := enc.Encode(caps); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// FileSource serves a snapshot file. When the file cannot be read the
// Fallback source is probed instead; with no fallback the result is empty.
type FileSource struct {
	Path     string
	Fallback Source
}

// Probe loads the snapshot.
func (f FileSource) Probe() DeviceCapabilities {
	caps, err := LoadSnapshot(f.Path)
	if err == nil {
		return caps
	}
	logger := xglog.WithComponent("capabilities")
	logger.Warn().Err(err).Str(xglog.FieldEvent, "capabilities.snapshot_unavailable").Str("path", f.Path).Msg("capability snapshot unavailable")
	if f.Fallback != nil {
		return f.Fallback.Probe()
	}
	return DeviceCapabilities{}
}
