// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantOK  bool
		wantLen int
	}{
		{name: "plain", raw: "9.0.2", want: "9.0.2", wantOK: true, wantLen: 3},
		{name: "banner", raw: "KiCad Command Line Tool 8.0.4-rc1", want: "8.0.4", wantOK: true, wantLen: 3},
		{name: "two components", raw: "version 7.0", want: "7.0", wantOK: true, wantLen: 2},
		{name: "distro suffix", raw: "8.0.4-1.fc40", want: "8.0.4", wantOK: true, wantLen: 3},
		{name: "no version", raw: "command not understood", wantOK: false},
		{name: "lone integer", raw: "build 42", wantOK: false},
		{name: "empty", raw: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, text, ok := ParseVersion(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, text)
				assert.Len(t, parts, tt.wantLen)
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name string
		a, b []int
		want int
	}{
		{name: "equal", a: []int{9, 0, 2}, b: []int{9, 0, 2}, want: 0},
		{name: "missing components are zero", a: []int{9, 0}, b: []int{9, 0, 0}, want: 0},
		{name: "major wins", a: []int{9, 0}, b: []int{8, 99, 99}, want: 1},
		{name: "patch decides", a: []int{8, 0, 1}, b: []int{8, 0, 4}, want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareVersions(tt.a, tt.b))
			assert.Equal(t, -tt.want, compareVersions(tt.b, tt.a))
		})
	}
}

// fakeTool drops an executable stand-in for kicad-cli into dir.
func fakeTool(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

// testLocator returns a Locator whose probes answer from a canned map
// instead of spawning processes.
func testLocator(versions map[string]string, opts ...LocatorOption) *Locator {
	l := NewLocator(opts...)
	l.lookPath = func(string) (string, error) { return "", errors.New("not on PATH") }
	l.runProbe = func(_ context.Context, path string) (string, error) {
		out, ok := versions[path]
		if !ok {
			return "", errors.New("exec failed")
		}
		return out, nil
	}
	return l
}

func TestLocate_ConfiguredPathWins(t *testing.T) {
	dir := t.TempDir()
	oldTool := fakeTool(t, dir, "kicad-cli-old")

	l := testLocator(
		map[string]string{oldTool: "KiCad Command Line Tool 7.0.1"},
		WithConfiguredPath(oldTool),
	)
	// Discovery would find nothing anyway, but the point is that the
	// configured path is accepted without competing on version.
	h, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7.0.1", h.Version)
	assert.True(t, h.VersionKnown())
}

func TestLocate_ConfiguredPathUnparseableStillWins(t *testing.T) {
	dir := t.TempDir()
	tool := fakeTool(t, dir, "kicad-cli")

	l := testLocator(
		map[string]string{tool: "a custom build with no version banner"},
		WithConfiguredPath(tool),
	)
	h, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.False(t, h.VersionKnown())
	assert.Empty(t, h.Version)
}

func TestLocate_BrokenConfiguredFallsBackToPath(t *testing.T) {
	dir := t.TempDir()
	found := fakeTool(t, dir, "kicad-cli")

	l := testLocator(
		map[string]string{found: "9.0.2"},
		WithConfiguredPath(filepath.Join(dir, "does-not-exist")),
	)
	l.lookPath = func(name string) (string, error) {
		assert.Equal(t, "kicad-cli", name)
		return found, nil
	}

	h, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9.0.2", h.Version)
}

func TestLocate_NewestVersionWins(t *testing.T) {
	dir := t.TempDir()
	older := fakeTool(t, dir, "kicad-cli-8")
	newer := fakeTool(t, dir, "kicad-cli-9")

	l := testLocator(map[string]string{
		older: "8.0.4",
		newer: "9.0.1",
	})
	l.discover = func() []string { return []string{older, newer} }

	h, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9.0.1", h.Version)
	assert.Equal(t, newer, h.Path)
}

func TestLocate_TieKeepsDiscoveryOrder(t *testing.T) {
	dir := t.TempDir()
	first := fakeTool(t, dir, "kicad-cli-a")
	second := fakeTool(t, dir, "kicad-cli-b")

	l := testLocator(map[string]string{
		first:  "9.0.2",
		second: "9.0.2",
	})
	l.discover = func() []string { return []string{first, second} }

	h, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, h.Path)
}

func TestLocate_UnparseableDiscoveredSkipped(t *testing.T) {
	dir := t.TempDir()
	mystery := fakeTool(t, dir, "kicad-cli-mystery")
	versioned := fakeTool(t, dir, "kicad-cli-ok")

	l := testLocator(map[string]string{
		mystery:   "no banner here",
		versioned: "8.0.1",
	})
	l.discover = func() []string { return []string{mystery, versioned} }

	h, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, versioned, h.Path)
}

func TestLocate_NotFoundListsAttempts(t *testing.T) {
	dir := t.TempDir()
	broken := fakeTool(t, dir, "kicad-cli")

	l := testLocator(map[string]string{}, WithConfiguredPath(broken))
	_, err := l.Locate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Contains(t, err.Error(), broken)
}

func TestProbe_Cached(t *testing.T) {
	dir := t.TempDir()
	tool := fakeTool(t, dir, "kicad-cli")

	probes := 0
	l := NewLocator()
	l.runProbe = func(_ context.Context, path string) (string, error) {
		probes++
		return "9.0.2", nil
	}

	for i := 0; i < 3; i++ {
		h, err := l.probe(context.Background(), tool)
		require.NoError(t, err)
		assert.Equal(t, "9.0.2", h.Version)
	}
	assert.Equal(t, 1, probes)

	l.Invalidate()
	_, err := l.probe(context.Background(), tool)
	require.NoError(t, err)
	assert.Equal(t, 2, probes)
}

func TestProbe_FailureCached(t *testing.T) {
	dir := t.TempDir()
	tool := fakeTool(t, dir, "kicad-cli")

	probes := 0
	l := NewLocator()
	l.runProbe = func(context.Context, string) (string, error) {
		probes++
		return "", errors.New("segfault")
	}

	for i := 0; i < 2; i++ {
		_, err := l.probe(context.Background(), tool)
		assert.ErrorIs(t, err, ErrProbeFailed)
	}
	assert.Equal(t, 1, probes)
}

func TestProbe_RejectsDirectory(t *testing.T) {
	l := NewLocator()
	_, err := l.probe(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestSetConfiguredPath_InvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	tool := fakeTool(t, dir, "kicad-cli")

	probes := 0
	l := NewLocator()
	l.runProbe = func(context.Context, string) (string, error) {
		probes++
		return "9.0.2", nil
	}

	_, err := l.probe(context.Background(), tool)
	require.NoError(t, err)
	l.SetConfiguredPath(tool)
	_, err = l.probe(context.Background(), tool)
	require.NoError(t, err)
	assert.Equal(t, 2, probes)
}

const boardWithLayers = `(kicad_pcb (version 20240108) (generator "pcbnew")
  (layers
    (0 "F.Cu" signal)
    (31 "B.Cu" signal)
    (36 "B.SilkS" user "B.Silkscreen")
    (37 "F.SilkS" user "F.Silkscreen")
    (44 "Edge.Cuts" user)
  )
)
`

func TestDetectPCBLayers_FileScanFallback(t *testing.T) {
	dir := t.TempDir()
	board := filepath.Join(dir, "board.kicad_pcb")
	require.NoError(t, os.WriteFile(board, []byte(boardWithLayers), 0o644))

	// nil handle forces the file-scan path.
	layers, err := DetectPCBLayers(context.Background(), nil, board)
	require.NoError(t, err)
	assert.Equal(t, []string{"F.Cu", "B.Cu", "B.SilkS", "F.SilkS", "Edge.Cuts"}, layers)
}

func TestDetectPCBLayers_NoLayers(t *testing.T) {
	dir := t.TempDir()
	board := filepath.Join(dir, "board.kicad_pcb")
	require.NoError(t, os.WriteFile(board, []byte("(kicad_pcb)\n"), 0o644))

	_, err := DetectPCBLayers(context.Background(), nil, board)
	assert.ErrorIs(t, err, ErrNoLayers)
}

func TestDetectPCBLayers_MissingBoard(t *testing.T) {
	_, err := DetectPCBLayers(context.Background(), nil, filepath.Join(t.TempDir(), "missing.kicad_pcb"))
	assert.Error(t, err)
}
