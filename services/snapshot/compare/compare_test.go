// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compare

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kicadsnap/services/snapshot/archive"
	"github.com/AleutianAI/kicadsnap/services/snapshot/render"
	"github.com/AleutianAI/kicadsnap/services/snapshot/workspace"
)

// fakeRenderer satisfies Renderer without spawning kicad-cli. Results are
// keyed by workspace root and artifact so tests can vary content per side.
type fakeRenderer struct {
	mu      sync.Mutex
	calls   map[string]int
	delay   time.Duration
	missing map[string]bool
	images  map[string]*image.RGBA
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		calls:   make(map[string]int),
		missing: make(map[string]bool),
		images:  make(map[string]*image.RGBA),
	}
}

func rkey(root string, artifact render.Artifact) string {
	return root + "|" + artifact.String()
}

func (f *fakeRenderer) Render(ctx context.Context, ws *workspace.Handle, artifact render.Artifact, scale float64) (*render.Raster, error) {
	key := rkey(ws.Root(), artifact)
	f.mu.Lock()
	f.calls[key]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	// The workspace must still exist while a render runs.
	if _, err := os.Stat(ws.Root()); err != nil {
		return nil, fmt.Errorf("workspace vanished mid-render: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[key] {
		return nil, fmt.Errorf("%w: fixture", render.ErrUnsupportedArtifact)
	}
	img, ok := f.images[key]
	if !ok {
		img = solid(32, 24, color.RGBA{255, 255, 255, 255})
	}
	return &render.Raster{Artifact: artifact, Scale: scale, Image: img}, nil
}

func (f *fakeRenderer) callCount(root string, artifact render.Artifact) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rkey(root, artifact)]
}

func (f *fakeRenderer) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func projectDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

var sheetOnly = map[string]string{
	"board.kicad_sch": "(kicad_sch (rev 1))",
	"board.kicad_pro": "{}",
}

func openSession(t *testing.T, fr *fakeRenderer, filesA, filesB map[string]string, opts ...OrchestratorOption) *Session {
	t.Helper()
	dirA := projectDir(t, filesA)
	dirB := projectDir(t, filesB)
	opts = append([]OrchestratorOption{WithPreRender(false)}, opts...)
	o := NewOrchestrator(nil, fr, opts...)
	s, err := o.Open(context.Background(), workspace.DirInput{Path: dirA}, workspace.DirInput{Path: dirB})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestOpen_ResolvesBothSides(t *testing.T) {
	s := openSession(t, newFakeRenderer(), sheetOnly, sheetOnly)
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, []render.Artifact{
		{Kind: render.KindSchematicSheet, Identity: "board.kicad_sch"},
	}, s.Artifacts())
	assert.NotEmpty(t, s.ID())
}

func TestOpen_UnionIncludesOneSidedArtifacts(t *testing.T) {
	filesB := map[string]string{
		"board.kicad_sch": "(kicad_sch)",
		"extra.kicad_sch": "(kicad_sch)",
	}
	s := openSession(t, newFakeRenderer(), sheetOnly, filesB)
	assert.Equal(t, []render.Artifact{
		{Kind: render.KindSchematicSheet, Identity: "board.kicad_sch"},
		{Kind: render.KindSchematicSheet, Identity: "extra.kicad_sch"},
	}, s.Artifacts())
}

func TestOpen_BadSideReleasesTheOther(t *testing.T) {
	dirA := projectDir(t, sheetOnly)
	o := NewOrchestrator(nil, newFakeRenderer(), WithPreRender(false))
	_, err := o.Open(context.Background(),
		workspace.DirInput{Path: dirA},
		workspace.ArchiveInput{Path: filepath.Join(dirA, "missing.zip")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "side B")
}

func TestRender_SecondRequestServedFromCache(t *testing.T) {
	fr := newFakeRenderer()
	s := openSession(t, fr, sheetOnly, sheetOnly)
	artifact := s.Artifacts()[0]

	first, err := s.Render(context.Background(), SideA, artifact)
	require.NoError(t, err)
	second, err := s.Render(context.Background(), SideA, artifact)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, fr.callCount(s.Root(SideA), artifact))
}

func TestRender_ConcurrentRequestsCollapse(t *testing.T) {
	fr := newFakeRenderer()
	fr.delay = 50 * time.Millisecond
	s := openSession(t, fr, sheetOnly, sheetOnly)
	artifact := s.Artifacts()[0]

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*render.Raster, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.Render(context.Background(), SideB, artifact)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, fr.callCount(s.Root(SideB), artifact),
		"concurrent same-tuple requests must share one invocation")
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestDiff_ReportsChangedSheet(t *testing.T) {
	fr := newFakeRenderer()
	s := openSession(t, fr, sheetOnly, sheetOnly)
	artifact := s.Artifacts()[0]

	fr.mu.Lock()
	fr.images[rkey(s.Root(SideB), artifact)] = solid(32, 24, color.RGBA{0, 0, 0, 255})
	fr.mu.Unlock()

	d, err := s.Diff(context.Background(), artifact)
	require.NoError(t, err)
	assert.True(t, d.Result.Different)
	assert.Equal(t, 32*24, d.Result.ChangedPixels)
}

func TestDiff_IdenticalSidesUnchanged(t *testing.T) {
	s := openSession(t, newFakeRenderer(), sheetOnly, sheetOnly)
	d, err := s.Diff(context.Background(), s.Artifacts()[0])
	require.NoError(t, err)
	assert.False(t, d.Result.Different)
	assert.Zero(t, d.Result.ChangedPixels)
}

func TestDiff_MissingSideComparesAgainstBlank(t *testing.T) {
	fr := newFakeRenderer()
	filesB := map[string]string{
		"board.kicad_sch": "(kicad_sch)",
		"extra.kicad_sch": "(kicad_sch)",
	}
	s := openSession(t, fr, sheetOnly, filesB)
	extra := render.Artifact{Kind: render.KindSchematicSheet, Identity: "extra.kicad_sch"}

	fr.mu.Lock()
	fr.missing[rkey(s.Root(SideA), extra)] = true
	fr.images[rkey(s.Root(SideB), extra)] = solid(32, 24, color.RGBA{0, 0, 0, 255})
	fr.mu.Unlock()

	d, err := s.Diff(context.Background(), extra)
	require.NoError(t, err)
	assert.True(t, d.Result.Different, "sheet present on one side only must read as different")
}

func TestDiff_MissingBothSides(t *testing.T) {
	fr := newFakeRenderer()
	s := openSession(t, fr, sheetOnly, sheetOnly)
	artifact := s.Artifacts()[0]

	fr.mu.Lock()
	fr.missing[rkey(s.Root(SideA), artifact)] = true
	fr.missing[rkey(s.Root(SideB), artifact)] = true
	fr.mu.Unlock()

	_, err := s.Diff(context.Background(), artifact)
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestCompareFiles(t *testing.T) {
	filesA := map[string]string{
		"board.kicad_sch": "(kicad_sch (rev 1))",
		"board.kicad_pro": "{}",
		"old.kicad_sym":   "(sym)",
	}
	filesB := map[string]string{
		"board.kicad_sch": "(kicad_sch (rev 2))",
		"board.kicad_pro": "{}",
		"new.kicad_mod":   "(mod)",
	}
	s := openSession(t, newFakeRenderer(), filesA, filesB)

	changes, err := s.CompareFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"new.kicad_mod"}, changes.Added)
	assert.Equal(t, []string{"old.kicad_sym"}, changes.Removed)
	assert.Equal(t, []string{"board.kicad_sch"}, changes.Changed)
	assert.Equal(t, []string{"board.kicad_pro"}, changes.Unchanged)
}

func TestClose_DrainsOutstandingRenders(t *testing.T) {
	fr := newFakeRenderer()
	fr.delay = 100 * time.Millisecond
	s := openSession(t, fr, sheetOnly, sheetOnly)
	artifact := s.Artifacts()[0]

	renderDone := make(chan error, 1)
	go func() {
		_, err := s.Render(context.Background(), SideA, artifact)
		renderDone <- err
	}()

	// Let the render start before tearing down.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, StateClosed, s.State())

	// The fake renderer stats the workspace mid-render, so a successful
	// render here proves the directory outlived the outstanding work.
	select {
	case err := <-renderDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("render never finished")
	}
}

func TestClose_ConcurrentWithNewRenderRequests(t *testing.T) {
	files := map[string]string{
		"a.kicad_sch": "(kicad_sch)",
		"b.kicad_sch": "(kicad_sch)",
		"c.kicad_sch": "(kicad_sch)",
		"d.kicad_sch": "(kicad_sch)",
	}
	fr := newFakeRenderer()
	fr.delay = 5 * time.Millisecond
	s := openSession(t, fr, files, files)
	artifacts := s.Artifacts()

	// Requests keep arriving while teardown runs; each must either
	// complete against a live workspace or be rejected, and none may
	// register after the drain has begun.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; ; j++ {
				artifact := artifacts[(n+j)%len(artifacts)]
				_, err := s.Render(context.Background(), Side(j%2), artifact)
				if err != nil {
					assert.ErrorIs(t, err, ErrSessionClosed)
					return
				}
			}
		}(i)
	}

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, s.Close(context.Background()))
	wg.Wait()
	assert.Equal(t, StateClosed, s.State())
}

func TestRender_AfterCloseRejected(t *testing.T) {
	s := openSession(t, newFakeRenderer(), sheetOnly, sheetOnly)
	artifact := s.Artifacts()[0]
	require.NoError(t, s.Close(context.Background()))

	_, err := s.Render(context.Background(), SideA, artifact)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, _, err = s.FileMaps()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestClose_Idempotent(t *testing.T) {
	s := openSession(t, newFakeRenderer(), sheetOnly, sheetOnly)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, StateClosed, s.State())
}

func TestPreRender_WarmsCache(t *testing.T) {
	fr := newFakeRenderer()
	dirA := projectDir(t, sheetOnly)
	dirB := projectDir(t, sheetOnly)
	o := NewOrchestrator(nil, fr, WithPreRender(true))
	s, err := o.Open(context.Background(), workspace.DirInput{Path: dirA}, workspace.DirInput{Path: dirB})
	require.NoError(t, err)
	defer s.Close(context.Background())

	// One artifact, two sides.
	assert.Eventually(t, func() bool {
		return s.State() == StateReady && fr.totalCalls() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// A foreground request after warm-up costs no new invocation.
	_, err = s.Render(context.Background(), SideA, s.Artifacts()[0])
	require.NoError(t, err)
	assert.Equal(t, 2, fr.totalCalls())
}

func TestClose_CancelsPreRender(t *testing.T) {
	fr := newFakeRenderer()
	fr.delay = 200 * time.Millisecond
	files := map[string]string{
		"a.kicad_sch": "(kicad_sch)",
		"b.kicad_sch": "(kicad_sch)",
		"c.kicad_sch": "(kicad_sch)",
		"d.kicad_sch": "(kicad_sch)",
	}
	dirA := projectDir(t, files)
	dirB := projectDir(t, files)
	o := NewOrchestrator(nil, fr, WithPreRender(true))
	s, err := o.Open(context.Background(), workspace.DirInput{Path: dirA}, workspace.DirInput{Path: dirB})
	require.NoError(t, err)

	// Close while pre-rendering is still in flight; it must return cleanly
	// with every outstanding request drained, not hang or panic.
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, StateClosed, s.State())
	for _, h := range s.handles {
		assert.Zero(t, h.Outstanding())
	}
}

// contentRenderer derives the raster from the sheet file's bytes, so two
// archives differing in one sheet produce differing rasters for exactly
// that sheet.
type contentRenderer struct{}

func (contentRenderer) Render(_ context.Context, ws *workspace.Handle, artifact render.Artifact, scale float64) (*render.Raster, error) {
	data, err := os.ReadFile(filepath.Join(ws.Root(), filepath.FromSlash(artifact.Identity)))
	if err != nil {
		return nil, render.ErrUnsupportedArtifact
	}
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return &render.Raster{Artifact: artifact, Scale: scale,
		Image: solid(16, 16, color.RGBA{sum, sum, sum, 255})}, nil
}

func buildArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := projectDir(t, files)
	dest := filepath.Join(t.TempDir(), "snap.zip")
	_, err := archive.NewBuilder(nil, nil).Build(context.Background(), dir, dest)
	require.NoError(t, err)
	return dest
}

func TestArchiveVsArchive_OneSheetEdited(t *testing.T) {
	zipA := buildArchive(t, map[string]string{
		"main.kicad_sch":  "(kicad_sch (wire 1))",
		"power.kicad_sch": "(kicad_sch (stable))",
	})
	zipB := buildArchive(t, map[string]string{
		"main.kicad_sch":  "(kicad_sch (wire 1) (wire 2))",
		"power.kicad_sch": "(kicad_sch (stable))",
	})

	o := NewOrchestrator(nil, contentRenderer{}, WithPreRender(false))
	s, err := o.Open(context.Background(), workspace.ArchiveInput{Path: zipA}, workspace.ArchiveInput{Path: zipB})
	require.NoError(t, err)
	defer s.Close(context.Background())

	verdicts := make(map[string]bool)
	for _, artifact := range s.Artifacts() {
		d, err := s.Diff(context.Background(), artifact)
		require.NoError(t, err)
		verdicts[artifact.Identity] = d.Result.Different
	}
	assert.Equal(t, map[string]bool{
		"main.kicad_sch":  true,
		"power.kicad_sch": false,
	}, verdicts)

	// Extracted workspaces are removed once the session closes.
	rootA, rootB := s.Root(SideA), s.Root(SideB)
	require.NoError(t, s.Close(context.Background()))
	_, errA := os.Stat(rootA)
	_, errB := os.Stat(rootB)
	assert.True(t, os.IsNotExist(errA))
	assert.True(t, os.IsNotExist(errB))
}

func TestLiveVsOwnArchive_AutosaveNotCompared(t *testing.T) {
	live := projectDir(t, map[string]string{
		"board.kicad_sch":           "(kicad_sch (wire 1))",
		"_autosave-board.kicad_sch": "(kicad_sch (half-written edit))",
	})
	dest := filepath.Join(t.TempDir(), "snap.zip")
	_, err := archive.NewBuilder(nil, nil).Build(context.Background(), live, dest)
	require.NoError(t, err)

	o := NewOrchestrator(nil, contentRenderer{}, WithPreRender(false))
	s, err := o.Open(context.Background(), workspace.DirInput{Path: live}, workspace.ArchiveInput{Path: dest})
	require.NoError(t, err)
	defer s.Close(context.Background())

	// The autosave copy is filtered out of the archive, so it must be
	// filtered out of enumeration too; otherwise an untouched project
	// reports a phantom difference against its own snapshot.
	require.Equal(t, []render.Artifact{
		{Kind: render.KindSchematicSheet, Identity: "board.kicad_sch"},
	}, s.Artifacts())

	d, err := s.Diff(context.Background(), s.Artifacts()[0])
	require.NoError(t, err)
	assert.False(t, d.Result.Different)
	assert.Zero(t, d.Result.ChangedPixels)
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateIdle:        "idle",
		StateResolving:   "resolving",
		StateRendering:   "rendering",
		StateReady:       "ready",
		StateTearingDown: "tearing_down",
		StateClosed:      "closed",
		State(42):        "unknown",
	} {
		assert.Equal(t, want, state.String())
	}
}
