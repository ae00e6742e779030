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
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/kicadsnap/services/snapshot/archive"
	"github.com/AleutianAI/kicadsnap/services/snapshot/imgdiff"
	"github.com/AleutianAI/kicadsnap/services/snapshot/render"
	"github.com/AleutianAI/kicadsnap/services/snapshot/rules"
	"github.com/AleutianAI/kicadsnap/services/snapshot/workspace"
)

// State tracks a session through its lifecycle. Transitions only move
// forward; Closed is terminal.
type State int32

const (
	StateIdle State = iota
	StateResolving
	StateRendering
	StateReady
	StateTearingDown
	StateClosed
)

// String returns the lowercase state name used in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateRendering:
		return "rendering"
	case StateReady:
		return "ready"
	case StateTearingDown:
		return "tearing_down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Side identifies one of the two comparison inputs.
type Side int

const (
	SideA Side = iota
	SideB
)

// String implements fmt.Stringer.
func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// renderKey identifies one render request within a session. Requests with
// equal keys share a single tool invocation and a single cached result.
type renderKey struct {
	side     Side
	kind     render.Kind
	identity string
	scale    float64
}

func (k renderKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%g", k.side, k.kind, k.identity, k.scale)
}

// ArtifactDiff is the comparison outcome for one artifact.
type ArtifactDiff struct {
	Artifact render.Artifact
	Result   *imgdiff.Result
}

// FileChanges classifies the rule-matching files of the two sides.
type FileChanges struct {
	Added     []string
	Removed   []string
	Changed   []string
	Unchanged []string
}

// Session is one active comparison between two materialized inputs.
//
// Thread Safety:
//
//	All exported methods are safe for concurrent use. Render requests for
//	the same (side, artifact, scale) tuple collapse onto one tool
//	invocation; Close blocks until every outstanding request has reached
//	a terminal state before releasing the workspaces.
type Session struct {
	id       string
	scale    float64
	logger   *slog.Logger
	tracer   trace.Tracer
	manager  *workspace.Manager
	renderer Renderer
	rules    *rules.RuleSet

	handles   [2]*workspace.Handle
	artifacts []render.Artifact

	mu    sync.Mutex
	state State
	cache map[renderKey]*render.Raster

	group     singleflight.Group
	inflight  sync.WaitGroup
	cancelPre context.CancelFunc
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Scale returns the raster scale multiplier the session renders at.
func (s *Session) Scale() float64 { return s.scale }

// Artifacts returns the union of renderable artifacts across both sides,
// in stable order.
func (s *Session) Artifacts() []render.Artifact {
	out := make([]render.Artifact, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

// Root returns the materialized directory of one side.
func (s *Session) Root(side Side) string {
	return s.handles[side].Root()
}

// Render produces the raster for one artifact on one side.
//
// Description:
//
//	Idempotent within the session: a cached result is returned without
//	re-invoking the tool, and concurrent requests for the same tuple
//	attach to the single in-flight invocation. Every request holds an
//	acquisition on the side's workspace handle for its duration, so
//	teardown cannot delete the directory underneath a running export.
func (s *Session) Render(ctx context.Context, side Side, artifact render.Artifact) (*render.Raster, error) {
	ctx, span := s.tracer.Start(ctx, "session.render", trace.WithAttributes(
		attribute.String("side", side.String()),
		attribute.String("artifact", artifact.String())))
	defer span.End()

	key := renderKey{side: side, kind: artifact.Kind, identity: artifact.Identity, scale: s.scale}

	s.mu.Lock()
	if s.state != StateRendering && s.state != StateReady {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: state %s", ErrSessionClosed, s.state)
	}
	if raster, ok := s.cache[key]; ok {
		s.mu.Unlock()
		renderCacheHits.Inc()
		return raster, nil
	}
	// The acquisition is per logical request, not per tool invocation: a
	// request attached to another caller's invocation still pins the
	// workspace until it observes the result. Registering with inflight
	// happens under the same lock as the state check; once Close has
	// published TearingDown, no request can join the wait group it is
	// about to drain.
	handle := s.handles[side]
	if err := handle.Acquire(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrSessionClosed, err)
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer func() {
		handle.Done()
		s.inflight.Done()
	}()

	v, err, _ := s.group.Do(key.String(), func() (any, error) {
		s.mu.Lock()
		if raster, ok := s.cache[key]; ok {
			s.mu.Unlock()
			return raster, nil
		}
		s.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raster, err := s.renderer.Render(ctx, handle, artifact, s.scale)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.cache[key] = raster
		s.mu.Unlock()
		return raster, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*render.Raster), nil
}

// Diff compares one artifact across the two sides.
//
// Description:
//
//	Renders both sides (cache-served when warm) and runs the pixel
//	comparison. An artifact present on only one side is compared against
//	a blank white raster of the present side's dimensions, so an added or
//	removed sheet reports as different rather than failing. An artifact
//	missing on both sides is ErrArtifactMissing.
func (s *Session) Diff(ctx context.Context, artifact render.Artifact) (*ArtifactDiff, error) {
	ctx, span := s.tracer.Start(ctx, "session.diff", trace.WithAttributes(
		attribute.String("artifact", artifact.String())))
	defer span.End()

	a, errA := s.Render(ctx, SideA, artifact)
	b, errB := s.Render(ctx, SideB, artifact)

	switch {
	case errA == nil && errB == nil:
	case errA == nil && errors.Is(errB, render.ErrUnsupportedArtifact):
		b = &render.Raster{Artifact: artifact, Scale: s.scale,
			Image: render.BlankRaster(a.Image.Bounds().Dx(), a.Image.Bounds().Dy())}
	case errB == nil && errors.Is(errA, render.ErrUnsupportedArtifact):
		a = &render.Raster{Artifact: artifact, Scale: s.scale,
			Image: render.BlankRaster(b.Image.Bounds().Dx(), b.Image.Bounds().Dy())}
	case errors.Is(errA, render.ErrUnsupportedArtifact) && errors.Is(errB, render.ErrUnsupportedArtifact):
		return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, artifact)
	case errA != nil:
		return nil, errA
	default:
		return nil, errB
	}

	result := imgdiff.Diff(a.Image, b.Image)
	outcome := "unchanged"
	if result.Different {
		outcome = "changed"
	}
	diffsComputed.WithLabelValues(outcome).Inc()
	s.logger.Debug("artifact diffed",
		slog.String("artifact", artifact.String()),
		slog.Bool("different", result.Different),
		slog.Int("changed_pixels", result.ChangedPixels))
	return &ArtifactDiff{Artifact: artifact, Result: result}, nil
}

// FileMaps returns the rule-matching file contents of each side, keyed by
// relative slash path.
func (s *Session) FileMaps() (map[string][]byte, map[string][]byte, error) {
	if st := s.State(); st != StateRendering && st != StateReady {
		return nil, nil, fmt.Errorf("%w: state %s", ErrSessionClosed, st)
	}
	mapA, err := archive.DirFileMap(s.handles[SideA].Root(), s.rules)
	if err != nil {
		return nil, nil, fmt.Errorf("read side A files: %w", err)
	}
	mapB, err := archive.DirFileMap(s.handles[SideB].Root(), s.rules)
	if err != nil {
		return nil, nil, fmt.Errorf("read side B files: %w", err)
	}
	return mapA, mapB, nil
}

// CompareFiles classifies every rule-matching file as added, removed,
// changed, or unchanged between side A (before) and side B (after).
func (s *Session) CompareFiles() (*FileChanges, error) {
	mapA, mapB, err := s.FileMaps()
	if err != nil {
		return nil, err
	}

	changes := &FileChanges{}
	for path, contentA := range mapA {
		contentB, ok := mapB[path]
		switch {
		case !ok:
			changes.Removed = append(changes.Removed, path)
		case !bytes.Equal(contentA, contentB):
			changes.Changed = append(changes.Changed, path)
		default:
			changes.Unchanged = append(changes.Unchanged, path)
		}
	}
	for path := range mapB {
		if _, ok := mapA[path]; !ok {
			changes.Added = append(changes.Added, path)
		}
	}
	sort.Strings(changes.Added)
	sort.Strings(changes.Removed)
	sort.Strings(changes.Changed)
	sort.Strings(changes.Unchanged)
	return changes, nil
}

// Close tears the session down.
//
// Description:
//
//	Idempotent. Cancels background pre-rendering, waits for every
//	outstanding render request (foreground and background) to reach a
//	terminal state, then releases both workspace handles, which removes
//	any extracted temporary directories. The wait happens before release
//	so a directory is never deleted while an export still reads from it.
func (s *Session) Close(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "session.close")
	defer span.End()

	s.mu.Lock()
	if s.state == StateClosed || s.state == StateTearingDown {
		s.mu.Unlock()
		return nil
	}
	s.state = StateTearingDown
	cancel := s.cancelPre
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.inflight.Wait()

	var errs []error
	for _, h := range s.handles {
		if h == nil {
			continue
		}
		if err := s.manager.Release(h); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.state = StateClosed
	s.cache = nil
	s.mu.Unlock()

	s.logger.Info("comparison session closed", slog.String("session_id", s.id))
	return errors.Join(errs...)
}

// setState records a forward lifecycle transition.
func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// readyIfRendering advances Rendering to Ready once pre-rendering settles.
func (s *Session) readyIfRendering() {
	s.mu.Lock()
	if s.state == StateRendering {
		s.state = StateReady
	}
	s.mu.Unlock()
}
