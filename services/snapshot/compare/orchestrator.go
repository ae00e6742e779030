// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// =============================================================================
// Package compare orchestrates full comparison sessions.
//
// Description:
//
//	The Orchestrator composes the workspace manager, render adapter, and
//	diff engine into one session lifecycle: resolve the two inputs into
//	directories, enumerate artifacts, pre-render in the background to mask
//	navigation latency, serve on-demand renders and diffs from session
//	memory, and drain every outstanding request before the workspaces are
//	torn down. Nothing rendered or diffed survives the session.
// =============================================================================

package compare

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/kicadsnap/services/snapshot/render"
	"github.com/AleutianAI/kicadsnap/services/snapshot/rules"
	"github.com/AleutianAI/kicadsnap/services/snapshot/toolchain"
	"github.com/AleutianAI/kicadsnap/services/snapshot/workspace"
)

// preRenderWorkers bounds concurrent background exports. kicad-cli is
// memory-hungry; two at a time keeps pre-caching useful without starving
// the foreground request.
const preRenderWorkers = 2

// Renderer produces rasters for workspace artifacts. *render.Adapter is
// the production implementation.
type Renderer interface {
	Render(ctx context.Context, ws *workspace.Handle, artifact render.Artifact, scale float64) (*render.Raster, error)
}

// Orchestrator opens comparison sessions. One orchestrator serves the whole
// process; the caller's contract is at most one active session at a time.
type Orchestrator struct {
	tool      *toolchain.Handle
	renderer  Renderer
	manager   *workspace.Manager
	rules     *rules.RuleSet
	scale     float64
	preRender bool
	logger    *slog.Logger
	tracer    trace.Tracer
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithScale sets the raster scale multiplier for all session renders.
func WithScale(scale float64) OrchestratorOption {
	return func(o *Orchestrator) {
		if render.ValidScale(scale) {
			o.scale = scale
		}
	}
}

// WithWorkspaceManager supplies a shared workspace manager.
func WithWorkspaceManager(m *workspace.Manager) OrchestratorOption {
	return func(o *Orchestrator) {
		if m != nil {
			o.manager = m
		}
	}
}

// WithRules overrides the rule set used for file-level comparison.
func WithRules(rs *rules.RuleSet) OrchestratorOption {
	return func(o *Orchestrator) {
		if rs != nil {
			o.rules = rs
		}
	}
}

// WithPreRender toggles background pre-rendering. On by default; tests
// and one-shot CLI diffs turn it off.
func WithPreRender(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) { o.preRender = enabled }
}

// WithLogger sets the logger for session lifecycle events.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an Orchestrator around a validated tool handle
// and a renderer.
func NewOrchestrator(tool *toolchain.Handle, renderer Renderer, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		tool:      tool,
		renderer:  renderer,
		manager:   workspace.NewManager(),
		rules:     rules.Default(),
		scale:     1,
		preRender: true,
		logger:    slog.Default(),
		tracer:    otel.Tracer("kicadsnap/compare"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(slog.String("component", "compare"))
	return o
}

// Open resolves two inputs into an active comparison session.
//
// Description:
//
//	Materializes side A then side B; any failure releases what was
//	materialized and returns the error with no session. On success the
//	session enters Rendering with the union of both sides' artifacts and,
//	when pre-rendering is enabled, starts background renders over every
//	(side, artifact) pair under a session-scoped cancel context. The
//	session reaches Ready once pre-rendering settles; foreground requests
//	are accepted from the moment Open returns.
func (o *Orchestrator) Open(ctx context.Context, sideA, sideB workspace.Input) (*Session, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.open", trace.WithAttributes(
		attribute.String("side_a", sideA.Describe()),
		attribute.String("side_b", sideB.Describe())))
	defer span.End()

	s := &Session{
		id:       uuid.NewString(),
		scale:    o.scale,
		tracer:   o.tracer,
		manager:  o.manager,
		renderer: o.renderer,
		rules:    o.rules,
		state:    StateIdle,
		cache:    make(map[renderKey]*render.Raster),
	}
	s.logger = o.logger.With(slog.String("session_id", s.id))

	s.setState(StateResolving)
	fail := func(err error) (*Session, error) {
		for _, h := range s.handles {
			if h != nil {
				_ = o.manager.Release(h)
			}
		}
		s.setState(StateClosed)
		return nil, err
	}

	handleA, err := o.manager.Materialize(ctx, sideA)
	if err != nil {
		return fail(fmt.Errorf("resolve side A: %w", err))
	}
	s.handles[SideA] = handleA
	handleB, err := o.manager.Materialize(ctx, sideB)
	if err != nil {
		return fail(fmt.Errorf("resolve side B: %w", err))
	}
	s.handles[SideB] = handleB

	artifacts, err := o.unionArtifacts(ctx, handleA.Root(), handleB.Root())
	if err != nil {
		return fail(err)
	}
	s.artifacts = artifacts

	s.setState(StateRendering)
	sessionsOpened.Inc()
	o.logger.Info("comparison session opened",
		slog.String("session_id", s.id),
		slog.String("side_a", sideA.Describe()),
		slog.String("side_b", sideB.Describe()),
		slog.Int("artifacts", len(artifacts)))

	if o.preRender && len(artifacts) > 0 {
		o.startPreRender(s)
	} else {
		s.readyIfRendering()
	}
	return s, nil
}

// startPreRender warms the session cache in the background. Failures are
// deliberately swallowed: a pre-render error will resurface on the
// foreground request for the same artifact, where the caller can act on it.
func (o *Orchestrator) startPreRender(s *Session) {
	preCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelPre = cancel
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(preCtx)
	g.SetLimit(preRenderWorkers)
	go func() {
		for _, side := range []Side{SideA, SideB} {
			for _, artifact := range s.artifacts {
				side, artifact := side, artifact
				g.Go(func() error {
					if gctx.Err() != nil {
						return nil
					}
					if _, err := s.Render(gctx, side, artifact); err != nil {
						s.logger.Debug("pre-render skipped",
							slog.String("side", side.String()),
							slog.String("artifact", artifact.String()),
							slog.String("error", err.Error()))
					}
					return nil
				})
			}
		}
		_ = g.Wait()
		s.readyIfRendering()
	}()
}

// unionArtifacts merges both sides' artifact lists so sheets or layers
// present on only one side still get compared. Both sides enumerate under
// the orchestrator's rule set, keeping a live directory's filtered files
// (autosaves, backups) out of the comparison just as the snapshot build
// kept them out of the archive.
func (o *Orchestrator) unionArtifacts(ctx context.Context, rootA, rootB string) ([]render.Artifact, error) {
	listA, err := render.ListArtifacts(ctx, o.tool, rootA, o.rules)
	if err != nil {
		return nil, fmt.Errorf("list side A artifacts: %w", err)
	}
	listB, err := render.ListArtifacts(ctx, o.tool, rootB, o.rules)
	if err != nil {
		return nil, fmt.Errorf("list side B artifacts: %w", err)
	}

	seen := make(map[render.Artifact]bool, len(listA))
	union := make([]render.Artifact, 0, len(listA)+len(listB))
	for _, a := range append(listA, listB...) {
		if !seen[a] {
			seen[a] = true
			union = append(union, a)
		}
	}
	sort.Slice(union, func(i, j int) bool {
		if union[i].Kind != union[j].Kind {
			return union[i].Kind < union[j].Kind
		}
		return union[i].Identity < union[j].Identity
	})
	return union, nil
}
