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
// Package render converts design files into rasters via kicad-cli.
//
// Description:
//
//	The Adapter drives two kicad-cli export modes: schematic-sheet SVG
//	export and layer-scoped board SVG export. The exported vector is then
//	rasterized in-process at the requested scale. Export failures carry
//	the captured tool output and are never retried here; the caller
//	decides whether a retry makes sense.
//
// Thread Safety:
//
//	Adapter is stateless apart from its configuration and safe for
//	concurrent Render calls. Each call works in its own temporary output
//	directory.
// =============================================================================

package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/kicadsnap/services/snapshot/rules"
	"github.com/AleutianAI/kicadsnap/services/snapshot/toolchain"
	"github.com/AleutianAI/kicadsnap/services/snapshot/workspace"
)

// defaultRenderTimeout bounds one kicad-cli export. Large boards can take
// tens of seconds to export; beyond this the process is considered hung.
const defaultRenderTimeout = 40 * time.Second

// Adapter renders workspace artifacts through a validated kicad-cli.
type Adapter struct {
	tool    *toolchain.Handle
	timeout time.Duration
	logger  *slog.Logger
	rules   *rules.RuleSet

	// runTool is replaceable for tests; the default spawns kicad-cli.
	runTool func(ctx context.Context, args []string) (string, error)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout overrides the per-export timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger used for export diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRules sets the rule set used when locating the board file. It should
// match the rule set the comparison session enumerates artifacts with.
func WithRules(rs *rules.RuleSet) Option {
	return func(a *Adapter) {
		if rs != nil {
			a.rules = rs
		}
	}
}

// NewAdapter creates an Adapter bound to a validated tool handle.
func NewAdapter(tool *toolchain.Handle, opts ...Option) *Adapter {
	a := &Adapter{
		tool:    tool,
		timeout: defaultRenderTimeout,
		logger:  slog.Default(),
		rules:   rules.Default(),
	}
	a.runTool = a.execTool
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("component", "render"))
	return a
}

// Render produces a raster for one artifact of a workspace.
//
// Description:
//
//	Exports the artifact to SVG with kicad-cli, then rasterizes at the
//	given scale over a white background. A missing source file or unknown
//	artifact kind yields ErrUnsupportedArtifact; a failed export yields
//	ErrToolInvocation with the captured tool output.
//
// Thread Safety: safe for concurrent use.
func (a *Adapter) Render(ctx context.Context, ws *workspace.Handle, artifact Artifact, scale float64) (*Raster, error) {
	start := time.Now()
	kind := artifact.Kind.String()

	svg, err := a.exportSVG(ctx, ws.Root(), artifact)
	if err != nil {
		renderInvocations.WithLabelValues(kind, "error").Inc()
		return nil, err
	}
	img, err := RasterizeSVG(svg, scale)
	if err != nil {
		renderInvocations.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("rasterize %s: %w", artifact, err)
	}

	renderInvocations.WithLabelValues(kind, "ok").Inc()
	renderDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	a.logger.Debug("rendered artifact",
		slog.String("artifact", artifact.String()),
		slog.Float64("scale", scale),
		slog.Int("width", img.Bounds().Dx()),
		slog.Int("height", img.Bounds().Dy()),
		slog.Duration("elapsed", time.Since(start)))
	return &Raster{Artifact: artifact, Scale: scale, Image: img}, nil
}

func (a *Adapter) exportSVG(ctx context.Context, root string, artifact Artifact) ([]byte, error) {
	switch artifact.Kind {
	case KindSchematicSheet:
		return a.exportSheet(ctx, root, artifact.Identity)
	case KindPCBLayer:
		return a.exportLayer(ctx, root, artifact.Identity)
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnsupportedArtifact, artifact.Kind)
	}
}

// exportSheet runs `kicad-cli sch export svg <sheet> -o <dir>` and returns
// the produced document. The export writes one SVG per sheet in the file;
// the one named after the source file is preferred.
func (a *Adapter) exportSheet(ctx context.Context, root, identity string) ([]byte, error) {
	src := filepath.Join(root, filepath.FromSlash(identity))
	if info, err := os.Stat(src); err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: schematic sheet %q", ErrUnsupportedArtifact, identity)
	}

	outDir, err := os.MkdirTemp("", "kicadsnap-svg-*")
	if err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	if _, err := a.invoke(ctx, []string{"sch", "export", "svg", src, "-o", outDir}); err != nil {
		return nil, err
	}

	produced, err := filepath.Glob(filepath.Join(outDir, "*.svg"))
	if err != nil || len(produced) == 0 {
		return nil, fmt.Errorf("%w: sch export produced no SVG for %q", ErrToolInvocation, identity)
	}
	sort.Strings(produced)
	want := strings.TrimSuffix(filepath.Base(src), ".kicad_sch") + ".svg"
	pick := produced[0]
	for _, p := range produced {
		if filepath.Base(p) == want {
			pick = p
			break
		}
	}
	return os.ReadFile(pick)
}

// exportLayer runs a layer-scoped board export. Each layer is first tried
// together with the board outline for spatial context; if the tool rejects
// that layer set the bare layer is exported instead.
func (a *Adapter) exportLayer(ctx context.Context, root, identity string) ([]byte, error) {
	board := findBoard(root, a.rules)
	if board == "" {
		return nil, fmt.Errorf("%w: no board file in workspace", ErrUnsupportedArtifact)
	}

	outDir, err := os.MkdirTemp("", "kicadsnap-svg-*")
	if err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	defer os.RemoveAll(outDir)
	outFile := filepath.Join(outDir, "layer.svg")

	var lastErr error
	for _, layers := range []string{identity + ",Edge.Cuts", identity} {
		_, err := a.invoke(ctx, []string{
			"pcb", "export", "svg",
			"--layers", layers,
			"--exclude-drawing-sheet",
			board, "-o", outFile,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if info, statErr := os.Stat(outFile); statErr == nil && info.Size() > 0 {
			return os.ReadFile(outFile)
		}
		lastErr = fmt.Errorf("%w: pcb export wrote no SVG for layer %q", ErrToolInvocation, identity)
	}
	return nil, lastErr
}

// invoke runs one kicad-cli command and wraps failures with the captured
// combined output.
func (a *Adapter) invoke(ctx context.Context, args []string) (string, error) {
	out, err := a.runTool(ctx, args)
	if err != nil {
		return "", fmt.Errorf("%w: kicad-cli %s: %v (output: %s)",
			ErrToolInvocation, strings.Join(args, " "), err, strings.TrimSpace(out))
	}
	return out, nil
}

func (a *Adapter) execTool(ctx context.Context, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.tool.Path, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), fmt.Errorf("timed out after %s", a.timeout)
	}
	return string(out), err
}
