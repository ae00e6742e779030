// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/kicadsnap/services/snapshot/rules"
	"github.com/AleutianAI/kicadsnap/services/snapshot/toolchain"
)

// Kind identifies the class of design artifact a render targets.
type Kind int

const (
	// KindSchematicSheet renders one schematic sheet file.
	KindSchematicSheet Kind = iota + 1
	// KindPCBLayer renders one board layer.
	KindPCBLayer
)

// String returns the short tag used in logs, metrics, and report names.
func (k Kind) String() string {
	switch k {
	case KindSchematicSheet:
		return "sch"
	case KindPCBLayer:
		return "pcb"
	default:
		return "unknown"
	}
}

// Artifact identifies one renderable unit of a project.
//
// For schematic sheets, Identity is the sheet file's slash-separated path
// relative to the workspace root. For PCB layers, Identity is the layer
// name ("F.Cu", "B.Cu").
type Artifact struct {
	Kind     Kind
	Identity string
}

// String returns a stable "kind:identity" form used as a cache key
// component and in report filenames.
func (a Artifact) String() string {
	return a.Kind.String() + ":" + a.Identity
}

// Raster is a rendered bitmap together with its source identity.
type Raster struct {
	Artifact Artifact
	Scale    float64
	Image    *image.RGBA
}

// comparedLayers is the layer subset a comparison session renders: the two
// copper faces. Inner layers and fab layers are not compared.
var comparedLayers = []string{"F.Cu", "B.Cu"}

// ListArtifacts enumerates the renderable artifacts of a workspace.
//
// Description:
//
//	Walks root for schematic sheet files (every *.kicad_sch the rule set
//	admits, in sorted relative-path order) and, when a board file exists,
//	appends the copper layers the board actually defines. Enumeration and
//	snapshotting apply the same rule set, so files an archive filtered out
//	(autosave copies, backups) never surface as one-sided artifacts when
//	comparing a live directory against its own snapshot. Layer detection
//	goes through kicad-cli when a tool handle is supplied and falls back
//	to scanning the board file; if both fail, the conventional front/back
//	pair is assumed so a board is never silently dropped from the
//	comparison.
func ListArtifacts(ctx context.Context, tool *toolchain.Handle, root string, rs *rules.RuleSet) ([]Artifact, error) {
	if rs == nil {
		rs = rules.Default()
	}
	var artifacts []Artifact

	var sheets []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && rs.PruneDir(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".kicad_sch") || !rs.ShouldInclude(rel) {
			return nil
		}
		sheets = append(sheets, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate artifacts in %q: %w", root, err)
	}
	sort.Strings(sheets)
	for _, s := range sheets {
		artifacts = append(artifacts, Artifact{Kind: KindSchematicSheet, Identity: s})
	}

	board := findBoard(root, rs)
	if board == "" {
		return artifacts, nil
	}
	defined, err := toolchain.DetectPCBLayers(ctx, tool, board)
	if err != nil {
		defined = comparedLayers
	}
	present := make(map[string]bool, len(defined))
	for _, l := range defined {
		present[l] = true
	}
	for _, l := range comparedLayers {
		if present[l] {
			artifacts = append(artifacts, Artifact{Kind: KindPCBLayer, Identity: l})
		}
	}
	return artifacts, nil
}

// findBoard returns the path of the first board file under root that the
// rule set admits, in sorted relative order, or "" when the project has no
// board. Filtering keeps autosave board copies from shadowing the real
// board on the live side.
func findBoard(root string, rs *rules.RuleSet) string {
	if rs == nil {
		rs = rules.Default()
	}
	var boards []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && rs.PruneDir(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".kicad_pcb") && rs.ShouldInclude(rel) {
			boards = append(boards, path)
		}
		return nil
	})
	if len(boards) == 0 {
		return ""
	}
	sort.Strings(boards)
	return boards[0]
}
