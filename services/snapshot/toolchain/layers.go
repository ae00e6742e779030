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
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// layerDefPattern matches layer definitions inside a .kicad_pcb file's
// (layers ...) block: `(0 "F.Cu" signal)` and the like.
var layerDefPattern = regexp.MustCompile(`\(\s*\d+\s+"([^"]+)"\s+`)

// layerListTimeout bounds a `pcb layers list` invocation. Listing layers
// is metadata-only and fast; a short bound keeps a wedged install from
// stalling comparison setup.
const layerListTimeout = 15 * time.Second

// DetectPCBLayers returns the copper and drawing layers defined by a board.
//
// Description:
//
//	Asks kicad-cli first (the subcommand spelling changed across KiCad
//	releases, so both known forms are tried), then falls back to scanning
//	the board file's (layers ...) block directly. The file scan keeps
//	layer detection working even against a CLI too old to list layers.
//
// Outputs:
//
//	Layer names in definition order, or ErrNoLayers when neither source
//	yields any.
func DetectPCBLayers(ctx context.Context, handle *Handle, boardPath string) ([]string, error) {
	if handle != nil {
		for _, args := range [][]string{
			{"pcb", "layers", "list", boardPath},
			{"pcb", "list-layers", boardPath},
		} {
			layers, err := listLayersCLI(ctx, handle.Path, args)
			if err == nil && len(layers) > 0 {
				return layers, nil
			}
		}
	}

	layers, err := scanLayerBlock(boardPath)
	if err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w in %q", ErrNoLayers, boardPath)
	}
	return layers, nil
}

func listLayersCLI(ctx context.Context, toolPath string, args []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, layerListTimeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, toolPath, args...)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}

	var layers []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		name := strings.Fields(line)
		if len(name) == 0 {
			continue
		}
		// Layer names contain a dot ("F.Cu", "Edge.Cuts"); headers and
		// prose lines do not.
		if strings.Contains(name[0], ".") {
			layers = append(layers, name[0])
		}
	}
	return layers, nil
}

func scanLayerBlock(boardPath string) ([]string, error) {
	data, err := os.ReadFile(boardPath)
	if err != nil {
		return nil, fmt.Errorf("read board file: %w", err)
	}
	var layers []string
	seen := make(map[string]bool)
	for _, m := range layerDefPattern.FindAllSubmatch(data, -1) {
		name := string(m[1])
		if !seen[name] {
			seen[name] = true
			layers = append(layers, name)
		}
	}
	return layers, nil
}
