// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/kicadsnap/pkg/ux"
	"github.com/AleutianAI/kicadsnap/services/snapshot/compare"
	"github.com/AleutianAI/kicadsnap/services/snapshot/render"
	"github.com/AleutianAI/kicadsnap/services/snapshot/report"
	"github.com/AleutianAI/kicadsnap/services/snapshot/settings"
	"github.com/AleutianAI/kicadsnap/services/snapshot/workspace"
)

func runCompare(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store := openStore()

	tool := mustLocateTool(ctx, store)
	scale := effectiveScale(store)

	sideA, err := classifyInput(args[0])
	if err != nil {
		ux.Errorf("side A: %v", err)
		os.Exit(1)
	}
	sideB, err := classifyInput(args[1])
	if err != nil {
		ux.Errorf("side B: %v", err)
		os.Exit(1)
	}

	adapter := render.NewAdapter(tool, render.WithLogger(logger.Slog()))
	orch := compare.NewOrchestrator(tool, adapter,
		compare.WithScale(scale),
		compare.WithPreRender(!noPreRender),
		compare.WithLogger(logger.Slog()))

	ux.Title("Comparing %s against %s", args[0], args[1])
	session, err := orch.Open(ctx, sideA, sideB)
	if err != nil {
		ux.Errorf("could not open comparison: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := session.Close(ctx); err != nil {
			ux.Warnf("teardown: %v", err)
		}
	}()

	differing := 0
	for _, artifact := range session.Artifacts() {
		d, err := session.Diff(ctx, artifact)
		if err != nil {
			ux.Warnf("%s: %v", artifact, err)
			continue
		}
		if d.Result.Different {
			differing++
			ux.Errorf("%s: different (%d pixels)", artifact, d.Result.ChangedPixels)
		} else {
			ux.Mutedf("%s: unchanged", artifact)
		}
	}

	if changes, err := session.CompareFiles(); err == nil {
		printFileChanges(changes)
	} else {
		ux.Warnf("file comparison: %v", err)
	}

	dest := reportDir
	if dest == "" && reportDefault {
		dest = defaultReportDest(sideA, sideB)
	}
	if dest != "" {
		writer := report.NewWriter(logger.Slog())
		bundle, err := writer.Write(ctx, session, dest)
		if err != nil {
			ux.Errorf("report: %v", err)
			os.Exit(1)
		}
		ux.Successf("Report bundle written to %s", bundle.Dir)
	}

	if differing == 0 {
		ux.Successf("No visual differences found")
	} else {
		ux.Warnf("%d artifact(s) differ", differing)
	}
}

// classifyInput maps a CLI argument onto the input sum type: zip files are
// snapshot archives, directories are live projects.
func classifyInput(arg string) (workspace.Input, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return workspace.DirInput{Path: abs}, nil
	}
	if strings.EqualFold(filepath.Ext(abs), ".zip") {
		return workspace.ArchiveInput{Path: abs}, nil
	}
	return nil, fmt.Errorf("%q is neither a directory nor a .zip archive", arg)
}

// defaultReportDest picks the conventional bundle location: a timestamped
// directory inside the first live project folder, or next to side A's
// archive when both sides are snapshots.
func defaultReportDest(sideA, sideB workspace.Input) string {
	for _, in := range []workspace.Input{sideA, sideB} {
		if dir, ok := in.(workspace.DirInput); ok {
			return report.DefaultDir(dir.Path, filepath.Base(dir.Path), time.Now())
		}
	}
	arc := sideA.(workspace.ArchiveInput)
	name := strings.TrimSuffix(filepath.Base(arc.Path), filepath.Ext(arc.Path))
	return report.DefaultDir(filepath.Dir(arc.Path), name, time.Now())
}

func effectiveScale(store settings.Store) float64 {
	if compareScale != 0 {
		if !render.ValidScale(compareScale) {
			ux.Errorf("unsupported scale %g (supported: 1, 1.5, 2, 3, 4, 5)", compareScale)
			os.Exit(1)
		}
		return compareScale
	}
	if v, err := store.Get(settings.KeyRenderScale); err == nil {
		if s, err := strconv.ParseFloat(v, 64); err == nil && render.ValidScale(s) {
			return s
		}
		ux.Warnf("ignoring invalid %s setting %q", settings.KeyRenderScale, v)
	}
	return 1
}

func printFileChanges(changes *compare.FileChanges) {
	for _, p := range changes.Added {
		ux.Successf("added     %s", p)
	}
	for _, p := range changes.Removed {
		ux.Errorf("removed   %s", p)
	}
	for _, p := range changes.Changed {
		ux.Warnf("changed   %s", p)
	}
	ux.Mutedf("%d file(s) unchanged", len(changes.Unchanged))
}
