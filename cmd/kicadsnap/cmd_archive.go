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
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/kicadsnap/pkg/ux"
	"github.com/AleutianAI/kicadsnap/services/snapshot/archive"
	"github.com/AleutianAI/kicadsnap/services/snapshot/rules"
)

func runArchive(cmd *cobra.Command, args []string) {
	projectFile, projectRoot, err := resolveProject(args[0])
	if err != nil {
		ux.Errorf("%v", err)
		os.Exit(1)
	}

	rs := rules.Default()
	if len(extraIncludes) > 0 || len(extraExcludes) > 0 {
		rs = rs.Extend(extraIncludes, extraExcludes)
	}

	dest := archiveOutput
	if dest == "" {
		dest = archive.DefaultDest(projectFile, time.Now(), archiveMemo)
	}

	ux.Title("Archiving %s", filepath.Base(projectRoot))
	builder := archive.NewBuilder(rs, logger.Slog())
	summary, err := builder.Build(context.Background(), projectRoot, dest)
	if err != nil {
		if errors.Is(err, archive.ErrEmptyResult) {
			ux.Errorf("no files matched the archive rules under %s", projectRoot)
		} else {
			ux.Errorf("archive failed: %v", err)
		}
		os.Exit(1)
	}

	for _, warning := range summary.Warnings {
		ux.Warnf("%s", warning)
	}
	ux.Successf("Wrote %s (%d files, %d bytes)", summary.Path, summary.FileCount, summary.TotalBytes)
}

// resolveProject accepts a .kicad_pro file or a project directory and
// returns (project file, project root). A directory must contain exactly
// one project file at its top level; with several, the first in sorted
// order is used with a warning.
func resolveProject(arg string) (projectFile, projectRoot string, err error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", err
	}

	if !info.IsDir() {
		return abs, filepath.Dir(abs), nil
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", "", err
	}
	var candidates []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".kicad_pro") {
			candidates = append(candidates, filepath.Join(abs, e.Name()))
		}
	}
	switch len(candidates) {
	case 0:
		// A directory without a project file still archives fine; the
		// project identity falls back to the directory name.
		return filepath.Join(abs, filepath.Base(abs)+".kicad_pro"), abs, nil
	case 1:
		return candidates[0], abs, nil
	default:
		sort.Strings(candidates)
		ux.Warnf("multiple project files in %s, using %s", abs, filepath.Base(candidates[0]))
		return candidates[0], abs, nil
	}
}
