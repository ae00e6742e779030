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
// Package report writes comparison results to disk as a shareable bundle.
//
// Description:
//
//	A bundle is a directory holding one difference image per artifact that
//	differed plus a summary document covering every compared artifact and
//	the file-level changes between the two sides. Bundles are written only
//	on explicit request and are plain files; nothing in the engine reads
//	them back.
// =============================================================================

package report

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/AleutianAI/kicadsnap/services/snapshot/compare"
)

// safeNamePattern collapses anything unsafe in an artifact identity into a
// single underscore for use as a filename.
var safeNamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// summaryName is the summary document's filename inside a bundle.
const summaryName = "summary.md"

// Bundle describes a written report.
type Bundle struct {
	// Dir is the bundle directory.
	Dir string
	// Images maps artifact labels to the written diff image paths.
	Images map[string]string
	// DifferingArtifacts counts artifacts that reported a change.
	DifferingArtifacts int
	// SummaryPath is the path of the summary document.
	SummaryPath string
}

// Writer generates report bundles from an open comparison session.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a report writer.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger.With(slog.String("component", "report"))}
}

// DefaultDir returns the conventional bundle location next to the project:
// `<projectDir>/<name>-diff-report-<timestamp>`.
func DefaultDir(projectDir, name string, now time.Time) string {
	return filepath.Join(projectDir,
		fmt.Sprintf("%s-diff-report-%s", name, now.Format("2006-01-02_150405")))
}

// Write diffs every session artifact and writes the bundle to destDir.
//
// Description:
//
//	Creates destDir (and parents) if needed. Each differing artifact gets
//	a `<label>.diff.png`; the summary lists every artifact's verdict and
//	the added/removed/changed/unchanged file sets, with unified text diffs
//	for changed design files. Artifacts that fail to diff are recorded in
//	the summary with their error rather than aborting the bundle.
func (w *Writer) Write(ctx context.Context, s *compare.Session, destDir string) (*Bundle, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	bundle := &Bundle{Dir: destDir, Images: make(map[string]string)}
	var summary strings.Builder
	summary.WriteString("# Design comparison report\n\n")
	fmt.Fprintf(&summary, "Generated: %s\n\n", time.Now().Format(time.RFC3339))

	summary.WriteString("## Artifacts\n\n")
	for _, artifact := range s.Artifacts() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		label := safeName(artifact.String())

		d, err := s.Diff(ctx, artifact)
		if err != nil {
			fmt.Fprintf(&summary, "- `%s`: diff failed: %v\n", artifact, err)
			w.logger.Warn("artifact diff failed during report",
				slog.String("artifact", artifact.String()),
				slog.String("error", err.Error()))
			continue
		}
		if !d.Result.Different {
			fmt.Fprintf(&summary, "- `%s`: unchanged\n", artifact)
			continue
		}

		imgPath := filepath.Join(destDir, label+".diff.png")
		if err := writePNG(imgPath, d); err != nil {
			return nil, err
		}
		bundle.Images[artifact.String()] = imgPath
		bundle.DifferingArtifacts++
		fmt.Fprintf(&summary, "- `%s`: **different** (%d pixels), see %s\n",
			artifact, d.Result.ChangedPixels, filepath.Base(imgPath))
	}

	if err := w.writeFileSection(&summary, s); err != nil {
		w.logger.Warn("file-level comparison unavailable", slog.String("error", err.Error()))
	}

	bundle.SummaryPath = filepath.Join(destDir, summaryName)
	if err := os.WriteFile(bundle.SummaryPath, []byte(summary.String()), 0o644); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}

	w.logger.Info("report bundle written",
		slog.String("dir", destDir),
		slog.Int("differing_artifacts", bundle.DifferingArtifacts))
	return bundle, nil
}

// writeFileSection appends the file-level change listing with unified
// diffs for changed text files.
func (w *Writer) writeFileSection(summary *strings.Builder, s *compare.Session) error {
	changes, err := s.CompareFiles()
	if err != nil {
		return err
	}
	mapA, mapB, err := s.FileMaps()
	if err != nil {
		return err
	}

	summary.WriteString("\n## Files\n\n")
	writeList(summary, "Added", changes.Added)
	writeList(summary, "Removed", changes.Removed)
	writeList(summary, "Changed", changes.Changed)
	writeList(summary, "Unchanged", changes.Unchanged)

	for _, path := range changes.Changed {
		before, after := mapA[path], mapB[path]
		if !isText(before) || !isText(after) {
			continue
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(before)),
			B:        difflib.SplitLines(string(after)),
			FromFile: "a/" + path,
			ToFile:   "b/" + path,
			Context:  3,
		})
		if err != nil || text == "" {
			continue
		}
		fmt.Fprintf(summary, "\n### `%s`\n\n```diff\n%s```\n", path, text)
	}
	return nil
}

func writeList(summary *strings.Builder, heading string, paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Fprintf(summary, "**%s (%d):**\n\n", heading, len(paths))
	for _, p := range paths {
		fmt.Fprintf(summary, "- `%s`\n", p)
	}
	summary.WriteString("\n")
}

func writePNG(path string, d *compare.ArtifactDiff) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create diff image: %w", err)
	}
	if err := png.Encode(f, d.Result.Visual); err != nil {
		f.Close()
		return fmt.Errorf("encode diff image: %w", err)
	}
	return f.Close()
}

// isText reports whether content is reasonable to show as a unified diff.
// KiCad design files are s-expression text; binary blobs are skipped.
func isText(content []byte) bool {
	return utf8.Valid(content) && !bytes.ContainsRune(content, 0)
}

func safeName(identity string) string {
	return safeNamePattern.ReplaceAllString(identity, "_")
}
