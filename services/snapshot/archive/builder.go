// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive builds and reads snapshot archives.
//
// A snapshot archive is a plain zip file holding the rule-filtered project
// tree with original relative paths preserved, so extraction reproduces
// the layout and any standard archive tool can open it. Archives are
// immutable once written: the builder writes to a temporary file and
// renames it into place only on success, so an interrupted build never
// leaves a corrupt archive at the destination.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/kicadsnap/services/snapshot/rules"
)

// Summary describes one completed build.
type Summary struct {
	// Path is the final archive location.
	Path string

	// FileCount is the number of files written.
	FileCount int

	// TotalBytes is the uncompressed size of the written files.
	TotalBytes int64

	// Warnings records files that were skipped because they could not be
	// read. Skips are not fatal; only an empty result is.
	Warnings []string
}

// Builder writes snapshot archives for a fixed rule set.
//
// Thread Safety: safe for concurrent use; Build keeps all state local.
type Builder struct {
	rules  *rules.RuleSet
	logger *slog.Logger
}

// NewBuilder creates a Builder. A nil rule set means the default KiCad
// whitelist; a nil logger means slog.Default().
func NewBuilder(rs *rules.RuleSet, logger *slog.Logger) *Builder {
	if rs == nil {
		rs = rules.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		rules:  rs,
		logger: logger.With(slog.String("component", "archive_builder")),
	}
}

// Build walks projectRoot depth-first, pruning excluded subtrees, and
// writes every included regular file into a zip at destPath.
//
// The included-path set for a given tree and rule set is deterministic
// (lexical walk order). Unreadable files are skipped with a recorded
// warning. If zero files qualify, Build fails with ErrEmptyResult and the
// destination is left untouched.
func (b *Builder) Build(ctx context.Context, projectRoot, destPath string) (*Summary, error) {
	info, err := os.Stat(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("stat project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, projectRoot)
	}

	included, walkWarnings, err := b.collect(ctx, projectRoot)
	if err != nil {
		return nil, err
	}
	if len(included) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyResult, projectRoot)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".kicadsnap-*.partial")
	if err != nil {
		return nil, fmt.Errorf("create partial archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// Best effort; gone already after a successful rename.
		_ = os.Remove(tmpPath)
	}()

	summary, err := b.writeZip(ctx, tmp, projectRoot, included)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close partial archive: %w", cerr)
	}
	if err != nil {
		return nil, err
	}
	summary.Warnings = append(walkWarnings, summary.Warnings...)
	if summary.FileCount == 0 {
		return nil, fmt.Errorf("%w: all candidate files were unreadable", ErrEmptyResult)
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		return nil, fmt.Errorf("chmod archive: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	summary.Path = destPath

	b.logger.Info("archive created",
		slog.String("path", destPath),
		slog.Int("files", summary.FileCount),
		slog.Int64("bytes", summary.TotalBytes),
		slog.Int("warnings", len(summary.Warnings)),
	)
	return summary, nil
}

// collect returns the sorted relative paths of every included file, plus a
// warning per subtree the walk could not read. Excluded directories are
// pruned without descending.
func (b *Builder) collect(ctx context.Context, root string) ([]string, []string, error) {
	var included []string
	var warnings []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			warnings = append(warnings, fmt.Sprintf("skipped %s: %v", filepath.ToSlash(rel), walkErr))
			b.logger.Warn("walk error", slog.String("path", path), slog.Any("error", walkErr))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}

		if d.IsDir() {
			if b.rules.PruneDir(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if b.rules.ShouldInclude(rel) {
			included = append(included, rel)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk project tree: %w", err)
	}
	return included, warnings, nil
}

// writeZip streams the included files into the zip writer.
func (b *Builder) writeZip(ctx context.Context, w io.Writer, root string, included []string) (*Summary, error) {
	zw := zip.NewWriter(w)
	summary := &Summary{}

	for _, rel := range included {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Read fully before creating the entry; a read failure must skip
		// the file cleanly, never leave a truncated entry in the archive.
		srcPath := filepath.Join(root, rel)
		data, err := os.ReadFile(srcPath)
		if err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("skipped %s: %v", rel, err))
			b.logger.Warn("skipping unreadable file", slog.String("path", rel), slog.Any("error", err))
			continue
		}

		header := &zip.FileHeader{
			Name:   SanitizeEntryPath(rel),
			Method: zip.Deflate,
		}
		header.SetMode(0o644)
		if fi, err := os.Stat(srcPath); err == nil {
			header.Modified = fi.ModTime()
		}

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("create entry %s: %w", rel, err)
		}
		if _, err := entry.Write(data); err != nil {
			return nil, fmt.Errorf("write entry %s: %w", rel, err)
		}

		summary.FileCount++
		summary.TotalBytes += int64(len(data))
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive writer: %w", err)
	}
	return summary, nil
}

// memoUnsafe matches characters that may not appear in an archive name memo.
var memoUnsafe = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// DefaultDest returns the conventional destination for a new snapshot of
// the given project file: a "<dir>-backups" sibling directory holding
// "<project>-<timestamp>[-memo].zip". The returned path is uniquified with
// a numeric suffix if it already exists on disk. The archive's creation
// time and source project are inferable from this name; no metadata is
// embedded in the archive itself.
func DefaultDest(projectFile string, now time.Time, memo string) string {
	projectDir := filepath.Dir(projectFile)
	stem := strings.TrimSuffix(filepath.Base(projectFile), filepath.Ext(projectFile))
	backupDir := filepath.Join(projectDir, filepath.Base(projectDir)+"-backups")

	base := fmt.Sprintf("%s-%s", stem, now.Format("2006-01-02_150405"))
	if cleaned := sanitizeMemo(memo); cleaned != "" {
		base = base + "-" + cleaned
	}

	dest := filepath.Join(backupDir, base+".zip")
	for index := 1; ; index++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			return dest
		}
		dest = filepath.Join(backupDir, fmt.Sprintf("%s_%d.zip", base, index))
	}
}

// sanitizeMemo strips filesystem-hostile characters from a user memo.
func sanitizeMemo(memo string) string {
	cleaned := memoUnsafe.ReplaceAllString(strings.ReplaceAll(strings.TrimSpace(memo), " ", "_"), "")
	return strings.Trim(cleaned, "._-")
}
