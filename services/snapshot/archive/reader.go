// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/kicadsnap/services/snapshot/rules"
)

// SanitizeEntryPath normalizes an archive entry path: forward slashes, no
// drive prefix, no leading slash, and no '.' or '..' segments escaping the
// root. Empty results collapse to "entry".
func SanitizeEntryPath(p string) string {
	s := filepath.ToSlash(p)
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	s = strings.Join(stack, "/")
	if s == "" {
		return "entry"
	}
	return s
}

// Extract unpacks the full contents of the archive into destDir,
// recreating the relative layout. Entry paths are sanitized so a
// malicious archive cannot write outside destDir.
func Extract(ctx context.Context, archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			continue
		}

		name := SanitizeEntryPath(f.Name)
		outPath := filepath.Join(destDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(outPath), 0750); err != nil {
			return fmt.Errorf("create directory for %s: %w", name, err)
		}
		if err := extractEntry(f, outPath); err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
	}
	return nil
}

// extractEntry copies one zip entry to disk.
func extractEntry(f *zip.File, outPath string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

// FileMap reads every rule-matching entry of the archive into memory,
// keyed by its sanitized relative path. It is the archive-side source for
// file-level comparison.
func FileMap(archivePath string, rs *rules.RuleSet) (map[string][]byte, error) {
	if rs == nil {
		rs = rules.Default()
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	result := make(map[string][]byte)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := SanitizeEntryPath(f.Name)
		if !rs.ShouldInclude(name) {
			continue
		}
		src, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(src)
		_ = src.Close()
		if err != nil {
			continue
		}
		result[name] = data
	}
	return result, nil
}

// DirFileMap reads every rule-matching file under root into memory, keyed
// by slash-relative path. It is the live-directory source for file-level
// comparison. Unreadable files are silently skipped, matching the
// builder's resilience policy.
func DirFileMap(root string, rs *rules.RuleSet) (map[string][]byte, error) {
	if rs == nil {
		rs = rules.Default()
	}

	result := make(map[string][]byte)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if rs.PruneDir(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !rs.ShouldInclude(rel) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		result[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return result, nil
}
