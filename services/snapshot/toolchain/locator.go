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
// Package toolchain locates and validates the kicad-cli executable.
//
// Description:
//
//	KiCad installs land in wildly different places per platform, and users
//	frequently carry multiple versions side by side. The Locator walks a
//	deterministic search order (configured override, conventional install
//	locations, then $PATH), probes each candidate with --version, and picks
//	the newest version that answers. Probe results are cached per path for
//	the life of the process because spawning kicad-cli is slow enough to
//	matter on hot paths.
//
// Thread Safety:
//
//	Locator is safe for concurrent use. The probe cache is guarded by a
//	mutex; probes themselves run outside the lock.
// =============================================================================

package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// toolName is the executable we search $PATH for.
	toolName = "kicad-cli"

	// defaultProbeTimeout bounds a single --version invocation. KiCad can
	// be slow to start on cold caches but anything beyond this is a hung
	// install, not a slow one.
	defaultProbeTimeout = 40 * time.Second
)

// Handle describes a validated kicad-cli executable.
type Handle struct {
	// Path is the absolute path to the executable.
	Path string
	// Version is the parsed version text (e.g. "9.0.2"), empty when the
	// probe output did not contain a recognizable version.
	Version string

	parts []int
}

// VersionKnown reports whether the probe produced a parseable version.
func (h *Handle) VersionKnown() bool {
	return len(h.parts) > 0
}

// probeOutcome caches the result of probing one candidate path.
type probeOutcome struct {
	handle *Handle
	err    error
}

// Locator resolves the kicad-cli executable to use for rendering.
type Locator struct {
	configured string
	timeout    time.Duration
	logger     *slog.Logger

	// lookPath, runProbe, and discover are replaceable for tests.
	lookPath func(string) (string, error)
	runProbe func(ctx context.Context, path string) (string, error)
	discover func() []string

	mu    sync.Mutex
	cache map[string]probeOutcome
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithConfiguredPath sets a user-supplied executable path. A valid
// configured path always wins over discovery, regardless of version.
func WithConfiguredPath(path string) LocatorOption {
	return func(l *Locator) { l.configured = path }
}

// WithProbeTimeout overrides the per-candidate probe timeout.
func WithProbeTimeout(d time.Duration) LocatorOption {
	return func(l *Locator) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger used for probe diagnostics.
func WithLogger(logger *slog.Logger) LocatorOption {
	return func(l *Locator) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocator creates a Locator with an empty probe cache.
func NewLocator(opts ...LocatorOption) *Locator {
	l := &Locator{
		timeout:  defaultProbeTimeout,
		logger:   slog.Default(),
		lookPath: exec.LookPath,
		cache:    make(map[string]probeOutcome),
	}
	l.runProbe = l.execProbe
	l.discover = l.discoverCandidates
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "toolchain"))
	return l
}

// SetConfiguredPath updates the user override and invalidates cached
// probes so the next Locate re-validates everything.
func (l *Locator) SetConfiguredPath(path string) {
	l.mu.Lock()
	l.configured = path
	l.cache = make(map[string]probeOutcome)
	l.mu.Unlock()
}

// Invalidate clears the probe cache. Call after installing or upgrading
// KiCad mid-session.
func (l *Locator) Invalidate() {
	l.mu.Lock()
	l.cache = make(map[string]probeOutcome)
	l.mu.Unlock()
}

// Locate resolves the kicad-cli executable.
//
// Description:
//
//	Search order: the configured override first (it wins outright when it
//	probes successfully, even when its version is unparseable), then
//	platform-conventional install locations, then $PATH. Auto-discovered
//	candidates compete on parsed version; the newest wins and ties keep
//	the earlier discovery. Candidates whose version cannot be parsed are
//	not ranked.
//
// Outputs:
//
//	A Handle for the chosen executable, or an error wrapping
//	ErrToolNotFound that lists every path attempted.
func (l *Locator) Locate(ctx context.Context) (*Handle, error) {
	l.mu.Lock()
	configured := l.configured
	l.mu.Unlock()

	var attempted []string

	if configured != "" {
		h, err := l.probe(ctx, configured)
		if err == nil {
			l.logger.Debug("using configured kicad-cli",
				slog.String("path", h.Path),
				slog.String("version", h.Version))
			return h, nil
		}
		attempted = append(attempted, configured)
		l.logger.Warn("configured kicad-cli path failed probe, falling back to discovery",
			slog.String("path", configured),
			slog.String("error", err.Error()))
	}

	var best *Handle
	seen := make(map[string]bool)
	for _, candidate := range l.discover() {
		if seen[candidate] {
			continue
		}
		seen[candidate] = true

		h, err := l.probe(ctx, candidate)
		if err != nil {
			attempted = append(attempted, candidate)
			continue
		}
		if !h.VersionKnown() {
			// Discovered tools must identify themselves to compete.
			attempted = append(attempted, candidate)
			continue
		}
		if best == nil || compareVersions(h.parts, best.parts) > 0 {
			best = h
		}
	}

	if best != nil {
		l.logger.Debug("resolved kicad-cli",
			slog.String("path", best.Path),
			slog.String("version", best.Version))
		return best, nil
	}
	if len(attempted) == 0 {
		return nil, fmt.Errorf("%w: no candidate paths on this system", ErrToolNotFound)
	}
	return nil, fmt.Errorf("%w: attempted %s", ErrToolNotFound, strings.Join(attempted, ", "))
}

// probe validates one candidate path, consulting the cache first.
func (l *Locator) probe(ctx context.Context, path string) (*Handle, error) {
	l.mu.Lock()
	if outcome, ok := l.cache[path]; ok {
		l.mu.Unlock()
		return outcome.handle, outcome.err
	}
	l.mu.Unlock()

	handle, err := l.probeUncached(ctx, path)

	l.mu.Lock()
	l.cache[path] = probeOutcome{handle: handle, err: err}
	l.mu.Unlock()
	return handle, err
}

func (l *Locator) probeUncached(ctx context.Context, path string) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w for %q: %v", ErrProbeFailed, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w for %q: path is a directory", ErrProbeFailed, path)
	}

	out, err := l.runProbe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w for %q: %v", ErrProbeFailed, path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	h := &Handle{Path: abs}
	if parts, text, ok := ParseVersion(out); ok {
		h.parts = parts
		h.Version = text
	}
	return h, nil
}

// execProbe runs `<path> --version` and returns whichever of stdout or
// stderr carried output. Some KiCad builds print the banner to stderr.
func (l *Locator) execProbe(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("--version exited: %v (stderr: %s)",
			err, strings.TrimSpace(stderr.String()))
	}
	if s := strings.TrimSpace(stdout.String()); s != "" {
		return s, nil
	}
	return strings.TrimSpace(stderr.String()), nil
}

// discoverCandidates returns existing candidate executables in discovery
// order: platform-conventional locations first, then $PATH.
func (l *Locator) discoverCandidates() []string {
	var out []string
	for _, p := range platformCandidates() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			out = append(out, p)
		}
	}
	if p, err := l.lookPath(toolName); err == nil {
		out = append(out, p)
	}
	return out
}

// platformCandidates lists conventional install locations for the current
// OS, newest-install-first where the path encodes a version.
func platformCandidates() []string {
	switch runtime.GOOS {
	case "windows":
		var out []string
		for _, root := range []string{os.Getenv("ProgramFiles"), os.Getenv("ProgramFiles(x86)")} {
			if root == "" {
				continue
			}
			pattern := filepath.Join(root, "KiCad", "*", "bin", "kicad-cli.exe")
			matches, err := filepath.Glob(pattern)
			if err != nil {
				continue
			}
			// Glob order is lexical; reverse so higher versions come first.
			sort.Sort(sort.Reverse(sort.StringSlice(matches)))
			out = append(out, matches...)
		}
		return out
	case "darwin":
		return []string{
			"/Applications/KiCad/KiCad.app/Contents/MacOS/kicad-cli",
			"/opt/homebrew/bin/kicad-cli",
			"/usr/local/bin/kicad-cli",
			"/opt/local/bin/kicad-cli",
		}
	default:
		return []string{
			"/usr/bin/kicad-cli",
			"/usr/local/bin/kicad-cli",
			"/snap/bin/kicad-cli",
		}
	}
}
