// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace materializes comparison inputs into ephemeral
// read-only directories and guarantees their teardown only after all
// consumers - including background render work - have finished.
//
// The manager exists to close a concrete defect class: deleting a
// temporary extraction while an external render process still reads from
// it. Release is a blocking drain over a per-handle outstanding-work
// counter, never a fire-and-forget delete.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/AleutianAI/kicadsnap/services/snapshot/archive"
)

// Manager creates and owns workspace handles. Only the manager ever
// creates or deletes workspace directories.
//
// Thread Safety: safe for concurrent use.
type Manager struct {
	baseDir string
	logger  *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// Option configures the Manager.
type Option func(*Manager)

// WithBaseDir places temporary extractions under dir instead of the
// system temp directory.
func WithBaseDir(dir string) Option {
	return func(m *Manager) { m.baseDir = dir }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a workspace manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		handles: make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With(slog.String("component", "workspace_manager"))
	return m
}

// Materialize resolves a comparison input into a workspace handle.
//
// Archives extract into a fresh unique temporary directory; live project
// directories are referenced in place and additionally watched so that
// external modification during a session is at least surfaced in the log
// (the tree is contractually read-only while a session holds it).
func (m *Manager) Materialize(ctx context.Context, input Input) (*Handle, error) {
	if input == nil {
		return nil, ErrNilInput
	}

	var h *Handle
	switch in := input.(type) {
	case ArchiveInput:
		dir, err := os.MkdirTemp(m.baseDir, "kicadsnap-ws-*")
		if err != nil {
			return nil, fmt.Errorf("create workspace directory: %w", err)
		}
		if err := archive.Extract(ctx, in.Path, dir); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("materialize %s: %w", in.Describe(), err)
		}
		h = newHandle(uuid.NewString(), dir, true)

	case DirInput:
		abs, err := filepath.Abs(in.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", in.Describe(), err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("materialize %s: %w", in.Describe(), err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
		}
		h = newHandle(uuid.NewString(), abs, false)
		m.watchLiveDir(h)

	default:
		return nil, fmt.Errorf("%w: unknown input variant %T", ErrNilInput, input)
	}

	m.mu.Lock()
	m.handles[h.id] = h
	m.mu.Unlock()

	m.logger.Debug("workspace materialized",
		slog.String("workspace_id", h.id),
		slog.String("root", h.root),
		slog.Bool("temp", h.temp),
	)
	return h, nil
}

// Release tears down a handle. It blocks until every unit of work issued
// against the handle has completed or been cancelled, then deletes the
// directory if the manager owns it. Safe to call more than once; calls
// after the first are no-ops.
func (m *Manager) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	if !h.drain() {
		// Already released earlier.
		return nil
	}

	if h.watcher != nil {
		_ = h.watcher.Close()
	}

	m.mu.Lock()
	delete(m.handles, h.id)
	m.mu.Unlock()

	if h.temp {
		if err := os.RemoveAll(h.root); err != nil {
			return fmt.Errorf("remove workspace directory: %w", err)
		}
	}

	m.logger.Debug("workspace released",
		slog.String("workspace_id", h.id),
		slog.Bool("deleted", h.temp),
	)
	return nil
}

// ReleaseAll releases every handle the manager still tracks. Used on
// shutdown paths; returns the first error encountered.
func (m *Manager) ReleaseAll() error {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := m.Release(h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// watchLiveDir attaches a best-effort fsnotify watcher to a live project
// directory. Watch failures are logged and otherwise ignored; the watch
// is diagnostic, not a correctness mechanism.
func (m *Manager) watchLiveDir(h *Handle) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Debug("live-dir watch unavailable", slog.Any("error", err))
		return
	}
	if err := watcher.Add(h.root); err != nil {
		m.logger.Debug("live-dir watch unavailable", slog.String("root", h.root), slog.Any("error", err))
		_ = watcher.Close()
		return
	}
	h.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) ||
					event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
					m.logger.Warn("live project modified during comparison session",
						slog.String("workspace_id", h.id),
						slog.String("path", event.Name),
						slog.String("op", event.Op.String()),
					)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}
