// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Handle references one materialized workspace directory.
//
// Every unit of work that reads from the directory (typically an external
// render invocation) must bracket itself with Acquire/Done. The
// outstanding-work counter is the sole synchronization point guarding
// deletion: Release blocks until it drains, so the directory can never be
// removed while a render process might still read files inside it.
//
// Thread Safety: safe for concurrent use.
type Handle struct {
	id   string
	root string
	temp bool

	mu          sync.Mutex
	cond        *sync.Cond
	outstanding int
	releasing   bool
	released    bool

	// watcher is set for live-directory handles only.
	watcher *fsnotify.Watcher
}

// newHandle wires the condition variable. Callers go through Manager.
func newHandle(id, root string, temp bool) *Handle {
	h := &Handle{id: id, root: root, temp: temp}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Root returns the materialized directory. Callers must treat the tree as
// read-only.
func (h *Handle) Root() string { return h.root }

// Temp reports whether the directory is an extraction owned by the
// manager (true) or a live project directory referenced in place (false).
func (h *Handle) Temp() bool { return h.temp }

// Acquire registers one unit of outstanding work against the handle.
//
// It fails with ErrReleasing once release has been requested, so no new
// work can start while teardown is draining. A successful Acquire must be
// paired with exactly one Done, including on cancellation paths:
// cancelled work still decrements the counter, or teardown would starve.
func (h *Handle) Acquire() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.releasing || h.released {
		return ErrReleasing
	}
	h.outstanding++
	return nil
}

// Done retires one unit of outstanding work and wakes a pending Release
// when the counter reaches zero.
func (h *Handle) Done() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.outstanding <= 0 {
		panic("workspace: Done called without matching Acquire")
	}
	h.outstanding--
	if h.outstanding == 0 {
		h.cond.Broadcast()
	}
}

// Outstanding returns the current outstanding-work count.
func (h *Handle) Outstanding() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outstanding
}

// drain marks the handle as releasing and blocks until outstanding work
// reaches zero. Returns false if the handle was already released.
func (h *Handle) drain() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return false
	}
	h.releasing = true
	for h.outstanding > 0 {
		h.cond.Wait()
	}
	h.released = true
	return true
}
