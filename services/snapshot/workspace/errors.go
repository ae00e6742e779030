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

import "errors"

// Sentinel errors for workspace lifecycle.
var (
	// ErrReleasing indicates Acquire was called after release was
	// requested; no new work may start against the handle.
	ErrReleasing = errors.New("workspace handle is releasing")

	// ErrNilInput indicates Materialize was called with a nil input.
	ErrNilInput = errors.New("nil comparison input")

	// ErrNotDirectory indicates a live-directory input does not point at
	// a directory.
	ErrNotDirectory = errors.New("input path is not a directory")
)
