// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compare

import "errors"

// Sentinel errors for comparison sessions.
var (
	// ErrSessionClosed indicates a request arrived after teardown began.
	// No further renders or diffs are accepted.
	ErrSessionClosed = errors.New("comparison session closed")

	// ErrArtifactMissing indicates the artifact exists on neither side of
	// the comparison.
	ErrArtifactMissing = errors.New("artifact missing on both sides")
)
