// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import "errors"

// Sentinel errors for render failures.
var (
	// ErrToolInvocation indicates kicad-cli exited non-zero, timed out, or
	// produced no usable output. The wrapping error carries the captured
	// tool output for diagnostics. Invocations are never retried
	// automatically.
	ErrToolInvocation = errors.New("kicad-cli invocation failed")

	// ErrUnsupportedArtifact indicates the requested artifact kind or
	// identity does not exist in the workspace.
	ErrUnsupportedArtifact = errors.New("unsupported artifact")

	// ErrBadSVG indicates the exported vector document could not be parsed
	// for rasterization.
	ErrBadSVG = errors.New("malformed SVG output")
)
