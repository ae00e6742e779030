// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolchain

import "errors"

// Sentinel errors for tool resolution.
var (
	// ErrToolNotFound indicates no usable kicad-cli executable could be
	// validated. The wrapping error lists the attempted paths so the user
	// can fix configuration without digging through logs.
	ErrToolNotFound = errors.New("kicad-cli not found")

	// ErrProbeFailed indicates a specific candidate exists but failed its
	// --version probe (non-zero exit, timeout, or unusable output).
	ErrProbeFailed = errors.New("version probe failed")

	// ErrNoLayers indicates no PCB layers could be determined for a board.
	ErrNoLayers = errors.New("no PCB layers detected")
)
