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

// Input identifies one side of a comparison. It is a closed sum: a
// snapshot archive or a live project directory. The variant is dispatched
// exactly once, at materialization; downstream consumers only ever see a
// uniform Handle and never learn the input's origin.
type Input interface {
	isInput()

	// Describe returns a short human-readable label for diagnostics.
	Describe() string
}

// ArchiveInput is a snapshot archive on disk. Materializing it extracts
// the full contents into a fresh unique temporary directory.
type ArchiveInput struct {
	// Path is the archive file location.
	Path string
}

func (ArchiveInput) isInput() {}

// Describe returns "archive:<path>".
func (i ArchiveInput) Describe() string { return "archive:" + i.Path }

// DirInput is a live project directory. Materializing it references the
// directory in place, without copying. All consumers must treat it as
// read-only for the handle's lifetime.
type DirInput struct {
	// Path is the project directory.
	Path string
}

func (DirInput) isInput() {}

// Describe returns "dir:<path>".
func (i DirInput) Describe() string { return "dir:" + i.Path }
