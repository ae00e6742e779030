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
// Package imgdiff computes per-pixel differences between rendered rasters.
//
// Description:
//
//	Two interchangeable strategies implement the comparison: FlatStrategy
//	walks the raw pixel buffers and is the fast path for contiguous
//	images; PixelStrategy goes through the image accessors and works for
//	any RGBA layout. Both operate on raw 8-bit channel values and are
//	required to produce identical results, pixel for pixel, so the fast
//	path can never silently diverge from the portable one.
//
//	A pixel counts as changed when any channel differs by more than
//	ChannelTolerance, which absorbs anti-aliasing noise between two
//	rasterizations of identical content without masking real edits.
// =============================================================================

package imgdiff

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
)

// ChannelTolerance is the maximum per-channel absolute difference still
// considered unchanged.
const ChannelTolerance = 8

// Marker is the highlight color painted over changed pixels.
var Marker = color.RGBA{R: 255, G: 64, B: 64, A: 255}

// ErrBoundsMismatch is returned by a Strategy when the two rasters do not
// share bounds. Callers normally go through Diff, which turns a size
// mismatch into a conclusive "different" result instead.
var ErrBoundsMismatch = errors.New("raster bounds mismatch")

// Result is the outcome of comparing two same-identity rasters.
type Result struct {
	// Different is true iff at least one pixel changed.
	Different bool
	// ChangedPixels counts pixels exceeding the channel tolerance.
	ChangedPixels int
	// Visual shows side B with changed pixels painted in Marker red.
	Visual *image.RGBA
}

// Strategy computes a pixel-level comparison of two equal-size rasters.
type Strategy interface {
	// Name identifies the strategy in logs and test output.
	Name() string
	// Compare requires a and b to share bounds; ErrBoundsMismatch otherwise.
	Compare(a, b *image.RGBA) (*Result, error)
}

// Select picks the comparison strategy for a pair of rasters: the flat
// buffer walk when both images are contiguous and zero-origin, the
// accessor-based fallback otherwise.
func Select(a, b *image.RGBA) Strategy {
	if contiguous(a) && contiguous(b) {
		return FlatStrategy{}
	}
	return PixelStrategy{}
}

func contiguous(img *image.RGBA) bool {
	return img.Rect.Min == image.Point{} && img.Stride == 4*img.Rect.Dx()
}

// Diff compares two rasters, treating a dimension mismatch as a conclusive
// "different" outcome.
//
// Description:
//
//	Equal-size rasters are compared with the selected strategy. Rasters of
//	differing size skip pixel comparison entirely: the result is different
//	with a full-frame marker visual sized to the larger of each dimension,
//	and ChangedPixels covers the whole frame.
func Diff(a, b *image.RGBA) *Result {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() == bb.Dx() && ab.Dy() == bb.Dy() {
		res, err := Select(a, b).Compare(a, b)
		if err == nil {
			return res
		}
		// Bounds were checked above; any error here means the strategy
		// contract is broken, so fall through to the conclusive path.
	}

	w, h := ab.Dx(), ab.Dy()
	if bb.Dx() > w {
		w = bb.Dx()
	}
	if bb.Dy() > h {
		h = bb.Dy()
	}
	visual := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(visual, visual.Bounds(), &image.Uniform{C: Marker}, image.Point{}, draw.Src)
	return &Result{Different: true, ChangedPixels: w * h, Visual: visual}
}

// changed reports whether two raw channel values differ beyond tolerance.
func changed(x, y uint8) bool {
	d := int(x) - int(y)
	if d < 0 {
		d = -d
	}
	return d > ChannelTolerance
}
