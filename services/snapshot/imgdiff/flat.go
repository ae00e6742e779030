// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package imgdiff

import "image"

// FlatStrategy compares rasters by walking their raw pixel buffers in
// row-major order. It is the fast path for large renders: no per-pixel
// bounds checks, no color conversion, a straight sweep over both Pix
// slices.
type FlatStrategy struct{}

// Name implements Strategy.
func (FlatStrategy) Name() string { return "flat" }

// Compare implements Strategy.
func (FlatStrategy) Compare(a, b *image.RGBA) (*Result, error) {
	if a.Bounds().Dx() != b.Bounds().Dx() || a.Bounds().Dy() != b.Bounds().Dy() {
		return nil, ErrBoundsMismatch
	}

	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	visual := image.NewRGBA(image.Rect(0, 0, w, h))
	res := &Result{Visual: visual}

	for y := 0; y < h; y++ {
		ra := a.Pix[a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y):][: w*4 : w*4]
		rb := b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y):][: w*4 : w*4]
		rv := visual.Pix[visual.PixOffset(0, y):][: w*4 : w*4]
		for x := 0; x < w; x++ {
			o := x * 4
			if changed(ra[o], rb[o]) || changed(ra[o+1], rb[o+1]) ||
				changed(ra[o+2], rb[o+2]) || changed(ra[o+3], rb[o+3]) {
				res.ChangedPixels++
				rv[o], rv[o+1], rv[o+2], rv[o+3] = Marker.R, Marker.G, Marker.B, Marker.A
			} else {
				rv[o], rv[o+1], rv[o+2], rv[o+3] = rb[o], rb[o+1], rb[o+2], rb[o+3]
			}
		}
	}
	res.Different = res.ChangedPixels > 0
	return res, nil
}
