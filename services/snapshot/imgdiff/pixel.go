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

// PixelStrategy compares rasters one pixel at a time through the image
// accessors. Slower than FlatStrategy but correct for sub-images and any
// stride; it also serves as the reference implementation the fast path is
// tested against.
type PixelStrategy struct{}

// Name implements Strategy.
func (PixelStrategy) Name() string { return "pixel" }

// Compare implements Strategy.
func (PixelStrategy) Compare(a, b *image.RGBA) (*Result, error) {
	if a.Bounds().Dx() != b.Bounds().Dx() || a.Bounds().Dy() != b.Bounds().Dy() {
		return nil, ErrBoundsMismatch
	}

	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	visual := image.NewRGBA(image.Rect(0, 0, w, h))
	res := &Result{Visual: visual}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pa := a.RGBAAt(a.Rect.Min.X+x, a.Rect.Min.Y+y)
			pb := b.RGBAAt(b.Rect.Min.X+x, b.Rect.Min.Y+y)
			if changed(pa.R, pb.R) || changed(pa.G, pb.G) ||
				changed(pa.B, pb.B) || changed(pa.A, pb.A) {
				res.ChangedPixels++
				visual.SetRGBA(x, y, Marker)
			} else {
				visual.SetRGBA(x, y, pb)
			}
		}
	}
	res.Different = res.ChangedPixels > 0
	return res, nil
}
