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

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const (
	// defaultCanvasW and defaultCanvasH size rasters for SVG documents
	// whose viewbox is missing or degenerate.
	defaultCanvasW = 1400
	defaultCanvasH = 1000

	// maxCanvasDim caps the 1x canvas for pathological viewboxes. The
	// scale multiplier applies on top of this cap.
	maxCanvasDim = 2000
)

// Scales lists the supported raster scale multipliers.
var Scales = []float64{1, 1.5, 2, 3, 4, 5}

// ValidScale reports whether s is a supported scale multiplier.
func ValidScale(s float64) bool {
	for _, v := range Scales {
		if v == s {
			return true
		}
	}
	return false
}

// RasterizeSVG parses an SVG document and renders it over a white
// background at the given scale multiplier.
//
// Description:
//
//	The 1x canvas comes from the document viewbox, clamped to
//	maxCanvasDim with aspect ratio preserved. A missing or degenerate
//	viewbox falls back to the default canvas; when only one dimension is
//	usable the other is derived from it so the aspect ratio survives the
//	fallback.
func RasterizeSVG(data []byte, scale float64) (*image.RGBA, error) {
	if scale <= 0 {
		scale = 1
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSVG, err)
	}

	w, h := naturalSize(icon.ViewBox.W, icon.ViewBox.H)
	pw := int(math.Round(w * scale))
	ph := int(math.Round(h * scale))
	if pw < 1 {
		pw = 1
	}
	if ph < 1 {
		ph = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, pw, ph))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	icon.SetTarget(0, 0, float64(pw), float64(ph))
	scanner := rasterx.NewScannerGV(pw, ph, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(pw, ph, scanner), 1.0)
	return img, nil
}

// naturalSize maps a viewbox to the 1x canvas size in pixels.
func naturalSize(vw, vh float64) (w, h float64) {
	switch {
	case vw > 0 && vh > 0:
		w, h = vw, vh
	case vw > 0:
		w = vw
		h = vw * float64(defaultCanvasH) / float64(defaultCanvasW)
	case vh > 0:
		h = vh
		w = vh * float64(defaultCanvasW) / float64(defaultCanvasH)
	default:
		return defaultCanvasW, defaultCanvasH
	}
	if bigger := math.Max(w, h); bigger > maxCanvasDim {
		shrink := maxCanvasDim / bigger
		w *= shrink
		h *= shrink
	}
	return w, h
}

// BlankRaster returns an all-white raster of the given size. Comparison
// uses it to stand in for an artifact that exists on only one side.
func BlankRaster(w, h int) *image.RGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}
