// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cvcam

import (
	"image"
	"log"

	"github.com/maruel/irspec/frame"
	"github.com/maruel/irspec/pipeline"
	"github.com/maruel/irspec/roi"
	"gocv.io/x/gocv"
)

// Annotate draws the outline of each region on a copy of f with OpenCV. It
// can be used as pipeline.Options.Annotate.
//
// Outlines are drawn inside the regions, like pipeline.Annotate.
func Annotate(f *frame.Frame, rects [roi.NumTags]roi.Rect) *frame.Frame {
	if f.Stride != 3*f.Width() {
		return pipeline.Annotate(f, rects)
	}
	m, err := gocv.NewMatFromBytes(f.Height(), f.Width(), gocv.MatTypeCV8UC3, f.Pix)
	if err != nil {
		log.Printf("cvcam: %v", err)
		return pipeline.Annotate(f, rects)
	}
	defer m.Close()
	for _, t := range roi.Tags {
		r := outline(rects[t].Image(), pipeline.OutlineThickness)
		if r.Empty() {
			continue
		}
		gocv.Rectangle(&m, r, t.Color().RGBA(), pipeline.OutlineThickness)
	}
	out := frame.FromBGR(m.ToBytes(), f.Width(), f.Height(), f.Timestamp)
	out.Seq = f.Seq
	return out
}

// outline returns the rectangle to pass to gocv.Rectangle so a line of the
// given thickness covers the border of r from the inside.
//
// OpenCV corners are inclusive and the line is centered on them.
func outline(r image.Rectangle, thickness int) image.Rectangle {
	h := thickness / 2
	return image.Rect(r.Min.X+h, r.Min.Y+h, r.Max.X-1-h, r.Max.Y-1-h)
}
