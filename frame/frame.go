// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package frame defines the video frame passed between the capture device,
// the acquisition and sampling loops and the sinks.
package frame

import (
	"image"
	"image/color"
	"time"
)

// BGR is one pixel as delivered by the sensor, in blue, green, red order.
type BGR [3]uint8

// RGBA converts to the standard library color.
func (b BGR) RGBA() color.RGBA {
	return color.RGBA{R: b[2], G: b[1], B: b[0], A: 255}
}

// Frame is a 3 channels 8 bits image in BGR order.
//
// A Frame is owned by whoever produced it. Once it is handed off to another
// goroutine it must not be modified anymore; use Clone() to get a private copy.
type Frame struct {
	Pix       []uint8 // len(Pix) == Stride*Height.
	Stride    int
	Rect      image.Rectangle // Min is always (0, 0).
	Timestamp time.Time       // When the frame was read off the device.
	Seq       uint64          // Sequence number assigned by the reader, starts at 1.
}

// New returns a black frame.
func New(w, h int) *Frame {
	return &Frame{
		Pix:    make([]uint8, 3*w*h),
		Stride: 3 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
}

// FromBGR wraps a packed BGR buffer. The buffer is not copied.
func FromBGR(pix []uint8, w, h int, ts time.Time) *Frame {
	return &Frame{Pix: pix, Stride: 3 * w, Rect: image.Rect(0, 0, w, h), Timestamp: ts}
}

// Width is the frame width in pixels.
func (f *Frame) Width() int {
	return f.Rect.Dx()
}

// Height is the frame height in pixels.
func (f *Frame) Height() int {
	return f.Rect.Dy()
}

// Size returns the frame dimensions.
func (f *Frame) Size() image.Point {
	return f.Rect.Size()
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := *f
	out.Pix = make([]uint8, len(f.Pix))
	copy(out.Pix, f.Pix)
	return &out
}

// ColorModel implements image.Image.
func (f *Frame) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image.
func (f *Frame) Bounds() image.Rectangle {
	return f.Rect
}

// At implements image.Image.
func (f *Frame) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(f.Rect)) {
		return color.RGBA{}
	}
	return f.BGRAt(x, y).RGBA()
}

// BGRAt returns the pixel at (x, y). It panics if out of bounds.
func (f *Frame) BGRAt(x, y int) BGR {
	i := y*f.Stride + 3*x
	return BGR{f.Pix[i], f.Pix[i+1], f.Pix[i+2]}
}

// SetBGR sets the pixel at (x, y). Out of bounds is ignored.
func (f *Frame) SetBGR(x, y int, c BGR) {
	if !(image.Point{x, y}.In(f.Rect)) {
		return
	}
	i := y*f.Stride + 3*x
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = c[0], c[1], c[2]
}

// Fill paints r with c, clipped to the frame.
func (f *Frame) Fill(r image.Rectangle, c BGR) {
	r = r.Intersect(f.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := f.Pix[y*f.Stride : y*f.Stride+f.Stride]
		for x := r.Min.X; x < r.Max.X; x++ {
			row[3*x], row[3*x+1], row[3*x+2] = c[0], c[1], c[2]
		}
	}
}

// Mean returns the arithmetic mean of every channel of every pixel inside r.
//
// r is clipped to the frame bounds first, so a rectangle that went stale
// because of a concurrent resize never faults. Returns 0 when nothing is left
// after clipping.
func (f *Frame) Mean(r image.Rectangle) float64 {
	r = r.Intersect(f.Rect)
	if r.Empty() {
		return 0
	}
	// 640x480x3x255 fits easily; uint64 keeps it exact for any sane size.
	var sum uint64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := f.Pix[y*f.Stride+3*r.Min.X : y*f.Stride+3*r.Max.X]
		for _, v := range row {
			sum += uint64(v)
		}
	}
	return float64(sum) / float64(3*r.Dx()*r.Dy())
}

// DrawOutline draws the border of r with the given thickness, growing inward.
// Clipped to the frame.
func (f *Frame) DrawOutline(r image.Rectangle, c BGR, thickness int) {
	if thickness <= 0 || r.Empty() {
		return
	}
	if 2*thickness >= r.Dx() || 2*thickness >= r.Dy() {
		f.Fill(r, c)
		return
	}
	f.Fill(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), c)
	f.Fill(image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), c)
	f.Fill(image.Rect(r.Min.X, r.Min.Y+thickness, r.Min.X+thickness, r.Max.Y-thickness), c)
	f.Fill(image.Rect(r.Max.X-thickness, r.Min.Y+thickness, r.Max.X, r.Max.Y-thickness), c)
}
