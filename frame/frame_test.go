// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package frame

import (
	"image"
	"image/color"
	"testing"
)

func TestMean_uniform(t *testing.T) {
	f := New(640, 480)
	r := image.Rect(300, 150, 330, 180)
	f.Fill(r, BGR{200, 200, 200})
	if m := f.Mean(r); m != 200.0 {
		t.Fatalf("got %v", m)
	}
}

func TestMean_channels(t *testing.T) {
	f := New(4, 4)
	f.Fill(f.Rect, BGR{10, 20, 60})
	if m := f.Mean(f.Rect); m != 30.0 {
		t.Fatalf("got %v", m)
	}
	// Two halves with different values.
	f.Fill(image.Rect(0, 0, 2, 4), BGR{0, 0, 0})
	f.Fill(image.Rect(2, 0, 4, 4), BGR{100, 100, 100})
	if m := f.Mean(f.Rect); m != 50.0 {
		t.Fatalf("got %v", m)
	}
}

func TestMean_clamped(t *testing.T) {
	f := New(10, 10)
	f.Fill(f.Rect, BGR{7, 7, 7})
	data := []struct {
		r    image.Rectangle
		want float64
	}{
		{image.Rect(5, 5, 50, 50), 7},
		{image.Rect(-5, -5, 3, 3), 7},
		{image.Rect(20, 20, 30, 30), 0},
		{image.Rect(3, 3, 3, 3), 0},
	}
	for i, line := range data {
		if m := f.Mean(line.r); m != line.want {
			t.Fatalf("#%d: %v: got %v, want %v", i, line.r, m, line.want)
		}
	}
}

func TestClone(t *testing.T) {
	f := New(2, 2)
	f.Seq = 3
	c := f.Clone()
	c.SetBGR(0, 0, BGR{1, 2, 3})
	if f.BGRAt(0, 0) != (BGR{}) {
		t.Fatal("clone shares pixels")
	}
	if c.Seq != 3 || c.Rect != f.Rect {
		t.Fatal("clone lost metadata")
	}
}

func TestDrawOutline(t *testing.T) {
	f := New(20, 20)
	red := BGR{0, 0, 255}
	r := image.Rect(5, 5, 15, 15)
	f.DrawOutline(r, red, 2)
	data := []struct {
		x, y int
		want BGR
	}{
		{5, 5, red},
		{14, 14, red},
		{6, 10, red},
		{7, 10, BGR{}},
		{10, 10, BGR{}},
		{4, 4, BGR{}},
		{15, 15, BGR{}},
	}
	for _, line := range data {
		if got := f.BGRAt(line.x, line.y); got != line.want {
			t.Fatalf("(%d,%d): got %v, want %v", line.x, line.y, got, line.want)
		}
	}
}

func TestDrawOutline_clipped(t *testing.T) {
	f := New(10, 10)
	f.DrawOutline(image.Rect(-5, -5, 50, 50), BGR{1, 1, 1}, 2)
	f.DrawOutline(image.Rect(8, 8, 9, 9), BGR{2, 2, 2}, 2)
	if f.BGRAt(8, 8) != (BGR{2, 2, 2}) {
		t.Fatal("tiny rectangle should be filled")
	}
}

func TestAt(t *testing.T) {
	f := New(1, 1)
	f.SetBGR(0, 0, BGR{1, 2, 3})
	if c := f.At(0, 0); c != (color.RGBA{3, 2, 1, 255}) {
		t.Fatal(c)
	}
	if c := f.At(1, 1); c != (color.RGBA{}) {
		t.Fatal(c)
	}
}
