// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package record

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/maruel/irspec/frame"
	"periph.io/x/periph/conn/physic"
)

type fakeSink struct {
	writes int
	closes int
}

func (f *fakeSink) Write(*frame.Frame) error {
	f.writes++
	return nil
}

func (f *fakeSink) Close() error {
	f.closes++
	return nil
}

func TestRecorder(t *testing.T) {
	s := &fakeSink{}
	o := func(path string, rate physic.Frequency, size image.Point) (Sink, error) {
		if path != "a.avi" || rate != 20*physic.Hertz || size != image.Pt(4, 3) {
			t.Fatalf("%s %s %s", path, rate, size)
		}
		return s, nil
	}
	r, err := Open(o, "a.avi", 20*physic.Hertz, image.Pt(4, 3))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Write(frame.New(4, 3)); err != nil {
		t.Fatal(err)
	}
	if err := r.Write(frame.New(3, 4)); !errors.Is(err, ErrFrameSize) {
		t.Fatal(err)
	}
	if r.Frames() != 1 || s.writes != 1 {
		t.Fatal(r.Frames(), s.writes)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if s.closes != 1 {
		t.Fatal(s.closes)
	}
	if err := r.Write(frame.New(4, 3)); err != ErrClosed {
		t.Fatal(err)
	}
}

func TestOpen_fail(t *testing.T) {
	o := func(string, physic.Frequency, image.Point) (Sink, error) {
		return nil, errors.New("codec not available")
	}
	if _, err := Open(o, "a.avi", 20*physic.Hertz, image.Pt(4, 3)); err == nil {
		t.Fatal("expected failure")
	}
	called := false
	o = func(string, physic.Frequency, image.Point) (Sink, error) {
		called = true
		return &fakeSink{}, nil
	}
	if _, err := Open(o, "a.avi", 0, image.Pt(4, 3)); err == nil || called {
		t.Fatal("expected invalid format")
	}
}

func TestVideoPath(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if p := VideoPath("", ts); p != "2026_03_04_05_06_07_recorded_video.avi" {
		t.Fatal(p)
	}
	// Two sessions in the same minute don't share the container.
	if VideoPath("", ts) == VideoPath("", ts.Add(time.Second)) {
		t.Fatal("same path")
	}
}
