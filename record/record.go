// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package record defines the recording sink that writes a session's video.
package record

import (
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/maruel/irspec/frame"
	"periph.io/x/periph/conn/physic"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("record: sink is closed")

// ErrFrameSize is returned when a frame does not match the container size.
var ErrFrameSize = errors.New("record: frame size mismatch")

// Sink appends frames to a container.
type Sink interface {
	io.Closer
	Write(f *frame.Frame) error
}

// Opener creates a new container at path with a fixed frame rate and frame
// size.
type Opener func(path string, rate physic.Frequency, size image.Point) (Sink, error)

// Recorder wraps a Sink and enforces the container discipline: every frame
// has the container size, and Close finalizes exactly once.
//
// Safe for concurrent use.
type Recorder struct {
	path string
	size image.Point

	mu       sync.Mutex
	sink     Sink
	frames   int
	closeErr error
}

// Open opens a new container through o.
func Open(o Opener, path string, rate physic.Frequency, size image.Point) (*Recorder, error) {
	if rate <= 0 || size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("record: invalid format %s %dx%d", rate, size.X, size.Y)
	}
	s, err := o(path, rate, size)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	return &Recorder{path: path, size: size, sink: s}, nil
}

// Path is the container path.
func (r *Recorder) Path() string {
	return r.path
}

// Write appends one frame.
func (r *Recorder) Write(f *frame.Frame) error {
	if f.Size() != r.size {
		return fmt.Errorf("%w: %dx%d, want %dx%d", ErrFrameSize, f.Width(), f.Height(), r.size.X, r.size.Y)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink == nil {
		return ErrClosed
	}
	if err := r.sink.Write(f); err != nil {
		return err
	}
	r.frames++
	return nil
}

// Frames returns the number of frames written.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close finalizes the container. Calling it again returns the first result.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink != nil {
		r.closeErr = r.sink.Close()
		r.sink = nil
	}
	return r.closeErr
}

// VideoPath returns the default container path for a session started at t.
//
// It has a one second resolution; two sessions started within the same
// second get the same path.
func VideoPath(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format("2006_01_02_15_04_05")+"_recorded_video.avi")
}
