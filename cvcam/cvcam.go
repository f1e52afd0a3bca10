// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cvcam talks to V4L2/DirectShow cameras and writes video containers
// through OpenCV.
package cvcam

import (
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maruel/irspec/camera"
	"github.com/maruel/irspec/frame"
	"github.com/maruel/irspec/record"
	"gocv.io/x/gocv"
	"periph.io/x/periph/conn/physic"
)

// Camera is a camera.Camera backed by gocv.VideoCapture.
type Camera struct {
	closed int32
	bounds image.Rectangle

	lock sync.Mutex // Held during reads.
	vc   *gocv.VideoCapture
	mat  gocv.Mat

	statsMu sync.Mutex
	stats   camera.Stats
}

// Open opens the camera at deviceIndex and requests a w×h frame size.
func Open(deviceIndex, w, h int) (*Camera, error) {
	vc, err := gocv.VideoCaptureDevice(deviceIndex)
	if err != nil {
		return nil, fmt.Errorf("cvcam: opening device %d: %w", deviceIndex, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("cvcam: device %d is not available", deviceIndex)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(w))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(h))
	return &Camera{bounds: image.Rect(0, 0, w, h), vc: vc, mat: gocv.NewMat()}, nil
}

// Opener returns a camera.Opener for the given frame size.
func Opener(w, h int) camera.Opener {
	return func(deviceIndex int) (camera.Camera, error) {
		c, err := Open(deviceIndex, w, h)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Bounds implements camera.Camera.
func (c *Camera) Bounds() image.Rectangle {
	return c.bounds
}

// ReadFrame implements camera.Camera.
//
// Frames of another size or pixel format than requested at Open are reported
// as camera.ErrNoFrame; the device sometimes sends a few of them while
// negotiating.
func (c *Camera) ReadFrame() (*frame.Frame, error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		return nil, io.ErrClosedPipe
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, c.fail(camera.ErrNoFrame)
	}
	if c.mat.Cols() != c.bounds.Dx() || c.mat.Rows() != c.bounds.Dy() || c.mat.Channels() != 3 {
		return nil, c.fail(fmt.Errorf("%w: got %dx%dx%d", camera.ErrNoFrame, c.mat.Cols(), c.mat.Rows(), c.mat.Channels()))
	}
	// ToBytes copies, the Mat is reused on the next read.
	f := frame.FromBGR(c.mat.ToBytes(), c.bounds.Dx(), c.bounds.Dy(), time.Now())
	c.statsMu.Lock()
	c.stats.GoodFrames++
	c.stats.LastFail = nil
	c.statsMu.Unlock()
	return f, nil
}

// Stats implements camera.Camera. It doesn't wait for a read in flight.
func (c *Camera) Stats() camera.Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Close implements camera.Camera. The caller must ensure no ReadFrame() is in
// flight.
func (c *Camera) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return io.ErrClosedPipe
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.mat.Close()
	return c.vc.Close()
}

func (c *Camera) fail(err error) error {
	c.statsMu.Lock()
	c.stats.EmptyReads++
	c.stats.LastFail = err
	c.statsMu.Unlock()
	return err
}

//

// Writer is a record.Sink writing a video container.
type Writer struct {
	vw   *gocv.VideoWriter
	size image.Point
}

// OpenVideo creates a new container at path. codec is a FOURCC like "XVID".
func OpenVideo(path, codec string, rate physic.Frequency, size image.Point) (*Writer, error) {
	// OpenCV happily returns a writer that silently drops everything when the
	// path is not writable, and overwrites existing files, so check first.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("cvcam: %w", err)
	}
	f.Close()
	fps := float64(rate) / float64(physic.Hertz)
	vw, err := gocv.VideoWriterFile(path, codec, fps, size.X, size.Y, true)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("cvcam: %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		os.Remove(path)
		return nil, fmt.Errorf("cvcam: %s: codec %s is not available", path, codec)
	}
	return &Writer{vw: vw, size: size}, nil
}

// VideoOpener returns a record.Opener using codec.
func VideoOpener(codec string) record.Opener {
	return func(path string, rate physic.Frequency, size image.Point) (record.Sink, error) {
		w, err := OpenVideo(path, codec, rate, size)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// Write implements record.Sink.
func (w *Writer) Write(f *frame.Frame) error {
	if f.Size() != w.size || f.Stride != 3*f.Width() {
		return record.ErrFrameSize
	}
	m, err := gocv.NewMatFromBytes(f.Height(), f.Width(), gocv.MatTypeCV8UC3, f.Pix)
	if err != nil {
		return err
	}
	defer m.Close()
	return w.vw.Write(m)
}

// Close implements record.Sink.
func (w *Writer) Close() error {
	return w.vw.Close()
}
