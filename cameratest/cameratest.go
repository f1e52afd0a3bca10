// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cameratest implements fake cameras, to test and demo without a
// device.
package cameratest

import (
	"image"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maruel/irspec/camera"
	"github.com/maruel/irspec/frame"
	"periph.io/x/periph/conn/physic"
)

// Fake is a camera.Camera returning synthetic frames.
//
// It also verifies the device discipline: concurrent reads and reads after
// Close are counted so tests can assert they never happen.
type Fake struct {
	// Render draws frame number n (starting at 1). Defaults to moving noise.
	Render func(f *frame.Frame, n int)
	// Period is the delay of each read. 0 means as fast as possible.
	Period time.Duration
	// FailEvery makes every Nth read return camera.ErrNoFrame when > 0.
	FailEvery int

	bounds          image.Rectangle
	reading         int32
	concurrentReads int32
	readsAfterClose int32
	closed          int32

	mu    sync.Mutex
	n     int
	stats camera.Stats
}

// New returns a fake producing slowly moving noise at the given rate.
func New(w, h int, rate physic.Frequency) *Fake {
	n := makeNoise(w, h)
	f := &Fake{bounds: image.Rect(0, 0, w, h)}
	if rate > 0 {
		f.Period = time.Duration(int64(time.Second) * int64(physic.Hertz) / int64(rate))
	}
	f.Render = func(img *frame.Frame, _ int) {
		n.update()
		n.render(img)
	}
	return f
}

// NewConstant returns a fake where every pixel of every frame is c.
func NewConstant(w, h int, c frame.BGR) *Fake {
	return &Fake{
		bounds: image.Rect(0, 0, w, h),
		Render: func(img *frame.Frame, _ int) {
			img.Fill(img.Rect, c)
		},
	}
}

// Open is a camera.Opener for a 640x480 noise camera at 20Hz.
func Open(deviceIndex int) (camera.Camera, error) {
	return New(640, 480, 20*physic.Hertz), nil
}

// Bounds implements camera.Camera.
func (f *Fake) Bounds() image.Rectangle {
	return f.bounds
}

// ReadFrame implements camera.Camera.
func (f *Fake) ReadFrame() (*frame.Frame, error) {
	if atomic.LoadInt32(&f.closed) != 0 {
		atomic.AddInt32(&f.readsAfterClose, 1)
		return nil, io.ErrClosedPipe
	}
	if !atomic.CompareAndSwapInt32(&f.reading, 0, 1) {
		atomic.AddInt32(&f.concurrentReads, 1)
	} else {
		defer atomic.StoreInt32(&f.reading, 0)
	}
	if f.Period != 0 {
		time.Sleep(f.Period)
	}
	f.mu.Lock()
	f.n++
	n := f.n
	if f.FailEvery > 0 && n%f.FailEvery == 0 {
		f.stats.EmptyReads++
		f.stats.LastFail = camera.ErrNoFrame
		f.mu.Unlock()
		return nil, camera.ErrNoFrame
	}
	f.mu.Unlock()
	img := frame.New(f.bounds.Dx(), f.bounds.Dy())
	img.Timestamp = time.Now()
	// Render may block to simulate a hung device; Stats stays available.
	if f.Render != nil {
		f.Render(img, n)
	}
	f.mu.Lock()
	f.stats.GoodFrames++
	f.stats.LastFail = nil
	f.mu.Unlock()
	return img, nil
}

// Stats implements camera.Camera.
func (f *Fake) Stats() camera.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Close implements camera.Camera.
func (f *Fake) Close() error {
	if !atomic.CompareAndSwapInt32(&f.closed, 0, 1) {
		return io.ErrClosedPipe
	}
	return nil
}

// Closed returns true once Close was called.
func (f *Fake) Closed() bool {
	return atomic.LoadInt32(&f.closed) != 0
}

// ConcurrentReads returns how many times ReadFrame was entered while another
// ReadFrame call was in flight.
func (f *Fake) ConcurrentReads() int {
	return int(atomic.LoadInt32(&f.concurrentReads))
}

// ReadsAfterClose returns how many times ReadFrame was called after Close.
func (f *Fake) ReadsAfterClose() int {
	return int(atomic.LoadInt32(&f.readsAfterClose))
}

//

type vector struct {
	intensity float64
	x         float64
	y         float64
}

// noise is cheezy but gets us going for testing without a device.
type noise struct {
	rand    *rand.Rand
	vectors []vector
	w, h    int
}

func makeNoise(w, h int) *noise {
	n := &noise{rand: rand.New(rand.NewSource(0)), w: w, h: h}
	n.vectors = make([]vector, 10)
	for i := range n.vectors {
		n.vectors[i].intensity = n.rand.NormFloat64() * 2000
		n.vectors[i].x = n.rand.NormFloat64()*float64(w)/6 + float64(w)/2
		n.vectors[i].y = n.rand.NormFloat64()*float64(h)/6 + float64(h)/2
	}
	return n
}

func (n *noise) update() {
	for i := range n.vectors {
		n.vectors[i].intensity += n.rand.NormFloat64() * 20
		n.vectors[i].x += n.rand.NormFloat64()
		n.vectors[i].y += n.rand.NormFloat64()
	}
}

func (n *noise) render(f *frame.Frame) {
	for y := 0; y < n.h; y++ {
		fy := float64(y)
		for x := 0; x < n.w; x++ {
			fx := float64(x)
			value := float64(128)
			for _, vect := range n.vectors {
				distance := (vect.x-fx)*(vect.x-fx) + (vect.y-fy)*(vect.y-fy) + 1
				value += vect.intensity / distance
			}
			if value > 255 {
				value = 255
			}
			if value < 0 {
				value = 0
			}
			v := uint8(value)
			f.SetBGR(x, y, frame.BGR{v, v, v})
		}
	}
}
