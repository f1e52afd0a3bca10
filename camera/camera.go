// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package camera defines the frame source boundary.
//
// A Camera is a blocking device handle. Only one goroutine must read from it;
// see package fanout to share frames between several consumers.
package camera

import (
	"errors"
	"image"
	"io"

	"github.com/maruel/irspec/frame"
)

// ErrNoFrame is returned by ReadFrame when the device had nothing to return.
// It is a transient fault; the caller should retry.
var ErrNoFrame = errors.New("camera: no frame available")

// Camera reads frames from a sensor. This interface can be mocked.
type Camera interface {
	io.Closer

	// Bounds returns the frame size the device was configured for.
	Bounds() image.Rectangle
	// ReadFrame blocks until the next frame. The returned frame is owned by
	// the caller.
	ReadFrame() (*frame.Frame, error)
	// Stats returns the read statistics so far.
	Stats() Stats
}

// Stats are the device read statistics.
type Stats struct {
	// LastFail is the last failure of the current failure streak, nil when
	// healthy.
	LastFail   error `json:"-"`
	GoodFrames int
	EmptyReads int // Reads that returned no frame.
}

// Opener opens the device at a given index.
type Opener func(deviceIndex int) (Camera, error)
