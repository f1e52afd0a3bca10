// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package roi holds the three operator positioned regions of interest.
//
// The Store is the only state shared between the control context (writer)
// and the acquisition and sampling loops (readers). Every read and write
// covers a whole rectangle so a reader never sees new width with old x.
package roi

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/maruel/irspec/frame"
)

// Tag identifies one of the regions.
type Tag int

// Valid values for Tag.
const (
	Sample  Tag = 0 // The sample being measured.
	HotRef  Tag = 1 // Hot background reference.
	ColdRef Tag = 2 // Cold background reference.

	NumTags = 3
)

// Tags lists all the tags in export order.
var Tags = [NumTags]Tag{Sample, HotRef, ColdRef}

func (t Tag) String() string {
	switch t {
	case Sample:
		return "Sample"
	case HotRef:
		return "HotRef"
	case ColdRef:
		return "ColdRef"
	default:
		return fmt.Sprintf("Tag(%d)", int(t))
	}
}

// Valid returns true if t is one of the three known tags.
func (t Tag) Valid() bool {
	return t >= Sample && t < NumTags
}

// Color is the outline color drawn for this region.
func (t Tag) Color() frame.BGR {
	switch t {
	case Sample:
		return frame.BGR{52, 235, 143}
	case HotRef:
		return frame.BGR{0, 0, 255}
	default:
		return frame.BGR{255, 0, 0}
	}
}

// ParseTag accepts the tag name, case insensitive, or the color name used on
// the operator console.
func ParseTag(s string) (Tag, error) {
	switch strings.ToLower(s) {
	case "sample", "green":
		return Sample, nil
	case "hotref", "hot", "red":
		return HotRef, nil
	case "coldref", "cold", "blue":
		return ColdRef, nil
	}
	return 0, fmt.Errorf("roi: unknown tag %q", s)
}

// Rect is one region geometry, in frame pixels.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Image converts to the standard library rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.W, r.H, r.X, r.Y)
}

// Limits are the bounds every rectangle is clamped into.
type Limits struct {
	FrameWidth  int
	FrameHeight int
	MinSize     int // Minimum width and height. Maximum is the frame size.
}

// Clamp returns r moved then shrunk to fit inside the frame.
//
// Translation comes first: a rectangle hanging off the right edge is moved
// left, off the bottom is moved up, then negative coordinates are reset to 0.
// Only then are the dimensions reduced to what still fits.
func (l Limits) Clamp(r Rect) Rect {
	minSize := l.MinSize
	if minSize < 1 {
		minSize = 1
	}
	if r.W < minSize {
		r.W = minSize
	}
	if r.H < minSize {
		r.H = minSize
	}
	if r.X+r.W > l.FrameWidth {
		r.X = l.FrameWidth - r.W
	}
	if r.Y+r.H > l.FrameHeight {
		r.Y = l.FrameHeight - r.H
	}
	if r.X < 0 {
		r.X = 0
	}
	if r.Y < 0 {
		r.Y = 0
	}
	if r.X+r.W > l.FrameWidth {
		r.W = l.FrameWidth - r.X
	}
	if r.Y+r.H > l.FrameHeight {
		r.H = l.FrameHeight - r.Y
	}
	return r
}

// Defaults returns the geometry used at process start.
func Defaults() [NumTags]Rect {
	return [NumTags]Rect{
		Sample:  {X: 210, Y: 210, W: 300, H: 30},
		HotRef:  {X: 300, Y: 150, W: 30, H: 30},
		ColdRef: {X: 150, Y: 300, W: 30, H: 30},
	}
}

// ErrFrozen is returned when the operator tries to edit a region while an
// acquisition session holds the store frozen.
var ErrFrozen = errors.New("roi: regions are frozen while acquiring")

// Store holds the three regions.
//
// Safe for concurrent use. Writes are expected from a single control context
// but race with reads from the two loops.
type Store struct {
	limits Limits

	mu     sync.RWMutex
	rects  [NumTags]Rect
	frozen bool
}

// NewStore returns a store initialized with initial, each clamped to l.
func NewStore(l Limits, initial [NumTags]Rect) *Store {
	s := &Store{limits: l}
	for i := range initial {
		s.rects[i] = l.Clamp(initial[i])
	}
	return s
}

// Limits returns the bounds used for clamping.
func (s *Store) Limits() Limits {
	return s.limits
}

// Get returns the current geometry of one region. It returns the zero Rect
// for an invalid tag.
func (s *Store) Get(t Tag) Rect {
	if !t.Valid() {
		return Rect{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rects[t]
}

// Snapshot returns all three regions as of one instant.
func (s *Store) Snapshot() [NumTags]Rect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rects
}

// SetPosition moves the top-left corner of a region, then clamps.
func (s *Store) SetPosition(t Tag, x, y int) (Rect, error) {
	return s.update(t, func(r *Rect) {
		r.X = x
		r.Y = y
	})
}

// SetSize resizes a region, then clamps.
func (s *Store) SetSize(t Tag, w, h int) (Rect, error) {
	return s.update(t, func(r *Rect) {
		r.W = w
		r.H = h
	})
}

// Move translates a region by a delta, like a mouse drag, then clamps.
func (s *Store) Move(t Tag, dx, dy int) (Rect, error) {
	return s.update(t, func(r *Rect) {
		r.X += dx
		r.Y += dy
	})
}

// Set replaces the whole geometry of a region, then clamps.
func (s *Store) Set(t Tag, n Rect) (Rect, error) {
	return s.update(t, func(r *Rect) {
		*r = n
	})
}

// Freeze rejects all further edits until Unfreeze is called.
func (s *Store) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Unfreeze allows edits again.
func (s *Store) Unfreeze() {
	s.mu.Lock()
	s.frozen = false
	s.mu.Unlock()
}

// Frozen returns true when edits are rejected.
func (s *Store) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

func (s *Store) update(t Tag, f func(r *Rect)) (Rect, error) {
	if !t.Valid() {
		return Rect{}, fmt.Errorf("roi: invalid tag %d", int(t))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return s.rects[t], ErrFrozen
	}
	r := s.rects[t]
	f(&r)
	s.rects[t] = s.limits.Clamp(r)
	return s.rects[t], nil
}
