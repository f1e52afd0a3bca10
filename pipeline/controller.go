// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pipeline runs the real time photometry.
//
// A single goroutine reads the camera and broadcasts each frame to two
// independent loops: the acquisition loop annotates and displays every frame
// and records it during a session, the sampler measures every Nth frame.
// Controller sequences them through the session state machine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maruel/irspec/camera"
	"github.com/maruel/irspec/fanout"
	"github.com/maruel/irspec/frame"
	"github.com/maruel/irspec/record"
	"github.com/maruel/irspec/roi"
	"github.com/maruel/irspec/series"
	"periph.io/x/periph/conn/physic"
)

// State is the session state.
type State int

// Valid values for State.
const (
	Idle    State = 0
	Armed   State = 1
	Running State = 2
	Stopped State = 3
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Armed:
		return "Armed"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for i := Idle; i <= Stopped; i++ {
		if i.String() == string(b) {
			*s = i
			return nil
		}
	}
	return fmt.Errorf("pipeline: unknown state %q", b)
}

var (
	// ErrRunning is returned when starting while a session is running.
	ErrRunning = errors.New("pipeline: a session is already running")
	// ErrState is returned on an invalid transition.
	ErrState = errors.New("pipeline: invalid state transition")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pipeline: controller is closed")
	// ErrBusy is returned when the previous device is still blocked in a read
	// and cannot be released yet.
	ErrBusy = errors.New("pipeline: camera is still being released")
)

// releaseWait is how long stopping waits for a blocked device read before
// releasing the device in the background.
const releaseWait = 500 * time.Millisecond

// Options configures a Controller.
type Options struct {
	Camera      camera.Opener // Required.
	DeviceIndex int
	Recorder    record.Opener // Required to record; Start with a path fails without it.
	FrameRate   physic.Frequency
	Stride      int
	Store       *roi.Store     // Required.
	Series      *series.Series // Required.
	Display     Display
	// Annotate draws the regions on a copy of a frame. Defaults to Annotate.
	Annotate func(f *frame.Frame, rects [roi.NumTags]roi.Rect) *frame.Frame
	// FreezeROIs rejects region edits from Arm until Stop.
	FreezeROIs bool
	// Now is the clock, defaults to time.Now.
	Now func() time.Time
}

// Stats is the pipeline statistics.
type Stats struct {
	State     State
	Live      bool
	Camera    camera.Stats
	Pump      PumpStats
	Mailboxes []fanout.Stats
	Samples   int
	Releasing bool // A stopped device is still blocked in a read.
	Session   *SessionInfo `json:",omitempty"`
}

// live is the device with its reader and acquisition loop.
type live struct {
	cam      camera.Camera
	pump     *pump
	b        *fanout.Broadcaster
	cancel   context.CancelFunc
	acqDone  chan struct{}
	pumpDone chan struct{}
}

// Controller sequences the device, the loops and the session.
//
// Safe for concurrent use. Each method completes its transition before
// returning.
type Controller struct {
	opts Options

	session atomic.Pointer[Session]

	mu            sync.Mutex
	state         State
	closed        bool
	live          *live
	implicitArm   bool // Start armed from Idle.
	last          *Session
	samplerCancel context.CancelFunc
	samplerDone   chan struct{}
	released      chan struct{} // Closed once a device left blocked is closed.
}

// New returns an idle Controller.
func New(opts Options) (*Controller, error) {
	if opts.Camera == nil || opts.Store == nil || opts.Series == nil {
		return nil, errors.New("pipeline: Camera, Store and Series are required")
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 20 * physic.Hertz
	}
	if opts.Stride <= 0 {
		opts.Stride = DefaultStride
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Annotate == nil {
		opts.Annotate = Annotate
	}
	return &Controller{opts: opts}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the running session, or the last one once stopped. nil if
// none was ever started.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Stats returns a snapshot of the statistics.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{State: c.state, Live: c.live != nil, Samples: c.opts.Series.Len(), Releasing: c.releasing()}
	if c.live != nil {
		s.Camera = c.live.cam.Stats()
		s.Pump = c.live.pump.Stats()
		s.Mailboxes = c.live.b.Stats()
	}
	if c.last != nil {
		i := c.last.Info()
		s.Session = &i
	}
	return s
}

// StartLive opens the device and starts the preview. It is a no-op if the
// preview is already running.
func (c *Controller) StartLive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.live != nil {
		return nil
	}
	return c.startLiveLocked()
}

// StopLive stops the preview and releases the device. It fails with
// ErrRunning during a session; use Stop.
func (c *Controller) StopLive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Running {
		return ErrRunning
	}
	return c.stopLiveLocked()
}

// Arm moves from Idle to Armed, freezing the regions if configured so.
func (c *Controller) Arm() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	switch c.state {
	case Armed:
		return nil
	case Idle:
		c.armLocked()
		c.implicitArm = false
		return nil
	case Running:
		return ErrRunning
	default:
		return ErrState
	}
}

// Start starts a session: the series is reset, the recorder opened at
// videoPath (no recording when empty) and the sampler started. The preview is
// started too when needed.
//
// Starting from Idle arms first. Starting while Running returns ErrRunning
// and changes nothing. On failure the controller goes back to its previous
// state.
func (c *Controller) Start(videoPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	switch c.state {
	case Running:
		return ErrRunning
	case Idle:
		c.armLocked()
		c.implicitArm = true
	case Armed:
	default:
		return ErrState
	}
	startedLive := false
	if c.live == nil {
		if err := c.startLiveLocked(); err != nil {
			c.undoStartLocked(false)
			return err
		}
		startedLive = true
	}
	var rec *record.Recorder
	if videoPath != "" {
		if c.opts.Recorder == nil {
			c.undoStartLocked(startedLive)
			return errors.New("pipeline: no recorder configured")
		}
		var err error
		size := c.live.cam.Bounds().Size()
		if rec, err = record.Open(c.opts.Recorder, videoPath, c.opts.FrameRate, size); err != nil {
			c.undoStartLocked(startedLive)
			return err
		}
	}
	c.opts.Series.Reset()
	s := newSession(rec, c.opts.Now())
	c.last = s
	c.session.Store(s)

	ctx, cancel := context.WithCancel(context.Background())
	sp := NewSampler(c.opts.Store, c.opts.Series, c.opts.Stride, c.opts.Now)
	b := c.live.b
	m := b.Subscribe("sampler")
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer b.Unsubscribe(m)
		sp.Run(ctx, m)
	}()
	c.samplerCancel = cancel
	c.samplerDone = done
	c.state = Running
	log.Printf("session %s started, recording to %q", s.ID, s.VideoPath)
	return nil
}

// Stop ends the session: the sampler is stopped, the recording finalized and
// the preview stopped.
//
// Stopping while Armed disarms. Stopping while Idle is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Idle:
		return nil
	case Armed:
		c.undoArmLocked()
		return nil
	}
	return c.stopLocked()
}

// Close stops everything. The controller cannot be used afterward.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	var err error
	switch c.state {
	case Running:
		err = c.stopLocked()
	case Armed:
		c.undoArmLocked()
	}
	if err2 := c.stopLiveLocked(); err == nil {
		err = err2
	}
	return err
}

//

func (c *Controller) armLocked() {
	if c.opts.FreezeROIs {
		c.opts.Store.Freeze()
	}
	c.state = Armed
}

func (c *Controller) undoArmLocked() {
	if c.opts.FreezeROIs {
		c.opts.Store.Unfreeze()
	}
	c.state = Idle
}

// undoStartLocked reverts a failed Start.
func (c *Controller) undoStartLocked(startedLive bool) {
	if startedLive {
		if err := c.stopLiveLocked(); err != nil {
			log.Printf("camera: %v", err)
		}
	}
	if c.implicitArm {
		c.undoArmLocked()
	}
}

func (c *Controller) stopLocked() error {
	c.state = Stopped
	// Release order: sampler, then the session so the acquisition loop stops
	// writing, then the device.
	c.samplerCancel()
	<-c.samplerDone
	c.samplerCancel = nil
	c.samplerDone = nil
	s := c.session.Swap(nil)
	err := s.close(c.opts.Now())
	if err2 := c.stopLiveLocked(); err == nil {
		err = err2
	}
	if c.opts.FreezeROIs {
		c.opts.Store.Unfreeze()
	}
	c.state = Idle
	log.Printf("session %s stopped, %d frames, %d samples", s.ID, s.Frames(), c.opts.Series.Len())
	return err
}

// releasing returns true while a device from a previous preview is not closed
// yet.
func (c *Controller) releasing() bool {
	if c.released == nil {
		return false
	}
	select {
	case <-c.released:
		c.released = nil
		return false
	default:
		return true
	}
}

func (c *Controller) startLiveLocked() error {
	if c.released != nil {
		// The same device can't be opened twice.
		select {
		case <-c.released:
			c.released = nil
		case <-time.After(releaseWait):
			return ErrBusy
		}
	}
	cam, err := c.opts.Camera(c.opts.DeviceIndex)
	if err != nil {
		return fmt.Errorf("pipeline: opening camera %d: %w", c.opts.DeviceIndex, err)
	}
	if b := cam.Bounds(); b.Empty() || b.Min != (image.Point{}) {
		cam.Close()
		return fmt.Errorf("pipeline: camera reported invalid bounds %s", b)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &live{cam: cam, b: fanout.New(), cancel: cancel, acqDone: make(chan struct{}), pumpDone: make(chan struct{})}
	l.pump = &pump{cam: cam, out: l.b}
	a := &acquirer{store: c.opts.Store, display: c.opts.Display, annotate: c.opts.Annotate, session: c.session.Load}
	m := l.b.Subscribe("acquisition")
	go func() {
		defer close(l.pumpDone)
		l.pump.run(ctx)
	}()
	go func() {
		defer close(l.acqDone)
		a.run(ctx, m)
	}()
	c.live = l
	return nil
}

// stopLiveLocked stops the acquisition loop and the reader, then releases
// the device.
//
// The device is closed only once the reader exited. When a read stays blocked
// for more than releaseWait, it is closed in the background instead so the
// controller stays responsive; the next preview waits for it.
func (c *Controller) stopLiveLocked() error {
	l := c.live
	if l == nil {
		return nil
	}
	c.live = nil
	l.cancel()
	l.b.Close()
	<-l.acqDone
	select {
	case <-l.pumpDone:
		return l.cam.Close()
	case <-time.After(releaseWait):
	}
	log.Printf("camera: read blocked for more than %s, releasing in the background", releaseWait)
	released := make(chan struct{})
	c.released = released
	go func() {
		defer close(released)
		<-l.pumpDone
		if err := l.cam.Close(); err != nil {
			log.Printf("camera: %v", err)
			return
		}
		log.Printf("camera: released")
	}()
	return nil
}
