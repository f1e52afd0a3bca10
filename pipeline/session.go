// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maruel/irspec/frame"
	"github.com/maruel/irspec/record"
)

// Session is one acquisition: sampling plus optional recording.
//
// It owns the recorder. Only the acquisition loop writes to it.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time
	VideoPath string // Empty when not recording.

	mu       sync.Mutex
	rec      *record.Recorder
	frames   int
	stopped  time.Time
	closeErr error
}

// SessionInfo is the JSON friendly view of a Session.
type SessionInfo struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	VideoPath string    `json:"video_path,omitempty"`
	Recording bool      `json:"recording"`
	Frames    int       `json:"frames"`
}

func newSession(rec *record.Recorder, now time.Time) *Session {
	s := &Session{ID: uuid.New(), StartedAt: now, rec: rec}
	if rec != nil {
		s.VideoPath = rec.Path()
	}
	return s
}

// Recording returns true while frames are being written.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil
}

// Frames returns the number of frames handed to the session.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// WriteFrame records f if the session is recording.
func (s *Session) WriteFrame(f *frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped.IsZero() {
		return record.ErrClosed
	}
	s.frames++
	if s.rec == nil {
		return nil
	}
	return s.rec.Write(f)
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:        s.ID.String(),
		StartedAt: s.StartedAt,
		StoppedAt: s.stopped,
		VideoPath: s.VideoPath,
		Recording: s.rec != nil,
		Frames:    s.frames,
	}
}

// close finalizes the recording. Only the first call does anything.
func (s *Session) close(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped.IsZero() {
		return s.closeErr
	}
	s.stopped = now
	if s.rec != nil {
		s.closeErr = s.rec.Close()
		s.rec = nil
	}
	return s.closeErr
}
