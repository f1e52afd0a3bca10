// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"errors"
	"log"

	"github.com/maruel/irspec/fanout"
	"github.com/maruel/irspec/frame"
	"github.com/maruel/irspec/record"
	"github.com/maruel/irspec/roi"
)

// OutlineThickness is the width in pixels of the drawn region borders.
const OutlineThickness = 2

// Display receives the annotated frames.
//
// Show must return quickly; it must not keep a reference to a frame it will
// modify.
type Display interface {
	Show(f *frame.Frame)
}

// Annotate returns a copy of f with the outline of each region drawn on it.
//
// All three regions come from the same store snapshot.
func Annotate(f *frame.Frame, rects [roi.NumTags]roi.Rect) *frame.Frame {
	out := f.Clone()
	for _, t := range roi.Tags {
		out.DrawOutline(rects[t].Image(), t.Color(), OutlineThickness)
	}
	return out
}

// acquirer is the acquisition loop: annotate each frame, show it, and record
// it when a session is recording.
type acquirer struct {
	store    *roi.Store
	display  Display
	annotate func(f *frame.Frame, rects [roi.NumTags]roi.Rect) *frame.Frame
	session  func() *Session
}

func (a *acquirer) run(ctx context.Context, m *fanout.Mailbox) {
	failed := false
	for {
		f, err := m.Next(ctx)
		if err != nil {
			return
		}
		out := a.annotate(f, a.store.Snapshot())
		if a.display != nil {
			a.display.Show(out)
		}
		if s := a.session(); s != nil {
			// The session may be stopped between Load and WriteFrame.
			if err := s.WriteFrame(out); err != nil && !errors.Is(err, record.ErrClosed) {
				if !failed {
					log.Printf("recording: %v", err)
				}
				failed = true
			} else {
				failed = false
			}
		}
	}
}
