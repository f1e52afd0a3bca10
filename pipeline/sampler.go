// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/maruel/irspec/fanout"
	"github.com/maruel/irspec/frame"
	"github.com/maruel/irspec/roi"
	"github.com/maruel/irspec/series"
)

// DefaultStride is the number of frames between two samples.
const DefaultStride = 15

// Sampler decimates frames and appends the mean of each region to a series.
//
// Not safe for concurrent use; it is driven by a single loop.
type Sampler struct {
	store  *roi.Store
	out    *series.Series
	stride int
	now    func() time.Time

	started time.Time
	frames  int
	last    float64
	samples int
}

// NewSampler returns a Sampler whose clock starts now.
//
// now defaults to time.Now. stride defaults to DefaultStride.
func NewSampler(store *roi.Store, out *series.Series, stride int, now func() time.Time) *Sampler {
	if stride <= 0 {
		stride = DefaultStride
	}
	if now == nil {
		now = time.Now
	}
	return &Sampler{store: store, out: out, stride: stride, now: now, started: now()}
}

// Frames is the number of frames seen so far.
func (s *Sampler) Frames() int {
	return s.frames
}

// Feed counts one frame and samples it when it is the stride'th one.
//
// It returns true when a sample was appended.
func (s *Sampler) Feed(f *frame.Frame) (series.Sample, bool) {
	s.frames++
	if s.frames%s.stride != 0 {
		return series.Sample{}, false
	}
	rects := s.store.Snapshot()
	x := series.Sample{Elapsed: s.now().Sub(s.started).Seconds()}
	for _, t := range roi.Tags {
		x.Means[t] = f.Mean(rects[t].Image())
	}
	// The clock may be coarse or not monotonic; time must still move forward.
	if s.samples != 0 && x.Elapsed <= s.last {
		x.Elapsed = math.Nextafter(s.last, math.Inf(1))
	}
	if x.Elapsed < 0 {
		x.Elapsed = 0
	}
	if err := s.out.Append(x); err != nil {
		log.Printf("sampler: %v", err)
		return x, false
	}
	s.last = x.Elapsed
	s.samples++
	return x, true
}

// Run feeds frames from m until ctx is canceled or m is closed.
//
// A sample is appended completely or not at all.
func (s *Sampler) Run(ctx context.Context, m *fanout.Mailbox) {
	for {
		f, err := m.Next(ctx)
		if err != nil {
			return
		}
		s.Feed(f)
	}
}
