// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package series holds the photometry time series of an acquisition session.
package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/maruel/irspec/roi"
)

// Header is the first CSV row.
var Header = []string{"Time (s)", "Sample", "HotRef", "ColdRef"}

// ErrOrder is returned by Append when time does not move forward.
var ErrOrder = errors.New("series: elapsed time must be strictly increasing")

// Sample is the mean intensity of each region at one instant.
type Sample struct {
	Elapsed float64              `json:"t"`     // Seconds since the sampler started.
	Means   [roi.NumTags]float64 `json:"means"` // Indexed by roi.Tag.
}

// Series is the append-only sequence of samples.
//
// Safe for concurrent use; it is written by the sampler only and read by the
// operator console.
type Series struct {
	mu       sync.Mutex
	samples  []Sample
	gen      uint64
	onAppend []func(Sample)
}

// Notify registers f to be called synchronously after each Append. f must not
// block nor call back into s.
func (s *Series) Notify(f func(Sample)) {
	s.mu.Lock()
	s.onAppend = append(s.onAppend, f)
	s.mu.Unlock()
}

// Append adds a sample at the end.
func (s *Series) Append(x Sample) error {
	s.mu.Lock()
	if n := len(s.samples); n != 0 && x.Elapsed <= s.samples[n-1].Elapsed {
		last := s.samples[n-1].Elapsed
		s.mu.Unlock()
		return fmt.Errorf("%w: %g after %g", ErrOrder, x.Elapsed, last)
	}
	s.samples = append(s.samples, x)
	cb := s.onAppend
	s.mu.Unlock()
	for _, f := range cb {
		f(x)
	}
	return nil
}

// Reset clears the sequence, at the start of a session.
func (s *Series) Reset() {
	s.mu.Lock()
	s.samples = nil
	s.gen++
	s.mu.Unlock()
}

// Generation is incremented by each Reset.
func (s *Series) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Len returns the number of samples.
func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Samples returns a copy of the whole sequence.
func (s *Series) Samples() []Sample {
	return s.Since(0)
}

// Since returns a copy of the samples from index i on. It is meant for
// incremental polling.
func (s *Series) Since(i int) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 {
		i = 0
	}
	if i >= len(s.samples) {
		return nil
	}
	return append([]Sample(nil), s.samples[i:]...)
}

// WriteCSV writes the sequence, header first, one row per sample.
func (s *Series) WriteCSV(w io.Writer) error {
	return WriteCSV(w, s.Samples())
}

// ExportCSV writes the sequence to a file at path.
//
// On failure the partial file is removed; the in-memory sequence is never
// touched.
func (s *Series) ExportCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = s.WriteCSV(f)
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(path)
	}
	return err
}

// WriteCSV writes samples as CSV.
//
// Numbers use the shortest representation that parses back to the same
// float64.
func WriteCSV(w io.Writer, samples []Sample) error {
	c := csv.NewWriter(w)
	if err := c.Write(Header); err != nil {
		return err
	}
	row := make([]string, 1+roi.NumTags)
	for _, x := range samples {
		row[0] = strconv.FormatFloat(x.Elapsed, 'f', -1, 64)
		for i, m := range x.Means {
			row[1+i] = strconv.FormatFloat(m, 'f', -1, 64)
		}
		if err := c.Write(row); err != nil {
			return err
		}
	}
	c.Flush()
	return c.Error()
}

// ReadCSV parses what WriteCSV wrote.
func ReadCSV(r io.Reader) ([]Sample, error) {
	c := csv.NewReader(r)
	c.FieldsPerRecord = len(Header)
	rows, err := c.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("series: missing header")
	}
	for i, h := range Header {
		if rows[0][i] != h {
			return nil, fmt.Errorf("series: unexpected column %q", rows[0][i])
		}
	}
	out := make([]Sample, 0, len(rows)-1)
	for l, row := range rows[1:] {
		var x Sample
		if x.Elapsed, err = strconv.ParseFloat(row[0], 64); err != nil {
			return nil, fmt.Errorf("series: line %d: %w", l+2, err)
		}
		for i := range x.Means {
			if x.Means[i], err = strconv.ParseFloat(row[1+i], 64); err != nil {
				return nil, fmt.Errorf("series: line %d: %w", l+2, err)
			}
		}
		out = append(out, x)
	}
	return out, nil
}
