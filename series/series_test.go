// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package series

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func fill(t *testing.T) *Series {
	s := &Series{}
	data := []Sample{
		{0.75, [3]float64{200, 10.5, 0}},
		{1.5000000000000002, [3]float64{1.0 / 3, 255, 127.33333333333333}},
		{2.25, [3]float64{math.SmallestNonzeroFloat64, 1e-7, 123456.789}},
	}
	for _, x := range data {
		if err := s.Append(x); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestAppend_order(t *testing.T) {
	s := fill(t)
	if err := s.Append(Sample{Elapsed: 2.25}); !errors.Is(err, ErrOrder) {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Fatal(s.Len())
	}
	s.Reset()
	if s.Len() != 0 {
		t.Fatal(s.Len())
	}
	if err := s.Append(Sample{Elapsed: 0.1}); err != nil {
		t.Fatal(err)
	}
}

func TestSince(t *testing.T) {
	s := fill(t)
	if l := s.Since(2); len(l) != 1 || l[0].Elapsed != 2.25 {
		t.Fatal(l)
	}
	if l := s.Since(3); l != nil {
		t.Fatal(l)
	}
	l := s.Samples()
	l[0].Elapsed = 42
	if s.Samples()[0].Elapsed != 0.75 {
		t.Fatal("Samples must return a copy")
	}
}

func TestNotify(t *testing.T) {
	s := &Series{}
	var got []Sample
	s.Notify(func(x Sample) { got = append(got, x) })
	s.Append(Sample{Elapsed: 1})
	s.Append(Sample{Elapsed: 1})
	if len(got) != 1 {
		t.Fatal(got)
	}
}

func TestCSV_roundTrip(t *testing.T) {
	s := fill(t)
	b := bytes.Buffer{}
	if err := s.WriteCSV(&b); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(b.String(), "Time (s),Sample,HotRef,ColdRef\n0.75,200,10.5,0\n") {
		t.Fatal(b.String())
	}
	got, err := ReadCSV(&b)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, s.Samples()) {
		t.Fatalf("%v != %v", got, s.Samples())
	}
}

func TestCSV_empty(t *testing.T) {
	b := bytes.Buffer{}
	if err := (&Series{}).WriteCSV(&b); err != nil {
		t.Fatal(err)
	}
	got, err := ReadCSV(&b)
	if err != nil || len(got) != 0 {
		t.Fatal(got, err)
	}
}

func TestReadCSV_bad(t *testing.T) {
	data := []string{
		"",
		"a,b,c,d\n",
		"Time (s),Sample,HotRef,ColdRef\n1,2,3\n",
		"Time (s),Sample,HotRef,ColdRef\n1,2,x,4\n",
	}
	for i, line := range data {
		if _, err := ReadCSV(strings.NewReader(line)); err == nil {
			t.Fatalf("%d: expected error", i)
		}
	}
}

func TestExportCSV(t *testing.T) {
	d := t.TempDir()
	s := fill(t)
	p := filepath.Join(d, "out.csv")
	if err := s.ExportCSV(p); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := ReadCSV(f)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, s.Samples()) {
		t.Fatal(got)
	}
}

func TestExportCSV_unwritable(t *testing.T) {
	s := fill(t)
	p := filepath.Join(t.TempDir(), "missing", "out.csv")
	if err := s.ExportCSV(p); err == nil {
		t.Fatal("expected error")
	}
	if s.Len() != 3 {
		t.Fatal(s.Len())
	}
}
