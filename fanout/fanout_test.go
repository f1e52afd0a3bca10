// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/maruel/irspec/frame"
)

func seqFrame(seq uint64) *frame.Frame {
	f := frame.New(2, 2)
	f.Seq = seq
	return f
}

func TestDropOldest(t *testing.T) {
	b := New()
	m := b.Subscribe("slow")
	for i := uint64(1); i <= 3; i++ {
		b.Publish(seqFrame(i))
	}
	f, err := m.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Seq != 3 {
		t.Fatal(f.Seq)
	}
	if s := m.Stats(); s.Delivered != 1 || s.Dropped != 2 {
		t.Fatal(s)
	}
}

func TestIndependent(t *testing.T) {
	b := New()
	fast := b.Subscribe("fast")
	slow := b.Subscribe("slow")
	ctx := context.Background()
	for i := uint64(1); i <= 4; i++ {
		b.Publish(seqFrame(i))
		f, err := fast.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if f.Seq != i {
			t.Fatal(f.Seq, i)
		}
	}
	f, err := slow.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f.Seq != 4 {
		t.Fatal(f.Seq)
	}
	s := b.Stats()
	if len(s) != 2 || s[0].Name != "fast" || s[0].Dropped != 0 || s[1].Dropped != 3 {
		t.Fatal(s)
	}
}

func TestNext_cancel(t *testing.T) {
	b := New()
	m := b.Subscribe("a")
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		_, err = m.Next(ctx)
	}()
	time.Sleep(time.Millisecond)
	cancel()
	wg.Wait()
	if err != context.Canceled {
		t.Fatal(err)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	m := b.Subscribe("a")
	b.Publish(seqFrame(1))
	b.Unsubscribe(m)
	b.Unsubscribe(m)
	if _, err := m.Next(context.Background()); err != ErrClosed {
		t.Fatal(err)
	}
	b.Publish(seqFrame(2))
	if s := b.Stats(); len(s) != 0 {
		t.Fatal(s)
	}
}

func TestSubscribe_replace(t *testing.T) {
	b := New()
	old := b.Subscribe("a")
	n := b.Subscribe("a")
	if _, err := old.Next(context.Background()); err != ErrClosed {
		t.Fatal(err)
	}
	b.Unsubscribe(old)
	b.Publish(seqFrame(1))
	if f, err := n.Next(context.Background()); err != nil || f.Seq != 1 {
		t.Fatal(f, err)
	}
}

func TestClose(t *testing.T) {
	b := New()
	m := b.Subscribe("a")
	b.Close()
	if _, err := m.Next(context.Background()); err != ErrClosed {
		t.Fatal(err)
	}
	if _, err := b.Subscribe("b").Next(context.Background()); err != ErrClosed {
		t.Fatal(err)
	}
}
