// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fanout shares the frames of a single device reader with several
// independent consumers.
//
// Each consumer gets a Mailbox holding at most one frame. When the consumer
// is slower than the device, the unread frame is replaced by the newer one
// and counted as dropped, so a slow consumer never slows down the reader nor
// the other consumers.
//
// Frames are shared between mailboxes as is. Consumers must treat them as
// read only and Clone() before drawing on them.
package fanout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/maruel/irspec/frame"
)

// ErrClosed is returned by Mailbox.Next once the mailbox was unsubscribed or
// the broadcaster closed.
var ErrClosed = errors.New("fanout: mailbox closed")

// Stats is the delivery statistics of one mailbox.
type Stats struct {
	Name      string
	Delivered uint64 // Frames returned by Next.
	Dropped   uint64 // Frames replaced before being read.
}

// Broadcaster distributes published frames to all subscribed mailboxes.
//
// Safe for concurrent use.
type Broadcaster struct {
	mu     sync.Mutex
	boxes  map[string]*Mailbox
	closed bool
}

// New returns an empty Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{boxes: map[string]*Mailbox{}}
}

// Subscribe returns a new mailbox. A previous mailbox with the same name is
// unsubscribed.
func (b *Broadcaster) Subscribe(name string) *Mailbox {
	m := &Mailbox{name: name, ch: make(chan *frame.Frame, 1), done: make(chan struct{})}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		m.close()
		return m
	}
	if old := b.boxes[name]; old != nil {
		old.close()
	}
	b.boxes[name] = m
	return m
}

// Unsubscribe removes m. Its pending and future Next calls return ErrClosed.
//
// It is fine to call it multiple times.
func (b *Broadcaster) Unsubscribe(m *Mailbox) {
	b.mu.Lock()
	if b.boxes[m.name] == m {
		delete(b.boxes, m.name)
	}
	b.mu.Unlock()
	m.close()
}

// Publish hands f to every mailbox without blocking.
func (b *Broadcaster) Publish(f *frame.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.boxes {
		m.put(f)
	}
}

// Close unsubscribes every mailbox.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for n, m := range b.boxes {
		m.close()
		delete(b.boxes, n)
	}
}

// Stats returns the statistics of the currently subscribed mailboxes, sorted
// by name.
func (b *Broadcaster) Stats() []Stats {
	b.mu.Lock()
	out := make([]Stats, 0, len(b.boxes))
	for _, m := range b.boxes {
		out = append(out, m.Stats())
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Mailbox is the receiving end for one consumer.
//
// Next must be called from a single goroutine.
type Mailbox struct {
	name string
	ch   chan *frame.Frame
	done chan struct{}
	once sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Name is the name used at Subscribe.
func (m *Mailbox) Name() string {
	return m.name
}

// Next blocks until a frame is available, ctx is canceled or the mailbox is
// closed.
func (m *Mailbox) Next(ctx context.Context) (*frame.Frame, error) {
	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}
	select {
	case f := <-m.ch:
		m.delivered.Add(1)
		return f, nil
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns the mailbox statistics.
func (m *Mailbox) Stats() Stats {
	return Stats{
		Name:      m.name,
		Delivered: m.delivered.Load(),
		Dropped:   m.dropped.Load(),
	}
}

// put must be called with the broadcaster lock held; it is the only sender.
func (m *Mailbox) put(f *frame.Frame) {
	select {
	case m.ch <- f:
		return
	default:
	}
	// Full: replace the unread frame.
	select {
	case <-m.ch:
		m.dropped.Add(1)
	default:
		// The consumer took it in the meantime.
	}
	m.ch <- f
}

func (m *Mailbox) close() {
	m.once.Do(func() { close(m.done) })
}
