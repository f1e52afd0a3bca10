// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/maruel/irspec/camera"
	"github.com/maruel/irspec/fanout"
)

// retryDelay is the pause after a read that returned nothing.
const retryDelay = 5 * time.Millisecond

// PumpStats are the device reader statistics.
type PumpStats struct {
	Frames uint64 // Frames published.
	Faults uint64 // Reads that failed; each one was retried.
}

// pump is the only goroutine reading the device.
type pump struct {
	cam camera.Camera
	out *fanout.Broadcaster

	mu    sync.Mutex
	stats PumpStats
}

// run reads frames until ctx is canceled. A read in flight is completed
// before returning, so the device can be released as soon as run returns.
func (p *pump) run(ctx context.Context) {
	var seq uint64
	streak := 0
	for ctx.Err() == nil {
		f, err := p.cam.ReadFrame()
		if err != nil {
			// Only log the first failure of a streak, it can be noisy when the
			// device is unplugged.
			if streak == 0 {
				log.Printf("camera: %v", err)
			}
			streak++
			p.mu.Lock()
			p.stats.Faults++
			p.mu.Unlock()
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
			continue
		}
		if streak != 0 {
			log.Printf("camera: recovered after %d failed reads", streak)
			streak = 0
		}
		seq++
		f.Seq = seq
		p.mu.Lock()
		p.stats.Frames++
		p.mu.Unlock()
		p.out.Publish(f)
	}
}

func (p *pump) Stats() PumpStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
