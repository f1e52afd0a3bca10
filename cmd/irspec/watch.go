// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"log"

	"github.com/maruel/interrupt"
	"github.com/maruel/irspec/config"
	"github.com/maruel/irspec/roi"
)

// watchConfig applies the region edits made to the config file until
// interrupted. Edits are rejected while a session freezes the regions.
func watchConfig(path string, store *roi.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-interrupt.Channel
		cancel()
	}()
	err := config.Watch(ctx, path, func(c *config.Config) {
		if err := c.Apply(store); err != nil {
			log.Printf("%s: %v", path, err)
			return
		}
		log.Printf("%s: regions %s", path, c.ROIs)
	})
	if err != nil {
		log.Printf("watching %s: %v", path, err)
	}
}
