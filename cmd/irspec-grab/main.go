// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// irspec-grab captures a single frame, prints the mean of each region and
// saves the annotated image.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/png"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/maruel/irspec/camera"
	"github.com/maruel/irspec/cameratest"
	"github.com/maruel/irspec/config"
	"github.com/maruel/irspec/cvcam"
	"github.com/maruel/irspec/frame"
	"github.com/maruel/irspec/roi"
)

// readFrame retries empty reads, the first frames of a device are often
// missing.
func readFrame(c camera.Camera, timeout time.Duration) (*frame.Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := c.ReadFrame()
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, camera.ErrNoFrame) || time.Now().After(deadline) {
			return nil, err
		}
		log.Printf("%v; retrying", err)
		time.Sleep(10 * time.Millisecond)
	}
}

func mainImpl() error {
	configPath := flag.String("config", "", "path to the config file; defaults to ~/.config/irspec/irspec.json")
	device := flag.Int("device", -1, "camera index; defaults to the config file")
	fake := flag.Bool("fake", false, "use a synthetic camera")
	raw := flag.Bool("raw", false, "save the frame without the region outlines")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to wait for a frame")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if flag.NArg() != 1 {
		return errors.New("supply path to PNG to save")
	}

	if *configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		*configPath = p
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *device >= 0 {
		cfg.Device = *device
	}

	var c camera.Camera
	if *fake {
		c = cameratest.New(cfg.Width, cfg.Height, cfg.FrameRate())
	} else if c, err = cvcam.Open(cfg.Device, cfg.Width, cfg.Height); err != nil {
		return fmt.Errorf("%s\nIf testing without hardware, use -fake to simulate a camera", err)
	}
	defer c.Close()
	f, err := readFrame(c, *timeout)
	if err != nil {
		return err
	}

	rects := roi.NewStore(cfg.Limits(), cfg.Rects()).Snapshot()
	for _, t := range roi.Tags {
		fmt.Printf("%-8s %-20s %.3f\n", t, rects[t], f.Mean(rects[t].Image()))
	}
	if !*raw {
		f = cvcam.Annotate(f, rects)
	}

	out, err := os.Create(flag.Args()[0])
	if err != nil {
		return err
	}
	defer out.Close()
	return png.Encode(out, f)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nirspec-grab: %s.\n", err)
		os.Exit(1)
	}
}
