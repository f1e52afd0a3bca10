// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// irspec measures the regions of interest of a thermal camera stream in real
// time and serves the operator console.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/maruel/interrupt"
	"github.com/maruel/irspec/camera"
	"github.com/maruel/irspec/cameratest"
	"github.com/maruel/irspec/config"
	"github.com/maruel/irspec/cvcam"
	"github.com/maruel/irspec/pipeline"
	"github.com/maruel/irspec/roi"
	"github.com/maruel/irspec/series"
	"github.com/maruel/irspec/webui"
)

func mainImpl() error {
	cpuprofile := flag.String("cpuprofile", "", "dump CPU profile in file")
	port := flag.Int("port", 8010, "http port to listen on")
	configPath := flag.String("config", "", "path to the config file; defaults to ~/.config/irspec/irspec.json")
	fake := flag.Bool("fake", false, "use a synthetic camera")
	startLive := flag.Bool("live", false, "start the preview immediately")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	interrupt.HandleCtrlC()

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
	if err := os.MkdirAll(cfg.VideoDir, 0755); err != nil {
		return err
	}

	store := roi.NewStore(cfg.Limits(), cfg.Rects())
	s := &series.Series{}
	srv := webui.New(store, s, cfg.VideoDir)
	defer srv.Close()

	var opener camera.Opener = cvcam.Opener(cfg.Width, cfg.Height)
	if *fake {
		opener = func(int) (camera.Camera, error) {
			return cameratest.New(cfg.Width, cfg.Height, cfg.FrameRate()), nil
		}
	}
	ctl, err := pipeline.New(pipeline.Options{
		Camera:      opener,
		DeviceIndex: cfg.Device,
		Recorder:    cvcam.VideoOpener(cfg.Codec),
		FrameRate:   cfg.FrameRate(),
		Stride:      cfg.Stride,
		Store:       store,
		Series:      s,
		Display:     srv,
		Annotate:    cvcam.Annotate,
		FreezeROIs:  cfg.FreezeROIs,
	})
	if err != nil {
		return err
	}
	defer ctl.Close()
	if *startLive {
		if err := ctl.StartLive(); err != nil {
			return fmt.Errorf("%s\nIf testing without hardware, use -fake to simulate a camera", err)
		}
	}

	go watchConfig(*configPath, store)

	hs := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: srv.Handler(ctl)}
	errc := make(chan error, 1)
	go func() {
		errc <- hs.ListenAndServe()
	}()
	fmt.Printf("Listening on %d\n", *port)

	for !interrupt.IsSet() {
		st := ctl.Stats()
		fmt.Printf("\r%-7s %d frames %d faults %d samples", st.State, st.Pump.Frames, st.Pump.Faults, st.Samples)
		select {
		case <-interrupt.Channel:
		case err := <-errc:
			fmt.Print("\n")
			return err
		case <-time.After(time.Second):
		}
	}
	fmt.Print("\n")
	hs.Close()
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctl.Close()
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nirspec: %s.\n", err)
		os.Exit(1)
	}
}
