// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// irspec-ctl uses the serial control link to configure the camera core.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/maruel/irspec/config"
	"github.com/maruel/irspec/sensorctl"
)

func mainImpl() error {
	configPath := flag.String("config", "", "path to the config file; defaults to ~/.config/irspec/irspec.json")
	port := flag.String("port", "", "serial port; defaults to the config file")
	baud := flag.Int("baud", 0, "serial speed; defaults to the config file")
	list := flag.Bool("list", false, "list the serial ports and exit")
	shutter := flag.Int("shutter", -1, "shutter mode: 0 manual, 1 timing, 2 temperature difference, 3 auto")
	brightness := flag.Int("brightness", -1, "brightness, 0 to 100")
	contrast := flag.Int("contrast", -1, "contrast, 0 to 100")
	save := flag.Bool("save", false, "persist the settings in the camera core")
	query := flag.Bool("query", false, "print the current settings")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	if *list {
		ports, err := sensorctl.Ports()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}
	if *shutter < 0 && *brightness < 0 && *contrast < 0 && !*save && !*query {
		return errors.New("nothing to do; use -shutter, -brightness, -contrast, -save or -query")
	}

	if *port == "" || *baud == 0 {
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
		if *port == "" {
			*port = cfg.SerialPort
		}
		if *baud == 0 {
			*baud = cfg.Baud
		}
	}
	if *port == "" {
		return errors.New("no serial port; use -port or set SerialPort in the config file")
	}

	p, err := sensorctl.OpenSerial(*port, *baud)
	if err != nil {
		return err
	}
	defer p.Close()
	dev := sensorctl.New(p)
	log.Printf("using %s", dev)
	if *shutter >= 0 {
		m := sensorctl.ShutterMode(*shutter)
		if err := dev.SetShutterMode(m); err != nil {
			return err
		}
		fmt.Printf("Shutter:    %s\n", m)
	}
	if *brightness >= 0 {
		if err := dev.SetBrightness(*brightness); err != nil {
			return err
		}
		fmt.Printf("Brightness: %d\n", *brightness)
	}
	if *contrast >= 0 {
		if err := dev.SetContrast(*contrast); err != nil {
			return err
		}
		fmt.Printf("Contrast:   %d\n", *contrast)
	}
	if *save {
		if err := dev.SaveSettings(); err != nil {
			return err
		}
		fmt.Printf("Saved\n")
	}
	if *query {
		m, err := dev.ShutterMode()
		if err != nil {
			return err
		}
		fmt.Printf("Shutter:    %s\n", m)
		b, err := dev.Brightness()
		if err != nil {
			return err
		}
		fmt.Printf("Brightness: %d\n", b)
		c, err := dev.Contrast()
		if err != nil {
			return err
		}
		fmt.Printf("Contrast:   %d\n", c)
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nirspec-ctl: %s.\n", err)
		os.Exit(1)
	}
}
