// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads ~/.config/irspec/irspec.json.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"

	"github.com/maruel/irspec/roi"
	"periph.io/x/periph/conn/physic"
)

// Config is the on disk configuration.
type Config struct {
	Device     int    // Camera index.
	Width      int    // Requested frame width.
	Height     int    // Requested frame height.
	FPS        int    // Recording frame rate.
	Stride     int    // Frames between two samples.
	MinROISize int    // Smallest region width and height.
	VideoDir   string // Where session videos are written.
	Codec      string // FOURCC of the video codec.
	FreezeROIs bool   // Reject region edits during a session.
	SerialPort string // Control link to the camera core, e.g. /dev/ttyUSB0 or COM3.
	Baud       int
	ROIs       ROIs // Geometry at process start.
}

// ROIs is the geometry of each region.
type ROIs struct {
	Sample  roi.Rect
	HotRef  roi.Rect
	ColdRef roi.Rect
}

// Default returns the configuration used when there is no file.
func Default() *Config {
	d := roi.Defaults()
	return &Config{
		Width:      640,
		Height:     480,
		FPS:        20,
		Stride:     15,
		MinROISize: 4,
		VideoDir:   ".",
		Codec:      "XVID",
		Baud:       115200,
		ROIs:       ROIs{Sample: d[roi.Sample], HotRef: d[roi.HotRef], ColdRef: d[roi.ColdRef]},
	}
}

// Normalize replaces invalid values with the defaults and clamps the regions.
func (c *Config) Normalize() {
	def := Default()
	if c.Device < 0 {
		c.Device = 0
	}
	if c.Width <= 0 || c.Height <= 0 {
		c.Width = def.Width
		c.Height = def.Height
	}
	if c.FPS <= 0 {
		c.FPS = def.FPS
	}
	if c.Stride <= 0 {
		c.Stride = def.Stride
	}
	if c.MinROISize <= 0 {
		c.MinROISize = def.MinROISize
	}
	if c.VideoDir == "" {
		c.VideoDir = def.VideoDir
	}
	if len(c.Codec) != 4 {
		c.Codec = def.Codec
	}
	if c.Baud <= 0 {
		c.Baud = def.Baud
	}
	if c.ROIs.Sample == (roi.Rect{}) {
		c.ROIs.Sample = def.ROIs.Sample
	}
	if c.ROIs.HotRef == (roi.Rect{}) {
		c.ROIs.HotRef = def.ROIs.HotRef
	}
	if c.ROIs.ColdRef == (roi.Rect{}) {
		c.ROIs.ColdRef = def.ROIs.ColdRef
	}
	l := c.Limits()
	c.ROIs.Sample = l.Clamp(c.ROIs.Sample)
	c.ROIs.HotRef = l.Clamp(c.ROIs.HotRef)
	c.ROIs.ColdRef = l.Clamp(c.ROIs.ColdRef)
}

// Limits returns the region bounds for the configured frame size.
func (c *Config) Limits() roi.Limits {
	return roi.Limits{FrameWidth: c.Width, FrameHeight: c.Height, MinSize: c.MinROISize}
}

// Rects returns the regions indexed by roi.Tag.
func (c *Config) Rects() [roi.NumTags]roi.Rect {
	return [roi.NumTags]roi.Rect{
		roi.Sample:  c.ROIs.Sample,
		roi.HotRef:  c.ROIs.HotRef,
		roi.ColdRef: c.ROIs.ColdRef,
	}
}

// FrameRate returns FPS as a frequency.
func (c *Config) FrameRate() physic.Frequency {
	return physic.Frequency(c.FPS) * physic.Hertz
}

// Apply sets every region of s to the configured geometry, as if the operator
// moved them. It stops at the first error, e.g. roi.ErrFrozen.
func (c *Config) Apply(s *roi.Store) error {
	r := c.Rects()
	for _, t := range roi.Tags {
		if s.Get(t) == s.Limits().Clamp(r[t]) {
			continue
		}
		if _, err := s.Set(t, r[t]); err != nil {
			return err
		}
	}
	return nil
}

// DefaultPath returns ~/.config/irspec/irspec.json.
func DefaultPath() (string, error) {
	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	return filepath.Join(usr.HomeDir, ".config", "irspec", "irspec.json"), nil
}

// Parse decodes and normalizes a configuration.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if len(bytes.TrimSpace(data)) != 0 {
		if err := json.Unmarshal(data, c); err != nil {
			return nil, err
		}
	}
	c.Normalize()
	return c, nil
}

// Load loads the configuration at path, creating it if missing.
//
// The file is normalized: it is rewritten when it differs from what would be
// written from the decoded values.
func Load(path string) (*Config, error) {
	srcData, err := ioutil.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	c, err := Parse(srcData)
	if err != nil {
		return nil, fmt.Errorf("%s is invalid json: %w", path, err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')
	if !bytes.Equal(srcData, data) {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
		if err := ioutil.WriteFile(path, data, 0600); err != nil {
			return nil, err
		}
	}
	return c, nil
}
