// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensorctl configures the infrared camera core over its serial
// control link.
//
// Each request is a packet:
//
//	0xF0, size, device, class, subclass, rw, data..., checksum, 0xFF
//
// where size counts the bytes from device to the end of data and checksum is
// the low 8 bits of their sum. The camera answers with a packet of the same
// format.
package sensorctl

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/periph/conn"
)

// Packet delimiters.
const (
	Begin byte = 0xF0
	End   byte = 0xFF
)

// ResponseSize is the number of bytes read back after each command.
const ResponseSize = 10

// Address of the camera core on the link.
const DeviceAddr byte = 0x36

// Read/write flag values.
const (
	Write byte = 0x00
	Read  byte = 0x01
)

var (
	// ErrChecksum is returned when a packet checksum does not match.
	ErrChecksum = errors.New("sensorctl: invalid checksum")
	// ErrFraming is returned when the delimiters or size are invalid.
	ErrFraming = errors.New("sensorctl: invalid packet framing")
)

// Packet is one command or response.
type Packet struct {
	Dev   byte
	Class byte
	Sub   byte
	RW    byte
	Data  []byte
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet{%#02x %#02x %#02x rw=%d % x}", p.Dev, p.Class, p.Sub, p.RW, p.Data)
}

// payload is what size and checksum cover.
func (p *Packet) payload() []byte {
	return append([]byte{p.Dev, p.Class, p.Sub, p.RW}, p.Data...)
}

// Checksum returns the low 8 bits of the sum of b.
func Checksum(b []byte) byte {
	var c byte
	for _, v := range b {
		c += v
	}
	return c
}

// Encode returns the wire representation of p.
func Encode(p *Packet) []byte {
	pl := p.payload()
	out := make([]byte, 0, len(pl)+4)
	out = append(out, Begin, byte(len(pl)))
	out = append(out, pl...)
	return append(out, Checksum(pl), End)
}

// Decode parses the first packet in b. It returns the number of bytes
// consumed.
func Decode(b []byte) (*Packet, int, error) {
	if len(b) < 2 || b[0] != Begin {
		return nil, 0, ErrFraming
	}
	size := int(b[1])
	if size < 4 || len(b) < size+4 || b[size+3] != End {
		return nil, 0, ErrFraming
	}
	pl := b[2 : 2+size]
	if Checksum(pl) != b[2+size] {
		return nil, 0, ErrChecksum
	}
	p := &Packet{Dev: pl[0], Class: pl[1], Sub: pl[2], RW: pl[3]}
	if size > 4 {
		p.Data = append([]byte(nil), pl[4:]...)
	}
	return p, size + 4, nil
}

// ShutterMode is the automatic shutter (flat field correction) policy.
type ShutterMode byte

// Valid values for ShutterMode.
const (
	ShutterManual   ShutterMode = 0 // Automatic shutter disabled.
	ShutterTiming   ShutterMode = 1 // Periodic.
	ShutterTempDiff ShutterMode = 2 // On temperature drift.
	ShutterAuto     ShutterMode = 3 // Both; the factory default.
)

func (s ShutterMode) String() string {
	switch s {
	case ShutterManual:
		return "Manual"
	case ShutterTiming:
		return "Timing"
	case ShutterTempDiff:
		return "TempDiff"
	case ShutterAuto:
		return "Auto"
	default:
		return fmt.Sprintf("ShutterMode(%d)", byte(s))
	}
}

// Dev is a camera core on a control link.
type Dev struct {
	mu sync.Mutex
	c  conn.Conn
}

// New returns a Dev talking over c.
func New(c conn.Conn) *Dev {
	return &Dev{c: c}
}

func (d *Dev) String() string {
	return fmt.Sprintf("sensorctl(%s)", d.c)
}

// Command sends p and returns the raw response.
//
// A response that is a well formed packet with an invalid checksum returns
// ErrChecksum. The vendor does not document the response content so anything
// else is returned as is.
func (d *Dev) Command(p *Packet) ([]byte, error) {
	w := Encode(p)
	r := make([]byte, ResponseSize)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.c.Tx(w, r); err != nil {
		return nil, fmt.Errorf("sensorctl: %s: %w", p, err)
	}
	if _, _, err := Decode(r); err == ErrChecksum {
		return r, err
	}
	return r, nil
}

// SetShutterMode sets the automatic shutter policy.
func (d *Dev) SetShutterMode(m ShutterMode) error {
	if m > ShutterAuto {
		return fmt.Errorf("sensorctl: invalid shutter mode %d", m)
	}
	_, err := d.Command(&Packet{Dev: DeviceAddr, Class: 0x7C, Sub: 0x04, RW: Write, Data: []byte{byte(m)}})
	return err
}

// SetBrightness sets the brightness, 0 to 100.
func (d *Dev) SetBrightness(v int) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("sensorctl: brightness %d out of range [0, 100]", v)
	}
	_, err := d.Command(&Packet{Dev: DeviceAddr, Class: 0x78, Sub: 0x02, RW: Write, Data: []byte{byte(v)}})
	return err
}

// SetContrast sets the contrast, 0 to 100.
func (d *Dev) SetContrast(v int) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("sensorctl: contrast %d out of range [0, 100]", v)
	}
	_, err := d.Command(&Packet{Dev: DeviceAddr, Class: 0x78, Sub: 0x03, RW: Write, Data: []byte{byte(v)}})
	return err
}

// SaveSettings persists the current settings in the core's flash.
func (d *Dev) SaveSettings() error {
	_, err := d.Command(&Packet{Dev: DeviceAddr, Class: 0x74, Sub: 0x10, RW: Write, Data: []byte{0x00}})
	return err
}

// query sends a read request for one setting and returns the first data byte
// of the answer.
func (d *Dev) query(class, sub byte) (byte, error) {
	p := &Packet{Dev: DeviceAddr, Class: class, Sub: sub, RW: Read}
	raw, err := d.Command(p)
	if err != nil {
		return 0, err
	}
	r, _, err := Decode(raw)
	if err != nil {
		return 0, fmt.Errorf("sensorctl: %s: %w", p, err)
	}
	if r.Class != class || r.Sub != sub || len(r.Data) == 0 {
		return 0, fmt.Errorf("sensorctl: %s: unexpected answer %s", p, r)
	}
	return r.Data[0], nil
}

// ShutterMode reads back the automatic shutter policy.
func (d *Dev) ShutterMode() (ShutterMode, error) {
	v, err := d.query(0x7C, 0x04)
	if err != nil {
		return 0, err
	}
	if m := ShutterMode(v); m <= ShutterAuto {
		return m, nil
	}
	return 0, fmt.Errorf("sensorctl: invalid shutter mode %d", v)
}

// Brightness reads back the brightness.
func (d *Dev) Brightness() (int, error) {
	v, err := d.query(0x78, 0x02)
	return int(v), err
}

// Contrast reads back the contrast.
func (d *Dev) Contrast() (int, error) {
	v, err := d.query(0x78, 0x03)
	return int(v), err
}
