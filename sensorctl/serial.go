// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensorctl

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
	"periph.io/x/periph/conn"
)

// DefaultBaud is the link speed of the camera core.
const DefaultBaud = 115200

// DefaultTimeout is how long to wait for a response.
const DefaultTimeout = time.Second

// ErrNoResponse is returned when the camera did not answer in time.
var ErrNoResponse = errors.New("sensorctl: no response")

// Port is a serial port implementing conn.Conn.
type Port struct {
	name    string
	port    serial.Port
	timeout time.Duration
}

// OpenSerial opens a serial port, 8N1.
func OpenSerial(name string, baud int) (*Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit})
	if err != nil {
		return nil, fmt.Errorf("sensorctl: opening %s: %w", name, err)
	}
	if err := p.SetReadTimeout(DefaultTimeout); err != nil {
		p.Close()
		return nil, err
	}
	return &Port{name: name, port: p, timeout: DefaultTimeout}, nil
}

// Ports lists the serial ports on the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

func (p *Port) String() string {
	return p.name
}

// Duplex implements conn.Conn.
func (p *Port) Duplex() conn.Duplex {
	return conn.Full
}

// Tx implements conn.Conn. It writes w then reads up to len(r) bytes.
//
// The camera sometimes answers with less than len(r) bytes; the remainder of
// r is zeroed. Only a complete absence of response is an error.
func (p *Port) Tx(w, r []byte) error {
	if len(w) != 0 {
		if err := p.port.ResetInputBuffer(); err != nil {
			return err
		}
		for b := w; len(b) != 0; {
			n, err := p.port.Write(b)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	got := 0
	deadline := time.Now().Add(p.timeout)
	for got < len(r) && time.Now().Before(deadline) {
		n, err := p.port.Read(r[got:])
		if err != nil {
			return err
		}
		if n == 0 {
			// Read timed out.
			break
		}
		got += n
	}
	for i := got; i < len(r); i++ {
		r[i] = 0
	}
	if got == 0 && len(r) != 0 {
		return ErrNoResponse
	}
	return nil
}

// Close closes the port.
func (p *Port) Close() error {
	return p.port.Close()
}

var _ conn.Conn = &Port{}
