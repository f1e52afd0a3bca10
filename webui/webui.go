// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package webui is the operator console: it displays the annotated stream,
// plots the samples and drives the acquisition over HTTP.
package webui

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/maruel/irspec/frame"
	"github.com/maruel/irspec/pipeline"
	"github.com/maruel/irspec/roi"
	"github.com/maruel/irspec/series"
	"github.com/maruel/serve-dir/loghttp"
	"golang.org/x/net/websocket"
)

// Server is the pipeline.Display and the HTTP handlers.
type Server struct {
	store    *roi.Store
	series   *series.Series
	videoDir string
	now      func() time.Time

	cond      *sync.Cond
	img       *frame.Frame // Most recent annotated frame.
	imgSeq    uint64       // Incremented on each Show().
	sampleSeq uint64       // Incremented on each sample.
	closed    bool
}

// New returns a Server. Samples appended to s are pushed to the streams.
//
// Session videos and CSV exports go in videoDir.
func New(store *roi.Store, s *series.Series, videoDir string) *Server {
	srv := &Server{
		store:    store,
		series:   s,
		videoDir: videoDir,
		now:      time.Now,
		cond:     sync.NewCond(&sync.Mutex{}),
	}
	s.Notify(srv.addSample)
	return srv
}

// Show implements pipeline.Display. It never blocks on the clients, only on
// the lock held for a pointer swap.
func (s *Server) Show(f *frame.Frame) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.img = f
	s.imgSeq++
	s.cond.Broadcast()
}

// Close disconnects all the streams.
func (s *Server) Close() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Handler returns the HTTP handler driving ctl.
//
// Requests are logged, except the websocket stream that needs the raw
// connection.
func (s *Server) Handler(ctl *pipeline.Controller) http.Handler {
	a := &api{srv: s, ctl: ctl}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.root)
	mux.HandleFunc("GET /still.png", s.still)
	mux.HandleFunc("GET /api/state", a.state)
	mux.HandleFunc("GET /api/roi", a.getROIs)
	mux.HandleFunc("POST /api/roi/{tag}", a.setROI)
	mux.HandleFunc("POST /api/live", a.startLive)
	mux.HandleFunc("DELETE /api/live", a.stopLive)
	mux.HandleFunc("POST /api/arm", a.arm)
	mux.HandleFunc("POST /api/acquire", a.acquire)
	mux.HandleFunc("POST /api/stop", a.stop)
	mux.HandleFunc("GET /api/series.csv", a.seriesCSV)
	mux.HandleFunc("POST /api/save", a.save)
	top := http.NewServeMux()
	top.Handle("/stream", websocket.Handler(s.stream))
	top.Handle("/", &loghttp.Handler{Handler: mux})
	return top
}

func (s *Server) addSample(series.Sample) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.sampleSeq++
	s.cond.Broadcast()
}

func (s *Server) last() *frame.Frame {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	return s.img
}

func (s *Server) still(w http.ResponseWriter, r *http.Request) {
	img := s.last()
	if img == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	if err := png.Encode(w, toRGBA(img)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// stream sends the most recent annotated frame and the new samples as
// WebSocket messages.
//
// Message "I" is a base64 JPEG image, "S" a JSON sample, "R" tells the client
// the series was reset and is followed by the whole series again.
func (s *Server) stream(ws *websocket.Conn) {
	log.Printf("websocket from %s", ws.Request().RemoteAddr)
	defer ws.Close()
	// Start with whatever is already there.
	sentImg, sentSample := uint64(math.MaxUint64), uint64(math.MaxUint64)
	sent := 0
	gen := s.series.Generation()
	buf := &bytes.Buffer{}
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	for {
		for !s.closed && s.imgSeq == sentImg && s.sampleSeq == sentSample {
			s.cond.Wait()
		}
		if s.closed {
			return
		}
		var img *frame.Frame
		if s.imgSeq != sentImg {
			img = s.img
		}
		sentImg = s.imgSeq
		sentSample = s.sampleSeq
		s.cond.L.Unlock()
		// Do the actual I/O without the lock.
		var err error
		if img != nil {
			// Frame I is for Image.
			buf.WriteString("I")
			encoder := base64.NewEncoder(base64.StdEncoding, buf)
			if err = jpeg.Encode(encoder, toRGBA(img), &jpeg.Options{Quality: 80}); err == nil {
				encoder.Close()
				_, err = ws.Write(buf.Bytes())
			}
			buf.Reset()
		}
		if err == nil {
			sent, gen, err = s.sendSamples(ws, buf, sent, gen)
		}
		s.cond.L.Lock()
		// To break out of the loop, the lock must be held.
		if err != nil {
			log.Printf("websocket err: %s", err)
			return
		}
	}
}

// sendSamples sends the samples from index sent on and returns the new index.
func (s *Server) sendSamples(ws *websocket.Conn, buf *bytes.Buffer, sent int, gen uint64) (int, uint64, error) {
	if g := s.series.Generation(); g != gen {
		if _, err := ws.Write([]byte("R")); err != nil {
			return sent, gen, err
		}
		sent = 0
		gen = g
	}
	for _, x := range s.series.Since(sent) {
		// Frame S is for Sample.
		buf.WriteString("S")
		err := json.NewEncoder(buf).Encode(&x)
		if err == nil {
			_, err = ws.Write(buf.Bytes())
		}
		buf.Reset()
		if err != nil {
			return sent, gen, err
		}
		sent++
	}
	return sent, gen, nil
}

// toRGBA converts once so the encoders don't go through At() for every
// pixel.
func toRGBA(f *frame.Frame) *image.RGBA {
	out := image.NewRGBA(f.Rect)
	for y := 0; y < f.Height(); y++ {
		src := f.Pix[y*f.Stride : y*f.Stride+3*f.Width()]
		dst := out.Pix[y*out.Stride : y*out.Stride+4*f.Width()]
		for x := 0; x < f.Width(); x++ {
			dst[4*x] = src[3*x+2]
			dst[4*x+1] = src[3*x+1]
			dst[4*x+2] = src[3*x]
			dst[4*x+3] = 255
		}
	}
	return out
}
