// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package webui

import (
	"encoding/json"
	"image"
	"image/png"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maruel/irspec/camera"
	"github.com/maruel/irspec/cameratest"
	"github.com/maruel/irspec/frame"
	"github.com/maruel/irspec/pipeline"
	"github.com/maruel/irspec/record"
	"github.com/maruel/irspec/roi"
	"github.com/maruel/irspec/series"
	"golang.org/x/net/websocket"
	"periph.io/x/periph/conn/physic"
)

func TestROI(t *testing.T) {
	e := newEnv(t)
	var got map[string]roi.Rect
	e.get("/api/roi", http.StatusOK, &got)
	if got["HotRef"] != roi.Defaults()[roi.HotRef] {
		t.Fatal(got)
	}

	data := []struct {
		tag    string
		body   string
		status int
		want   roi.Rect
	}{
		{"red", `{"dx": 10, "dy": -10}`, http.StatusOK, roi.Rect{X: 310, Y: 140, W: 30, H: 30}},
		{"hot", `{"x": 630}`, http.StatusOK, roi.Rect{X: 610, Y: 140, W: 30, H: 30}},
		{"cold", `{"w": 1, "h": 1000}`, http.StatusOK, roi.Rect{X: 150, Y: 0, W: 4, H: 480}},
		{"Sample", `{"x": 0, "y": 0, "w": 20, "h": 20, "dx": 5}`, http.StatusOK, roi.Rect{X: 5, Y: 0, W: 20, H: 20}},
		{"purple", `{}`, http.StatusBadRequest, roi.Rect{}},
		{"green", `{`, http.StatusBadRequest, roi.Rect{}},
	}
	for i, line := range data {
		var r roi.Rect
		e.post("/api/roi/"+line.tag, line.body, line.status, &r)
		if line.status == http.StatusOK && r != line.want {
			t.Fatalf("%d: %s != %s", i, r, line.want)
		}
	}

	e.store.Freeze()
	e.post("/api/roi/red", `{"dx": 1}`, http.StatusConflict, nil)
}

func TestAcquire(t *testing.T) {
	e := newEnv(t)
	var st stateResponse
	e.post("/api/acquire", "", http.StatusOK, &st)
	if st.Stats.State != pipeline.Running || !st.Stats.Live {
		t.Fatal(st.Stats)
	}
	if st.Limits.FrameWidth != 640 || st.Limits.MinSize != 4 {
		t.Fatal(st.Limits)
	}
	e.post("/api/acquire", "", http.StatusConflict, nil)
	e.post("/api/arm", "", http.StatusConflict, nil)
	if n := e.opened(); n != 1 {
		t.Fatal(n)
	}
	if p := e.ctl.Session().VideoPath; filepath.Dir(p) != e.dir || !strings.HasSuffix(p, "_recorded_video.avi") {
		t.Fatal(p)
	}
	waitFor(t, func() bool { return e.series.Len() >= 2 })
	e.post("/api/stop", "", http.StatusOK, &st)
	if st.Stats.State != pipeline.Idle || st.Stats.Live {
		t.Fatal(st.Stats)
	}

	resp, err := http.Get(e.ts.URL + "/api/series.csv")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	l, err := series.ReadCSV(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != e.series.Len() || l[0].Means[roi.Sample] != 100 {
		t.Fatal(l)
	}

	var saved map[string]string
	e.post("/api/save", "", http.StatusOK, &saved)
	f, err := os.Open(saved["path"])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	l2, err := series.ReadCSV(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(l2) != len(l) {
		t.Fatal(l2)
	}
}

func TestAcquire_noRecord(t *testing.T) {
	e := newEnv(t)
	e.post("/api/acquire?record=0", "", http.StatusOK, nil)
	if n := e.opened(); n != 0 {
		t.Fatal(n)
	}
	e.post("/api/stop", "", http.StatusOK, nil)
}

func TestLive(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.ts.URL + "/still.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatal(resp.Status)
	}
	var st stateResponse
	e.post("/api/live", "", http.StatusOK, &st)
	if st.Stats.State != pipeline.Idle || !st.Stats.Live {
		t.Fatal(st.Stats)
	}
	waitFor(t, func() bool { return e.srv.last() != nil })
	resp, err = http.Get(e.ts.URL + "/still.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 640, 480) {
		t.Fatal(img.Bounds())
	}
	// Outline of the default HotRef region.
	if r, g, b, _ := img.At(300, 150).RGBA(); r>>8 != 255 || g != 0 || b != 0 {
		t.Fatal(r, g, b)
	}
	req, _ := http.NewRequest("DELETE", e.ts.URL+"/api/live", nil)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatal(resp2.Status)
	}
}

func TestRoot(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatal(resp.Status)
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	// Region editing controls, bounded by the frame size.
	for _, want := range []string{
		`<tr data-tag="HotRef">`,
		`name="x" min="0" max="640" value="300"`,
		`name="w" min="4" max="640" value="30"`,
		`name="h" min="4" max="480" value="30"`,
		`live.onmousedown`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q", want)
		}
	}
	resp2, err := http.Get(e.ts.URL + "/nothing")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatal(resp2.Status)
	}
}

func TestStream(t *testing.T) {
	e := newEnv(t)
	f := frame.New(8, 6)
	f.Fill(f.Rect, frame.BGR{0, 0, 255})
	e.srv.Show(f)
	if err := e.series.Append(series.Sample{Elapsed: 0.5, Means: [3]float64{1, 2, 3}}); err != nil {
		t.Fatal(err)
	}
	ws, err := websocket.Dial("ws"+strings.TrimPrefix(e.ts.URL, "http")+"/stream", "", e.ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	var msg string
	if err := websocket.Message.Receive(ws, &msg); err != nil {
		t.Fatal(err)
	}
	if msg[0] != 'I' {
		t.Fatal(msg[:1])
	}
	if err := websocket.Message.Receive(ws, &msg); err != nil {
		t.Fatal(err)
	}
	if msg[0] != 'S' {
		t.Fatal(msg)
	}
	var x series.Sample
	if err := json.Unmarshal([]byte(msg[1:]), &x); err != nil {
		t.Fatal(err)
	}
	if x.Elapsed != 0.5 || x.Means[roi.ColdRef] != 3 {
		t.Fatal(x)
	}

	// A new session resets the series.
	e.series.Reset()
	if err := e.series.Append(series.Sample{Elapsed: 0.1}); err != nil {
		t.Fatal(err)
	}
	if err := websocket.Message.Receive(ws, &msg); err != nil {
		t.Fatal(err)
	}
	if msg != "R" {
		t.Fatal(msg)
	}
	if err := websocket.Message.Receive(ws, &msg); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(msg, `S{"t":0.1,`) {
		t.Fatal(msg)
	}
}

//

type env struct {
	t      *testing.T
	dir    string
	store  *roi.Store
	series *series.Series
	srv    *Server
	ctl    *pipeline.Controller
	ts     *httptest.Server

	mu    sync.Mutex
	sinks int
}

func newEnv(t *testing.T) *env {
	e := &env{t: t, dir: t.TempDir(), series: &series.Series{}}
	e.store = roi.NewStore(roi.Limits{FrameWidth: 640, FrameHeight: 480, MinSize: 4}, roi.Defaults())
	e.srv = New(e.store, e.series, e.dir)
	ctl, err := pipeline.New(pipeline.Options{
		Camera: func(int) (camera.Camera, error) {
			c := cameratest.NewConstant(640, 480, frame.BGR{100, 100, 100})
			c.Period = time.Millisecond
			return c, nil
		},
		Recorder: e.open,
		Stride:   2,
		Store:    e.store,
		Series:   e.series,
		Display:  e.srv,
	})
	if err != nil {
		t.Fatal(err)
	}
	e.ctl = ctl
	e.ts = httptest.NewServer(e.srv.Handler(ctl))
	t.Cleanup(func() {
		e.srv.Close()
		e.ts.Close()
		ctl.Close()
	})
	return e
}

func (e *env) open(path string, rate physic.Frequency, size image.Point) (record.Sink, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks++
	return discard{}, nil
}

func (e *env) opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sinks
}

func (e *env) get(path string, status int, out interface{}) {
	e.t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	if err != nil {
		e.t.Fatal(err)
	}
	e.decode(resp, status, out)
}

func (e *env) post(path, body string, status int, out interface{}) {
	e.t.Helper()
	resp, err := http.Post(e.ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		e.t.Fatal(err)
	}
	e.decode(resp, status, out)
}

func (e *env) decode(resp *http.Response, status int, out interface{}) {
	e.t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != status {
		e.t.Fatalf("%s: got %d, want %d", resp.Request.URL, resp.StatusCode, status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			e.t.Fatal(err)
		}
	}
}

type discard struct{}

func (discard) Write(*frame.Frame) error { return nil }
func (discard) Close() error             { return nil }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out")
		}
		time.Sleep(time.Millisecond)
	}
}
