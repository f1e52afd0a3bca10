// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package webui

import (
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"path/filepath"

	"github.com/maruel/irspec/pipeline"
	"github.com/maruel/irspec/record"
	"github.com/maruel/irspec/roi"
)

type api struct {
	srv *Server
	ctl *pipeline.Controller
}

// roiRequest edits one region. Absolute position and size are applied first,
// then the relative move.
type roiRequest struct {
	X  *int `json:"x"`
	Y  *int `json:"y"`
	W  *int `json:"w"`
	H  *int `json:"h"`
	DX int  `json:"dx"`
	DY int  `json:"dy"`
}

type stateResponse struct {
	Stats  pipeline.Stats      `json:"stats"`
	ROIs   map[string]roi.Rect `json:"rois"`
	Limits roi.Limits          `json:"limits"`
	Frozen bool                `json:"frozen"`
}

func (a *api) rois() map[string]roi.Rect {
	snap := a.srv.store.Snapshot()
	out := make(map[string]roi.Rect, len(snap))
	for _, t := range roi.Tags {
		out[t.String()] = snap[t]
	}
	return out
}

func (a *api) stateResp() *stateResponse {
	st := a.srv.store
	return &stateResponse{Stats: a.ctl.Stats(), ROIs: a.rois(), Limits: st.Limits(), Frozen: st.Frozen()}
}

func (a *api) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := rootTmpl.Execute(w, a.stateResp()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *api) state(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, a.stateResp())
}

func (a *api) getROIs(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, a.rois())
}

func (a *api) setROI(w http.ResponseWriter, r *http.Request) {
	t, err := roi.ParseTag(r.PathValue("tag"))
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	req := roiRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	st := a.srv.store
	cur := st.Get(t)
	if req.X != nil || req.Y != nil {
		x, y := cur.X, cur.Y
		if req.X != nil {
			x = *req.X
		}
		if req.Y != nil {
			y = *req.Y
		}
		cur, err = st.SetPosition(t, x, y)
	}
	if err == nil && (req.W != nil || req.H != nil) {
		width, height := cur.W, cur.H
		if req.W != nil {
			width = *req.W
		}
		if req.H != nil {
			height = *req.H
		}
		cur, err = st.SetSize(t, width, height)
	}
	if err == nil && (req.DX != 0 || req.DY != 0) {
		cur, err = st.Move(t, req.DX, req.DY)
	}
	if err != nil {
		sendError(w, statusOf(err), err)
		return
	}
	sendJSON(w, http.StatusOK, cur)
}

func (a *api) startLive(w http.ResponseWriter, r *http.Request) {
	a.do(w, a.ctl.StartLive)
}

func (a *api) stopLive(w http.ResponseWriter, r *http.Request) {
	a.do(w, a.ctl.StopLive)
}

func (a *api) arm(w http.ResponseWriter, r *http.Request) {
	a.do(w, a.ctl.Arm)
}

// acquire starts a session. The video is not recorded with ?record=0.
func (a *api) acquire(w http.ResponseWriter, r *http.Request) {
	p := ""
	if r.FormValue("record") != "0" {
		p = record.VideoPath(a.srv.videoDir, a.srv.now())
	}
	a.do(w, func() error { return a.ctl.Start(p) })
}

func (a *api) stop(w http.ResponseWriter, r *http.Request) {
	a.do(w, a.ctl.Stop)
}

func (a *api) seriesCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="spectrum.csv"`)
	if err := a.srv.series.WriteCSV(w); err != nil {
		log.Printf("series.csv: %v", err)
	}
}

// save exports the series next to the videos.
func (a *api) save(w http.ResponseWriter, r *http.Request) {
	p := filepath.Join(a.srv.videoDir, a.srv.now().Format("2006_01_02_15_04_05")+"_spectrum.csv")
	if err := a.srv.series.ExportCSV(p); err != nil {
		sendError(w, http.StatusInternalServerError, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"path": p})
}

// do runs a controller transition and replies with the new state.
func (a *api) do(w http.ResponseWriter, f func() error) {
	if err := f(); err != nil {
		sendError(w, statusOf(err), err)
		return
	}
	sendJSON(w, http.StatusOK, a.stateResp())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, roi.ErrFrozen), errors.Is(err, pipeline.ErrRunning), errors.Is(err, pipeline.ErrState):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrClosed), errors.Is(err, pipeline.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json: %v", err)
	}
}

func sendError(w http.ResponseWriter, status int, err error) {
	sendJSON(w, status, map[string]string{"error": err.Error()})
}

var rootTmpl = template.Must(template.New("root").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>irspec</title>
	<style>
		img.large {
			width: 640px;
			height: auto;
		}
		canvas {
			border: 1px solid #ccc;
		}
	</style>
</head>
<body>
	<img class="large" id="live" src="/still.png" draggable="false"><br>
	<button onclick="post('/api/live')">Live</button>
	<button onclick="post('/api/acquire')">Acquire</button>
	<button onclick="post('/api/stop')">Stop</button>
	<button onclick="post('/api/save')">Save</button>
	<a href="/api/series.csv">series.csv</a>
	<br>
	<span id="state">{{.Stats.State}}</span>
	<table id="rois">
	{{range $name, $r := .ROIs}}
		<tr data-tag="{{$name}}">
			<td>{{$name}}</td>
			<td>x <input type="number" name="x" min="0" max="{{$.Limits.FrameWidth}}" value="{{$r.X}}"></td>
			<td>y <input type="number" name="y" min="0" max="{{$.Limits.FrameHeight}}" value="{{$r.Y}}"></td>
			<td>w <input type="range" name="w" min="{{$.Limits.MinSize}}" max="{{$.Limits.FrameWidth}}" value="{{$r.W}}"></td>
			<td>h <input type="range" name="h" min="{{$.Limits.MinSize}}" max="{{$.Limits.FrameHeight}}" value="{{$r.H}}"></td>
		</tr>
	{{end}}
	</table>
	<canvas id="plot" width="640" height="240"></canvas>
	<script>
	function post(url) {
		fetch(url, {method: "POST"}).then(r => r.json()).then(j => {
			document.getElementById("state").textContent = j.error || j.stats.State;
		});
	}
	var rois = {{.ROIs}};
	function editROI(tag, req) {
		return fetch("/api/roi/" + tag, {method: "POST", body: JSON.stringify(req)}).then(r => r.json()).then(j => {
			if (j.error) {
				document.getElementById("state").textContent = j.error;
				return;
			}
			rois[tag] = j;
			var row = document.querySelector("tr[data-tag=" + tag + "]");
			["x", "y", "w", "h"].forEach(k => row.querySelector("input[name=" + k + "]").value = j[k]);
		});
	}
	document.querySelectorAll("#rois input").forEach(input => {
		input.onchange = function() {
			var req = {};
			req[input.name] = parseInt(input.value, 10);
			editROI(input.closest("tr").dataset.tag, req);
		};
	});
	// Drag a region on the live image.
	var live = document.getElementById("live");
	var drag = null;
	function imagePos(e) {
		var b = live.getBoundingClientRect();
		var s = live.naturalWidth / b.width;
		return {x: Math.round((e.clientX - b.left) * s), y: Math.round((e.clientY - b.top) * s)};
	}
	live.onmousedown = function(e) {
		var p = imagePos(e);
		for (var tag in rois) {
			var r = rois[tag];
			if (p.x >= r.x && p.x < r.x + r.w && p.y >= r.y && p.y < r.y + r.h) {
				drag = {tag: tag, last: p, busy: false};
				return;
			}
		}
	};
	live.onmousemove = function(e) {
		if (!drag || drag.busy) {
			return;
		}
		var p = imagePos(e);
		var req = {dx: p.x - drag.last.x, dy: p.y - drag.last.y};
		if (req.dx == 0 && req.dy == 0) {
			return;
		}
		drag.last = p;
		drag.busy = true;
		var d = drag;
		editROI(d.tag, req).finally(() => d.busy = false);
	};
	document.onmouseup = function() {
		drag = null;
	};
	var samples = [];
	var colors = ["rgb(143,235,52)", "rgb(255,0,0)", "rgb(0,0,255)"];
	function plot() {
		var c = document.getElementById("plot");
		var ctx = c.getContext("2d");
		ctx.clearRect(0, 0, c.width, c.height);
		if (samples.length < 2) {
			return;
		}
		var tmax = samples[samples.length-1].t;
		for (var i = 0; i < 3; i++) {
			ctx.strokeStyle = colors[i];
			ctx.beginPath();
			samples.forEach((s, j) => {
				var x = s.t / tmax * c.width;
				var y = c.height - s.means[i] / 255 * c.height;
				if (j == 0) {
					ctx.moveTo(x, y);
				} else {
					ctx.lineTo(x, y);
				}
			});
			ctx.stroke();
		}
	}
	var ws = new WebSocket("ws://" + location.host + "/stream");
	ws.onmessage = function(e) {
		var kind = e.data[0];
		var data = e.data.substring(1);
		if (kind == "I") {
			document.getElementById("live").src = "data:image/jpeg;base64," + data;
		} else if (kind == "S") {
			samples.push(JSON.parse(data));
			plot();
		} else if (kind == "R") {
			samples = [];
			plot();
		}
	};
	</script>
</body>
</html>
`))
