package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/voxel.report/internal/monitoring"
	"github.com/banshee-data/voxel.report/internal/timeutil"
	"github.com/banshee-data/voxel.report/internal/voxel/l2space"
	"github.com/banshee-data/voxel.report/internal/voxel/pipeline"
)

// WebServer handles the HTTP interface for monitoring a reconstruction.
// It is a pipeline.FrameSink: every recorded frame replaces the current
// view and extends the trails.
type WebServer struct {
	address string
	space   *l2space.Space
	clock   timeutil.Clock
	mux     *http.ServeMux
	server  *http.Server
	started time.Time

	mu         sync.RWMutex
	latest     *pipeline.FrameResult
	voxels     [][]r2.Vec
	trails     [][]r2.Vec
	frames     int
	degenerate int
	modes      map[string]int
}

var _ pipeline.FrameSink = (*WebServer)(nil)

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address string
	// Space maps voxel indices in frame results to floor positions.
	Space *l2space.Space
	// K is the number of identities.
	K     int
	Clock timeutil.Clock
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ws := &WebServer{
		address: config.Address,
		space:   config.Space,
		clock:   clock,
		started: clock.Now(),
		voxels:  make([][]r2.Vec, config.K),
		trails:  make([][]r2.Vec, config.K),
		modes:   make(map[string]int),
	}
	ws.mux = ws.setupRoutes()
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.mux,
	}
	return ws
}

// Mux returns the server's route table so other packages can mount
// admin handlers next to the monitor.
func (ws *WebServer) Mux() *http.ServeMux { return ws.mux }

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/debug/voxel/status", ws.handleStatus)
	mux.HandleFunc("/debug/voxel/floor", ws.handleFloorChart)
	mux.HandleFunc("/debug/voxel/trails.png", ws.handleTrailPlot)
	return mux
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

// RecordFrame implements pipeline.FrameSink.
func (ws *WebServer) RecordFrame(_ context.Context, res *pipeline.FrameResult) error {
	voxels := make([][]r2.Vec, len(ws.voxels))
	if ws.space != nil {
		for i, vi := range res.Retained {
			if i >= len(res.Labels) {
				break
			}
			id := res.Labels[i]
			if id < 0 || id >= len(voxels) {
				continue
			}
			voxels[id] = append(voxels[id], ws.space.Voxels[vi].Floor())
		}
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.latest = res
	ws.frames++
	ws.modes[res.Mode.String()]++
	if res.Degenerate {
		ws.degenerate++
		return nil
	}
	ws.voxels = voxels
	if res.Assignment != nil {
		for id, c := range res.Centers {
			if id < len(ws.trails) {
				ws.trails[id] = append(ws.trails[id], c)
			}
		}
	}
	return nil
}

// Status is the JSON body of /debug/voxel/status.
type Status struct {
	Frames       int            `json:"frames"`
	Degenerate   int            `json:"degenerate_frames"`
	Modes        map[string]int `json:"modes"`
	Uptime       string         `json:"uptime"`
	LastFrame    *int           `json:"last_frame,omitempty"`
	State        string         `json:"state,omitempty"`
	Mode         string         `json:"mode,omitempty"`
	Visible      int            `json:"visible"`
	Retained     int            `json:"retained"`
	Total        float64        `json:"total_distance"`
	Centers      [][2]float64   `json:"centers,omitempty"`
	TrailLengths []int          `json:"trail_lengths"`
	LastDuration string         `json:"last_duration,omitempty"`
}

// Status returns the current monitor view.
func (ws *WebServer) Status() Status {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	st := Status{
		Frames:       ws.frames,
		Degenerate:   ws.degenerate,
		Modes:        make(map[string]int, len(ws.modes)),
		Uptime:       ws.clock.Since(ws.started).Round(time.Second).String(),
		TrailLengths: make([]int, len(ws.trails)),
	}
	for m, n := range ws.modes {
		st.Modes[m] = n
	}
	for id, t := range ws.trails {
		st.TrailLengths[id] = len(t)
	}
	if res := ws.latest; res != nil {
		idx := res.Index
		st.LastFrame = &idx
		st.State = res.State.String()
		st.Mode = res.Mode.String()
		st.Visible = len(res.Visible)
		st.Retained = len(res.Retained)
		st.Total = res.Total
		st.LastDuration = res.Duration.String()
		for _, c := range res.Centers {
			st.Centers = append(st.Centers, [2]float64{c.X, c.Y})
		}
	}
	return st
}

func (ws *WebServer) view() (voxels, trails [][]r2.Vec) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	voxels = make([][]r2.Vec, len(ws.voxels))
	for id, v := range ws.voxels {
		voxels[id] = append([]r2.Vec(nil), v...)
	}
	trails = make([][]r2.Vec, len(ws.trails))
	for id, t := range ws.trails {
		trails[id] = append([]r2.Vec(nil), t...)
	}
	return voxels, trails
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "voxel", "timestamp": "%s"}`, ws.clock.Now().UTC().Format(time.RFC3339))
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ws.Status()); err != nil {
		monitoring.Logf("encode status: %v", err)
	}
}

func (ws *WebServer) handleTrailPlot(w http.ResponseWriter, r *http.Request) {
	_, trails := ws.view()
	w.Header().Set("Content-Type", "image/png")
	if _, err := writeTrailPNG(w, "Identity trails", trails); err != nil {
		monitoring.Logf("render trail plot: %v", err)
	}
}
