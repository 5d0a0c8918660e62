package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/chazu/warden/isolate"
)

// Service implements the HTTP JSON surface over one isolate: the setup
// and mutation entry points, handle-based cell access, yield windows,
// snapshots and stats.
type Service struct {
	worker  *Worker
	handles *HandleStore
}

// NewService creates a Service.
func NewService(worker *Worker, handles *HandleStore) *Service {
	return &Service{worker: worker, handles: handles}
}

func (s *Service) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/setup", s.setup)
	mux.HandleFunc("POST /v1/start", s.start)
	mux.HandleFunc("POST /v1/mutate", s.mutate)
	mux.HandleFunc("GET /v1/value", s.value)
	mux.HandleFunc("POST /v1/yield", s.yield)
	mux.HandleFunc("GET /v1/cells/{id}", s.cell)
	mux.HandleFunc("DELETE /v1/cells/{id}", s.releaseCell)
	mux.HandleFunc("GET /v1/snapshot", s.snapshot)
	mux.HandleFunc("GET /v1/stats", s.stats)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, isolate.ErrAlreadySetup):
		status = http.StatusConflict
	case errors.Is(err, isolate.ErrNotSetup):
		status = http.StatusPreconditionFailed
	case errors.Is(err, isolate.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	log.Errorf("request failed: %v", err)
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type setupRequest struct {
	Fields map[string]float64 `json:"fields"`
	// PeriodMS and Step only apply to /v1/start.
	PeriodMS int     `json:"period_ms,omitempty"`
	Step     float64 `json:"step,omitempty"`
}

type setupResponse struct {
	Handle string `json:"handle"`
	CellID uint64 `json:"cell_id"`
}

// allocShared allocates the cell described by req, defaulting to the
// isolate's shared field at zero.
func (s *Service) allocShared(req *setupRequest) (*isolate.Cell, error) {
	fields := req.Fields
	if len(fields) == 0 {
		fields = map[string]float64{s.worker.Isolate().Field(): 0}
	}
	return s.worker.Isolate().Alloc(fields)
}

// setup records a new cell as the shared cell. One setup per isolate.
func (s *Service) setup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := s.allocShared(&req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.worker.Isolate().Setup(c); err != nil {
		writeError(w, err)
		return
	}

	id := s.handles.Create(c)
	log.Infof("shared cell %d registered, handle %s", c.ID(), id)
	writeJSON(w, http.StatusOK, setupResponse{Handle: id, CellID: c.ID()})
}

// start is setup plus spawning a background mutator.
func (s *Service) start(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := s.allocShared(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	var opts []isolate.MutatorOption
	if req.PeriodMS > 0 {
		opts = append(opts, isolate.MutatorPeriod(time.Duration(req.PeriodMS)*time.Millisecond))
	}
	if req.Step != 0 {
		opts = append(opts, isolate.MutatorStep(req.Step))
	}
	m, err := s.worker.Isolate().Start(c, opts...)
	if err != nil {
		writeError(w, err)
		return
	}

	id := s.handles.Create(c)
	log.Infof("shared cell %d registered with %v mutator, handle %s", c.ID(), m.Period(), id)
	writeJSON(w, http.StatusOK, setupResponse{Handle: id, CellID: c.ID()})
}

type valueResponse struct {
	Field string  `json:"field"`
	Value float64 `json:"value"`
}

func (s *Service) mutate(w http.ResponseWriter, r *http.Request) {
	iso := s.worker.Isolate()
	v, err := iso.Mutate()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Field: iso.Field(), Value: v})
}

func (s *Service) value(w http.ResponseWriter, r *http.Request) {
	iso := s.worker.Isolate()
	v, err := iso.Value()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Field: iso.Field(), Value: v})
}

type yieldRequest struct {
	WindowMS int `json:"window_ms"`
}

// yield opens a one-shot yield window so background mutators can run.
func (s *Service) yield(w http.ResponseWriter, r *http.Request) {
	var req yieldRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.WindowMS <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "window_ms must be positive"})
		return
	}

	window := time.Duration(req.WindowMS) * time.Millisecond
	if err := s.worker.Isolate().LetWorkerWork(window); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

type cellResponse struct {
	Handle string             `json:"handle"`
	CellID uint64             `json:"cell_id"`
	Fields map[string]float64 `json:"fields"`
}

// cell reads every field of a handle's cell, on the owner goroutine.
func (s *Service) cell(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok := s.handles.Lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "handle not found: " + id})
		return
	}

	v, err := s.worker.Do(func(*isolate.Heap) interface{} {
		fields := make(map[string]float64, c.NumSlots())
		for i, name := range c.SlotNames() {
			fields[name] = c.SlotAt(i)
		}
		return fields
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cellResponse{
		Handle: id,
		CellID: c.ID(),
		Fields: v.(map[string]float64),
	})
}

func (s *Service) releaseCell(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.handles.Lookup(id); !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "handle not found: " + id})
		return
	}
	s.handles.Release(id)
	writeJSON(w, http.StatusOK, struct{}{})
}

// snapshot serves a token-consistent CBOR snapshot of the heap.
func (s *Service) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.worker.Isolate().Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := isolate.MarshalSnapshot(snap)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type statsResponse struct {
	Ticks   uint64 `json:"ticks"`
	Ops     uint64 `json:"ops"`
	Failed  uint64 `json:"failed"`
	Handles int    `json:"handles"`
	Cells   int    `json:"cells"`
	Pinned  int    `json:"pinned"`
}

func (s *Service) stats(w http.ResponseWriter, r *http.Request) {
	iso := s.worker.Isolate()
	writeJSON(w, http.StatusOK, statsResponse{
		Ticks:   iso.Ticks(),
		Ops:     s.worker.Ops(),
		Failed:  s.worker.Failed(),
		Handles: s.handles.Count(),
		Cells:   iso.Heap().CellCount(),
		Pinned:  iso.Heap().KeepAliveCount(),
	})
}
