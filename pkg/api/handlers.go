package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/grailbio/base/log"
	"github.com/ssargent/bubo/pkg/attrs"
	"github.com/ssargent/bubo/pkg/codec"
	"github.com/ssargent/bubo/pkg/hashset"
	"github.com/ssargent/bubo/pkg/store"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Server holds the API server state
type Server struct {
	store   IAttrStore
	config  ServerConfig
	metrics *Metrics
}

// NewServer creates a new API server
func NewServer(store IAttrStore, config ServerConfig, metrics *Metrics) *Server {
	return &Server{
		store:   store,
		config:  config,
		metrics: metrics,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, err := s.store.Stats()
	s.metrics.RecordHealthCheck(err == nil)
	if err != nil {
		sendError(w, fmt.Sprintf("store unavailable: %v", err), http.StatusServiceUnavailable)
		return
	}
	sendSuccess(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := s.decodeAttrs(w, r, "add", start)
	if !ok {
		return
	}

	existed, attrString, err := s.store.Add(req.Attrs, req.WantString)
	s.metrics.RecordStoreOperation("add", err == nil, time.Since(start))
	if err != nil {
		sendStoreError(w, "add", err)
		return
	}
	sendSuccess(w, AddResponse{Existed: existed, AttrString: attrString})
}

func (s *Server) handleContains(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := s.decodeAttrs(w, r, "contains", start)
	if !ok {
		return
	}

	found, err := s.store.Contains(req.Attrs)
	s.metrics.RecordStoreOperation("contains", err == nil, time.Since(start))
	if err != nil {
		sendStoreError(w, "contains", err)
		return
	}
	sendSuccess(w, ContainsResponse{Contains: found})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := s.decodeAttrs(w, r, "remove", start)
	if !ok {
		return
	}

	removed, err := s.store.Remove(req.Attrs)
	s.metrics.RecordStoreOperation("remove", err == nil, time.Since(start))
	if err != nil {
		sendStoreError(w, "remove", err)
		return
	}
	sendSuccess(w, RemoveResponse{Removed: removed})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.metrics.RecordStoreOperation("list", false, time.Since(start))
			sendError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	sets, err := s.store.List(limit)
	s.metrics.RecordStoreOperation("list", err == nil, time.Since(start))
	if err != nil {
		sendStoreError(w, "list", err)
		return
	}
	sendSuccess(w, ListResponse{Count: len(sets), Sets: sets})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/x-snappy-framed")
	w.Header().Set("Content-Disposition", `attachment; filename="attrs.sz"`)
	n, err := s.store.Export(w)
	s.metrics.RecordStoreOperation("export", err == nil, time.Since(start))
	if err != nil {
		// headers are gone once the stream started
		log.Error.Printf("export after %d sets: %v", n, err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		sendStoreError(w, "stats", err)
		return
	}
	sendSuccess(w, stats)
}

func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	data := r.URL.Query().Get("data")
	h := codec.Hash([]byte(data))
	sendSuccess(w, HashResponse{Hash: h, Hex: fmt.Sprintf("%08x", h)})
}

// decodeAttrs reads an AttrsRequest body, answering the request itself if the
// body is unusable.
func (s *Server) decodeAttrs(w http.ResponseWriter, r *http.Request, op string, start time.Time) (*AttrsRequest, bool) {
	var req AttrsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.metrics.RecordStoreOperation(op, false, time.Since(start))
		sendError(w, fmt.Sprintf("Invalid JSON request: %v", err), http.StatusBadRequest)
		return nil, false
	}
	if err := attrs.Validate(req.Attrs); err != nil {
		s.metrics.RecordStoreOperation(op, false, time.Since(start))
		sendError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func sendStoreError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, attrs.ErrDuplicateTag),
		errors.Is(err, attrs.ErrAttrStringTooLong),
		errors.Is(err, attrs.ErrInvalidAttributes):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrStoreClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, hashset.ErrSetFull):
		status = http.StatusInsufficientStorage
	}
	if status == http.StatusInternalServerError {
		log.Error.Printf("%s: %v", op, err)
	}
	sendError(w, fmt.Sprintf("Failed to %s: %v", op, err), status)
}

// updateStats refreshes the store gauges until done is closed.
func (s *Server) updateStats(done <-chan struct{}) {
	interval := s.config.StatsInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if stats, err := s.store.Stats(); err == nil {
			s.metrics.UpdateStoreStats(stats)
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}
