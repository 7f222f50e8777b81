package main

import (
	"net/http"
	"sync"

	"github.com/floegence/d2dpair/observability"
	"github.com/floegence/d2dpair/observability/prom"
)

type switchHandler struct {
	mu      sync.RWMutex
	handler http.Handler
}

func newSwitchHandler() *switchHandler {
	return &switchHandler{handler: http.NotFoundHandler()}
}

func (h *switchHandler) Set(next http.Handler) {
	if next == nil {
		next = http.NotFoundHandler()
	}
	h.mu.Lock()
	h.handler = next
	h.mu.Unlock()
}

func (h *switchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	handler.ServeHTTP(w, r)
}

// metricsController toggles Prometheus export for pairing observers. Each
// Enable starts from a fresh registry.
type metricsController struct {
	mu        sync.Mutex
	enabled   bool
	handler   *switchHandler
	handshake *observability.AtomicHandshakeObserver
	record    *observability.AtomicRecordObserver
}

func newMetricsController() *metricsController {
	return &metricsController{
		handler:   newSwitchHandler(),
		handshake: observability.NewAtomicHandshakeObserver(),
		record:    observability.NewAtomicRecordObserver(),
	}
}

func (c *metricsController) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return
	}
	reg := prom.NewRegistry()
	c.handshake.Set(prom.NewHandshakeObserver(reg))
	c.record.Set(prom.NewRecordObserver(reg))
	c.handler.Set(prom.Handler(reg))
	c.enabled = true
}

func (c *metricsController) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.handler.Set(nil)
	c.handshake.Set(nil)
	c.record.Set(nil)
	c.enabled = false
}

func (c *metricsController) mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.handler)
	return mux
}
