// Package httpapi exposes the engine's state over REST and a websocket
// stream for dashboard clients.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"tickarb/internal/application/hub"
	"tickarb/internal/domain/model"
	"tickarb/internal/domain/service"
	"tickarb/internal/domain/store"
)

// HealthSource reports connector states, normally the supervisor.
type HealthSource interface {
	Health() []model.ConnectorState
}

// Reloader re-reads configuration from disk and applies it. An error leaves
// the running configuration untouched.
type Reloader interface {
	Reload() error
}

type Server struct {
	store    *store.Store
	detector *service.Detector
	hub      *hub.Hub
	health   HealthSource
	reloader Reloader

	httpServer *http.Server
}

func NewServer(addr string, st *store.Store, det *service.Detector, h *hub.Hub, health HealthSource, reloader Reloader) *Server {
	s := &Server{store: st, detector: det, hub: h, health: health, reloader: reloader}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/prices", s.handlePrices)
	mux.HandleFunc("GET /api/prices/{symbol}", s.handlePricesBySymbol)
	mux.HandleFunc("GET /api/best-prices/{symbol}", s.handleBestPrices)
	mux.HandleFunc("GET /api/spread/{symbol}/{ex1}/{ex2}", s.handleSpread)
	mux.HandleFunc("GET /api/arbitrage", s.handleArbitrage)
	mux.HandleFunc("GET /api/arbitrage/{symbol}", s.handleArbitrageBySymbol)
	mux.HandleFunc("GET /api/arbitrage/{symbol}/alert-status", s.handleAlertStatus)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("POST /api/reload-config", s.handleReload)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handler exposes the routing table for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	summary := s.store.Summary()
	resp := map[string]any{
		"status":      "ok",
		"symbols":     summary.TotalSymbols,
		"exchanges":   summary.TotalExchanges,
		"subscribers": s.hub.SubscriberCount(),
	}
	if s.health != nil {
		resp["connectors"] = s.health.Health()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.GetAll())
}

func (s *Server) handlePricesBySymbol(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	prices := s.store.GetBySymbol(symbol)
	if len(prices) == 0 {
		notFound(w, "symbol not found")
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

func (s *Server) handleBestPrices(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	best := s.store.BestPrices(symbol)
	if best == nil {
		notFound(w, "no quotes for symbol")
		return
	}
	writeJSON(w, http.StatusOK, best)
}

func (s *Server) handleSpread(w http.ResponseWriter, r *http.Request) {
	spread := s.detector.SpreadBetween(r.PathValue("symbol"), r.PathValue("ex1"), r.PathValue("ex2"))
	if spread == nil {
		notFound(w, "one or both exchanges have no price for symbol")
		return
	}
	writeJSON(w, http.StatusOK, spread)
}

func (s *Server) handleArbitrage(w http.ResponseWriter, r *http.Request) {
	minSpread := parseFloatQuery(r, "min_spread", 0)
	limit := int(parseFloatQuery(r, "limit", 0))
	opps := s.detector.ListAll(minSpread, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":         len(opps),
		"opportunities": opps,
	})
}

func (s *Server) handleArbitrageBySymbol(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	minSpread := parseFloatQuery(r, "min_spread", 0)
	opps := s.detector.ForSymbol(symbol, minSpread)
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":        symbol,
		"count":         len(opps),
		"opportunities": opps,
	})
}

func (s *Server) handleAlertStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.detector.AlertStatus(r.PathValue("symbol")))
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Summary())
}

func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	if s.reloader == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "reload not wired"})
		return
	}
	if err := s.reloader.Reload(); err != nil {
		log.Warn().Err(err).Msg("config reload rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func parseFloatQuery(r *http.Request, key string, def float64) float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}
