package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/config"
	"github.com/dgnsrekt/gexstream/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"underlyings": s.latest.Underlyings(),
	})
}

func (s *Server) handleUnderlyings(w http.ResponseWriter, r *http.Request) {
	type info struct {
		Symbol      string  `json:"symbol"`
		Prefix      string  `json:"prefix"`
		Increment   float64 `json:"increment"`
		HasSnapshot bool    `json:"has_snapshot"`
	}

	out := make([]info, 0, len(config.DefaultUnderlyings))
	for _, sym := range config.DefaultUnderlyings {
		preset, _ := config.PresetFor(sym)
		_, has := s.latest.Get(sym)
		out = append(out, info{
			Symbol:      sym,
			Prefix:      preset.Prefix,
			Increment:   preset.Increment,
			HasSnapshot: has,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"underlyings": out,
		"count":       len(out),
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	underlying := chi.URLParam(r, "underlying")

	snap, ok := s.latest.Get(underlying)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error: "no snapshot for " + underlying,
		})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	underlying := chi.URLParam(r, "underlying")
	expiration := r.URL.Query().Get("expiration")

	if err := config.ValidateExpiration(expiration); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	snaps, err := s.history.Load(expiration, underlying)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{
				Error: "no history for " + underlying + "/" + expiration,
			})
			return
		}
		s.logger.Error("history load failed",
			zap.String("underlying", underlying),
			zap.String("expiration", expiration),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history read failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"underlying": underlying,
		"expiration": expiration,
		"count":      len(snaps),
		"snapshots":  snaps,
	})
}
