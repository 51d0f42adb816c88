package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	active, clients := 0, 0
	if s.orders != nil {
		active = len(s.orders.Active())
	}
	if s.hub != nil {
		clients = s.hub.Clients()
	}
	s.writeJSON(w, map[string]any{
		"state":         s.state.Snapshot(),
		"active_orders": active,
		"ws_clients":    clients,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.ledger.Positions())
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.ledger.Records())
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if s.orders == nil {
		s.writeJSON(w, []any{})
		return
	}
	s.writeJSON(w, s.orders.Active())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "Trade journal disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 1000)
	}

	trades, err := s.journal.ListTrades(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, trades)
}
