package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jhj/kis_autotrader/internal/domain"
	"github.com/jhj/kis_autotrader/internal/usecase"
)

type StateSource interface {
	Snapshot() usecase.StateSnapshot
}

type LedgerView interface {
	Positions() []domain.Position
	Records() map[string]*domain.PurchaseRecord
}

type OrderView interface {
	Active() []domain.OrderTicket
}

type Server struct {
	router  *http.ServeMux
	server  *http.Server
	state   StateSource
	ledger  LedgerView
	orders  OrderView
	journal domain.TradeJournal
	hub     *Hub
	logger  *zap.Logger
}

func NewServer(
	port int,
	state StateSource,
	ledger LedgerView,
	orders OrderView,
	journal domain.TradeJournal,
	hub *Hub,
	metrics http.Handler,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		state:   state,
		ledger:  ledger,
		orders:  orders,
		journal: journal,
		hub:     hub,
		logger:  logger,
	}
	s.routes(metrics)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes(metrics http.Handler) {
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /positions", s.handlePositions)
	s.router.HandleFunc("GET /ledger", s.handleLedger)
	s.router.HandleFunc("GET /orders", s.handleOrders)
	s.router.HandleFunc("GET /trades", s.handleTrades)
	if metrics != nil {
		s.router.Handle("GET /metrics", metrics)
	}
	if s.hub != nil {
		s.router.HandleFunc("GET /ws/events", s.hub.ServeWS)
	}
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
