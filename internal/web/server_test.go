package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jhj/kis_autotrader/internal/domain"
	"github.com/jhj/kis_autotrader/internal/usecase"
)

type stubLedger struct{}

func (stubLedger) Positions() []domain.Position {
	return []domain.Position{{Symbol: "005930", Quantity: 10, AverageCost: 70000}}
}

func (stubLedger) Records() map[string]*domain.PurchaseRecord {
	return map[string]*domain.PurchaseRecord{"005930": {Symbol: "005930", TotalQuantity: 10, PurchaseCount: 1}}
}

type stubOrders struct{}

func (stubOrders) Active() []domain.OrderTicket {
	return []domain.OrderTicket{{OrderID: "0000000001", Symbol: "005930", Status: domain.StatusPending}}
}

type stubJournal struct {
	domain.TradeJournal
	limit int
}

func (j *stubJournal) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	j.limit = limit
	return []*domain.TradeRecord{{ID: "t1", Symbol: "005930", Side: domain.SideBuy, Quantity: 10, Price: 70000}}, nil
}

func newTestServer(t *testing.T) (*Server, *stubJournal, *Hub) {
	state := usecase.NewTraderState()
	state.SetWatchlist([]string{"005930", "000660"})
	journal := &stubJournal{}
	hub := NewHub(zap.NewNop())
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok_metric 1\n")) })
	return NewServer(0, state, stubLedger{}, stubOrders{}, journal, hub, metrics, zap.NewNop()), journal, hub
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer_Status(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		State        usecase.StateSnapshot `json:"state"`
		ActiveOrders int                   `json:"active_orders"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []string{"005930", "000660"}, body.State.Watchlist)
	assert.Equal(t, 1, body.ActiveOrders)
}

func TestServer_PositionsAndLedger(t *testing.T) {
	s, _, _ := newTestServer(t)

	var positions []domain.Position
	require.NoError(t, json.NewDecoder(get(t, s, "/positions").Body).Decode(&positions))
	require.Len(t, positions, 1)
	assert.Equal(t, int64(10), positions[0].Quantity)

	var records map[string]*domain.PurchaseRecord
	require.NoError(t, json.NewDecoder(get(t, s, "/ledger").Body).Decode(&records))
	assert.Equal(t, 1, records["005930"].PurchaseCount)

	var orders []domain.OrderTicket
	require.NoError(t, json.NewDecoder(get(t, s, "/orders").Body).Decode(&orders))
	assert.Equal(t, "0000000001", orders[0].OrderID)
}

func TestServer_Trades(t *testing.T) {
	s, journal, _ := newTestServer(t)

	rec := get(t, s, "/trades?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, journal.limit)
	assert.Contains(t, rec.Body.String(), `"symbol":"005930"`)

	rec = get(t, s, "/trades?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	get(t, s, "/trades")
	assert.Equal(t, 50, journal.limit)
}

func TestServer_Metrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s, "/metrics")
	assert.Equal(t, "ok_metric 1\n", rec.Body.String())
}

func TestHub_BroadcastsEvents(t *testing.T) {
	s, _, hub := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(domain.Event{Type: "fill", Symbol: "005930", Message: "005930 BUY 10주 @ 70000"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev domain.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "fill", ev.Type)
	assert.Equal(t, "005930", ev.Symbol)
	assert.NotEmpty(t, ev.ID)
}

func TestHub_PublishDoesNotBlockWithoutRunner(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastQueue*2; i++ {
			hub.Publish(domain.Event{Type: "tick"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
}
