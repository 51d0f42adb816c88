package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jhj/kis_autotrader/internal/domain"
)

type webhook struct {
	mu       sync.Mutex
	payloads []map[string]any
	status   int
}

func (h *webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p map[string]any
	_ = json.NewDecoder(r.Body).Decode(&p)
	h.mu.Lock()
	h.payloads = append(h.payloads, p)
	status := h.status
	h.mu.Unlock()
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func (h *webhook) at(i int) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.payloads[i]
}

func (h *webhook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

func TestDiscordNotifier_SendsEmbed(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL, Filter{Trades: true, Errors: true}, zap.NewNop())
	require.NoError(t, n.Notify(context.Background(), "매수 체결", "005930 10주", domain.SeveritySuccess))

	require.Equal(t, 1, hook.count())
	embeds := hook.at(0)["embeds"].([]any)
	embed := embeds[0].(map[string]any)
	assert.Equal(t, "매수 체결", embed["title"])
	assert.Equal(t, "005930 10주", embed["description"])
	assert.Equal(t, float64(0x2ecc71), embed["color"])
}

func TestDiscordNotifier_Filter(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()
	ctx := context.Background()

	n := NewDiscordNotifier(srv.URL, Filter{}, nil)
	require.NoError(t, n.Notify(ctx, "t", "m", domain.SeveritySuccess))
	require.NoError(t, n.Notify(ctx, "t", "m", domain.SeverityError))
	assert.Zero(t, hook.count())

	require.NoError(t, n.Notify(ctx, "일일 손실 한도 도달", "m", domain.SeverityCritical))
	assert.Equal(t, 1, hook.count())
}

func TestDiscordNotifier_ErrorStatus(t *testing.T) {
	hook := &webhook{status: http.StatusTooManyRequests}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL, Filter{Trades: true}, nil)
	err := n.Notify(context.Background(), "t", "m", domain.SeverityInfo)
	assert.EqualError(t, err, "discord returned status: 429")
}

func TestDiscordNotifier_DisabledWithoutURL(t *testing.T) {
	n := NewDiscordNotifier("", Filter{Trades: true, Errors: true}, nil)
	assert.NoError(t, n.Notify(context.Background(), "t", "m", domain.SeverityCritical))
}

type failing struct{ calls int }

func (f *failing) Notify(context.Context, string, string, domain.Severity) error {
	f.calls++
	return errors.New("down")
}

func TestMulti_CallsEveryNotifier(t *testing.T) {
	a, b := &failing{}, &failing{}
	err := Multi{a, NewLogNotifier(zap.NewNop()), b}.Notify(context.Background(), "t", "m", domain.SeverityWarning)
	assert.EqualError(t, err, "down")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}
