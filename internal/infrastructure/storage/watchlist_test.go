package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jhj/kis_autotrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleWatchlist = `{"verified_symbols":[
 {"symbol":"035720","return":12.5,"priority":2,"strategy":"momentum"},
 {"symbol":"005930","return":8.1,"priority":1,"strategy":"hybrid"},
 {"symbol":"042660","return":3.0,"priority":1},
 {"symbol":"000660","return":20.0,"priority":2},
 {"symbol":"005930","return":9.9,"priority":3}
]}`

func TestLoadWatchlist_FilterSortTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest_results.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleWatchlist), 0o600))

	items, err := LoadWatchlist(path, 5.0, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "005930", items[0].Symbol)
	assert.Equal(t, "000660", items[1].Symbol)
}

func TestLoadWatchlist_MissingFile(t *testing.T) {
	items, err := LoadWatchlist(filepath.Join(t.TempDir(), "none.json"), 5.0, 4)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestWatchlistLoader_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backtest_results.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"verified_symbols":[{"symbol":"005930","return":10,"priority":1}]}`), 0o600))

	w, err := NewWatchlistLoader(path, 5.0, 4, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"005930"}, w.Symbols())

	changed := make(chan []domain.WatchItem, 4)
	w.OnChange(func(_, items []domain.WatchItem) { changed <- items })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(sampleWatchlist), 0o600))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case items := <-changed:
			if len(items) == 3 {
				assert.Equal(t, []string{"005930", "000660", "035720"}, w.Symbols())
				return
			}
		case <-deadline:
			t.Fatal("watchlist was not reloaded")
		}
	}
}
