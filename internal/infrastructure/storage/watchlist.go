package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/jhj/kis_autotrader/internal/domain"
	"go.uber.org/zap"
)

type watchlistDocument struct {
	VerifiedSymbols []domain.WatchItem `json:"verified_symbols"`
}

// LoadWatchlist reads the screening output, keeps candidates whose backtest
// return is at least minReturn, orders them by priority and keeps maxSymbols.
// A missing file yields an empty list.
func LoadWatchlist(path string, minReturn float64, maxSymbols int) ([]domain.WatchItem, error) {
	var doc watchlistDocument
	if _, err := readJSON(path, &doc); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	items := make([]domain.WatchItem, 0, len(doc.VerifiedSymbols))
	for _, it := range doc.VerifiedSymbols {
		if it.Symbol == "" || seen[it.Symbol] || it.Return < minReturn {
			continue
		}
		seen[it.Symbol] = true
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].Return > items[j].Return
	})
	if maxSymbols > 0 && len(items) > maxSymbols {
		items = items[:maxSymbols]
	}
	return items, nil
}

// WatchlistLoader holds the current watch-list and reloads it when the file changes.
type WatchlistLoader struct {
	path       string
	minReturn  float64
	maxSymbols int
	log        *zap.Logger

	mu        sync.RWMutex
	items     []domain.WatchItem
	listeners []func(old, new []domain.WatchItem)
}

func NewWatchlistLoader(path string, minReturn float64, maxSymbols int, log *zap.Logger) (*WatchlistLoader, error) {
	w := &WatchlistLoader{path: filepath.Clean(path), minReturn: minReturn, maxSymbols: maxSymbols, log: log}
	if err := w.Reload(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WatchlistLoader) Items() []domain.WatchItem {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]domain.WatchItem(nil), w.items...)
}

func (w *WatchlistLoader) Symbols() []string {
	items := w.Items()
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Symbol
	}
	return out
}

// OnChange registers fn to run after every successful reload.
func (w *WatchlistLoader) OnChange(fn func(old, new []domain.WatchItem)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *WatchlistLoader) Reload() error {
	items, err := LoadWatchlist(w.path, w.minReturn, w.maxSymbols)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}

	w.mu.Lock()
	old := w.items
	w.items = items
	listeners := append([]func(old, new []domain.WatchItem){}, w.listeners...)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(old, items)
	}
	return nil
}

// Watch reloads on writes to the file until ctx is done. The directory is
// watched so that editors replacing the file by rename are seen too.
func (w *WatchlistLoader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := w.Reload(); err != nil {
				w.log.Warn("Watchlist reload failed", zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.log.Info("Watchlist reloaded", zap.Strings("symbols", w.Symbols()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Watchlist watcher error", zap.Error(err))
		}
	}
}
