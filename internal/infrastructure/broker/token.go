package broker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jhj/kis_autotrader/internal/domain"
)

const (
	tokenRefreshMargin = 10 * time.Minute
	tokenMaxAge        = 23 * time.Hour
)

type issueFunc func(ctx context.Context) (*domain.AccessToken, error)

// TokenManager caches the access token in memory and mirrors it to the store.
type TokenManager struct {
	mu      sync.Mutex
	store   domain.TokenStore
	issue   issueFunc
	current *domain.AccessToken
	loaded  bool
	log     *zap.Logger
	timeNow func() time.Time
}

func NewTokenManager(store domain.TokenStore, issue issueFunc, log *zap.Logger) *TokenManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenManager{store: store, issue: issue, log: log, timeNow: time.Now}
}

func (m *TokenManager) usable(t *domain.AccessToken, now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if !now.Before(t.Expiry.Add(-tokenRefreshMargin)) {
		return false
	}
	return t.IssuedAt.IsZero() || now.Sub(t.IssuedAt) < tokenMaxAge
}

// Token returns a usable access token, issuing a new one only when needed.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.timeNow()
	if !m.loaded && m.store != nil {
		m.loaded = true
		t, err := m.store.LoadToken()
		if err != nil {
			m.log.Warn("Failed to load cached token", zap.Error(err))
		} else if t != nil {
			m.current = t
		}
	}
	if m.usable(m.current, now) {
		return m.current.AccessToken, nil
	}

	t, err := m.issue(ctx)
	if err != nil {
		return "", err
	}
	if t.IssuedAt.IsZero() {
		t.IssuedAt = now
	}
	m.current = t
	m.log.Info("Access token issued", zap.Time("expiry", t.Expiry))
	if m.store != nil {
		if err := m.store.SaveToken(t); err != nil {
			m.log.Warn("Failed to persist token", zap.Error(err))
		}
	}
	return t.AccessToken, nil
}

// Invalidate forces the next Token call to issue a fresh token.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.current = nil
	m.loaded = true
	m.mu.Unlock()
}
