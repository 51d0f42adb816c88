package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jhj/kis_autotrader/internal/domain"
)

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path, so readers see either the old or the new document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return writeFileAtomic(path, data)
}

// readJSON decodes path into v. A missing file reports found=false.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// JSONLedgerStore keeps the purchase history in one JSON document keyed by symbol.
type JSONLedgerStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONLedgerStore(path string) *JSONLedgerStore {
	return &JSONLedgerStore{path: path}
}

func (s *JSONLedgerStore) Load(ctx context.Context) (map[string]*domain.PurchaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make(map[string]*domain.PurchaseRecord)
	if _, err := readJSON(s.path, &records); err != nil {
		return nil, err
	}
	for symbol, r := range records {
		if r == nil {
			delete(records, symbol)
			continue
		}
		r.Symbol = symbol
	}
	return records, nil
}

func (s *JSONLedgerStore) Save(ctx context.Context, records map[string]*domain.PurchaseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.path, records)
}

// FileTokenStore mirrors the broker access token to disk.
type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) LoadToken() (*domain.AccessToken, error) {
	var tok domain.AccessToken
	found, err := readJSON(s.path, &tok)
	if err != nil || !found || tok.AccessToken == "" {
		return nil, err
	}
	return &tok, nil
}

func (s *FileTokenStore) SaveToken(token *domain.AccessToken) error {
	if err := writeJSONAtomic(s.path, token); err != nil {
		return err
	}
	return os.Chmod(s.path, 0o600)
}
