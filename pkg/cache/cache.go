package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"sync"
)

// Store conserve des résultats encodés, adressés par leur contenu.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Purge(ctx context.Context) error
}

// Key dérive une clé à partir de ses composantes (moteur, version de table, filtres...).
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}

// Memo renvoie le résultat mémorisé sous key, ou le calcule avec fn et le stocke.
// Une panne du store n'empêche pas le calcul : elle est seulement journalisée.
func Memo[T any](ctx context.Context, s Store, key string, fn func() (T, error)) (T, error) {
	if s == nil {
		return fn()
	}
	if raw, ok, err := s.Get(ctx, key); err != nil {
		log.Printf("[WARN] cache get %s: %v", short(key), err)
	} else if ok {
		var v T
		decErr := json.Unmarshal(raw, &v)
		if decErr == nil {
			return v, nil
		}
		log.Printf("[WARN] cache decode %s: %v", short(key), decErr)
	}

	v, err := fn()
	if err != nil {
		return v, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WARN] cache encode %s: %v", short(key), err)
		return v, nil
	}
	if err := s.Set(ctx, key, raw); err != nil {
		log.Printf("[WARN] cache set %s: %v", short(key), err)
	}
	return v, nil
}

func short(k string) string {
	if len(k) > 12 {
		return k[:12]
	}
	return k
}

// MemoryStore est le store par défaut, propre au processus.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore crée un store mémoire vide.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Purge(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

// Len renvoie le nombre d'entrées.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
