package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Mindburn-Labs/tradegate/pkg/identity"
)

// ErrNotFound is returned by a Store when no record exists for a key.
var ErrNotFound = errors.New("session record not found")

// Record is what a browser keeps between requests: its current session and,
// during an external sign-in, the PKCE verifier.
type Record struct {
	Session      *identity.Session `json:"session,omitempty"`
	CodeVerifier string            `json:"code_verifier,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Store persists records keyed by browser key.
type Store interface {
	Load(ctx context.Context, key string) (*Record, error)
	Save(ctx context.Context, key string, rec *Record) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps records in process memory. Records older than the TTL are
// treated as absent.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a store. A zero ttl keeps records forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok || (s.ttl > 0 && s.now().Sub(rec.UpdatedAt) > s.ttl) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, rec *Record) error {
	r := *rec
	r.UpdatedAt = s.now()
	s.mu.Lock()
	s.records[key] = r
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}
