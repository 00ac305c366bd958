package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// maxRetainedKeys bounds how many retired keys stay valid for verification.
const maxRetainedKeys = 4

// KeySet signs access tokens with the active key and verifies tokens signed by
// any retained key.
type KeySet interface {
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	KeyFunc() jwt.Keyfunc
}

type signingKey struct {
	kid  string
	priv ed25519.PrivateKey
}

// InMemoryKeySet keeps Ed25519 keys in process memory. Tokens it signs do not
// survive a restart.
type InMemoryKeySet struct {
	mu   sync.RWMutex
	keys []signingKey // oldest first; last is active
}

// NewInMemoryKeySet returns a key set with one freshly generated active key.
func NewInMemoryKeySet() (*InMemoryKeySet, error) {
	ks := &InMemoryKeySet{}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Rotate generates a new active key. The oldest key is dropped once more than
// maxRetainedKeys are held.
func (ks *InMemoryKeySet) Rotate() error {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys = append(ks.keys, signingKey{kid: uuid.NewString(), priv: priv})
	if len(ks.keys) > maxRetainedKeys {
		ks.keys = ks.keys[len(ks.keys)-maxRetainedKeys:]
	}
	return nil
}

func (ks *InMemoryKeySet) Sign(_ context.Context, claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	if len(ks.keys) == 0 {
		ks.mu.RUnlock()
		return "", errors.New("no active signing key")
	}
	active := ks.keys[len(ks.keys)-1]
	ks.mu.RUnlock()

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = active.kid
	return token.SignedString(active.priv)
}

func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid")
		}

		ks.mu.RLock()
		defer ks.mu.RUnlock()
		for _, k := range ks.keys {
			if k.kid == kid {
				return k.priv.Public(), nil
			}
		}
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
}
