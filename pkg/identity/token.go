package identity

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "tradegate/identity"

// AccessClaims are the claims carried by access tokens the in-memory provider
// issues. The shape mirrors GoTrue tokens closely enough for expiryFromToken.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// TokenManager issues and validates access tokens against a KeySet.
type TokenManager struct {
	keySet KeySet
}

func NewTokenManager(ks KeySet) *TokenManager {
	return &TokenManager{keySet: ks}
}

// Issue signs a token for the user valid for ttl from now. The token id is
// returned so it can be revoked.
func (tm *TokenManager) Issue(ctx context.Context, u User, now time.Time, ttl time.Duration) (token, jti string, err error) {
	jti = uuid.NewString()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   u.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: u.Email,
	}
	token, err = tm.keySet.Sign(ctx, claims)
	return token, jti, err
}

// Validate verifies signature, issuer and expiry (evaluated at now).
func (tm *TokenManager) Validate(token string, now time.Time) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, tm.keySet.KeyFunc(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

// expiryFromToken reads the exp claim without verifying the signature. The
// signature belongs to the provider; the client only needs to know when to
// refresh.
func expiryFromToken(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
