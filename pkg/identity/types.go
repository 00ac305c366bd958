// Package identity describes the identity provider capability TradeGate depends on
// and ships two implementations of it: a GoTrue-compatible REST client and an
// in-memory provider for development and tests.
//
// The provider is stateless from the caller's point of view. It issues sessions,
// resolves users from access tokens and stores the user's home country. Keeping
// the current session for a browser is the job of package session.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
)

// ErrNotAuthenticated marks operations attempted without a usable session.
var ErrNotAuthenticated = errors.New("not authenticated")

// User is the provider-owned identity record.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	// HomeCountry is zero when the user has not saved a preference.
	// Use HomeCountryID and WithHomeCountry rather than reading it directly.
	HomeCountry catalog.CountryID `json:"home_country,omitempty"`
}

// HomeCountryID returns the persisted home country, if one is set and valid.
func (u *User) HomeCountryID() (catalog.CountryID, bool) {
	if u == nil || !u.HomeCountry.Valid() {
		return 0, false
	}
	return u.HomeCountry, true
}

// WithHomeCountry returns a copy of u with the home country replaced.
func (u User) WithHomeCountry(c catalog.CountryID) User {
	u.HomeCountry = c
	return u
}

// Session is the token bundle issued on sign-in.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is past its expiry at now.
// A session without an expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Attributes are the mutable profile attributes of a user.
type Attributes struct {
	HomeCountry catalog.CountryID
}

// SignUpResult carries the outcome of a registration. Session is nil when the
// provider requires the address to be confirmed before the first sign-in.
type SignUpResult struct {
	User    *User
	Session *Session
}

// OAuthRequest describes an external sign-in hand-off.
type OAuthRequest struct {
	Provider      string
	RedirectTo    string
	CodeChallenge string
}

// Provider is the identity provider capability.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*SignUpResult, error)
	// AuthorizeURL returns the URL the browser must visit to start an external
	// sign-in. The provider sends the browser back to RedirectTo with a code.
	AuthorizeURL(ctx context.Context, req OAuthRequest) (string, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	GetUser(ctx context.Context, accessToken string) (*User, error)
	UpdateUser(ctx context.Context, accessToken string, attrs Attributes) (*User, error)
	SignOut(ctx context.Context, accessToken string) error
}

// AuthError is a provider rejection. Message is safe to show verbatim.
type AuthError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("auth error %d", e.Status)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NotAuthenticated returns the AuthError used when no session is present.
func NotAuthenticated() *AuthError {
	return &AuthError{Status: 401, Code: "not_authenticated", Message: "Not authenticated.", Err: ErrNotAuthenticated}
}

// AsAuthError extracts an *AuthError from err, wrapping foreign errors so callers
// always get a displayable message.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return &AuthError{Message: err.Error(), Err: err}
}
