package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
)

// unreachableMessage is shown when the provider cannot be contacted at all.
const unreachableMessage = "Could not reach the authentication service."

// GoTrueClient talks to a GoTrue-compatible auth service (Supabase Auth).
type GoTrueClient struct {
	BaseURL    string
	PublicKey  string
	HTTPClient *http.Client

	now func() time.Time
}

// GoTrueOption configures the client.
type GoTrueOption func(*GoTrueClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) GoTrueOption {
	return func(c *GoTrueClient) { c.HTTPClient = hc }
}

// WithClock overrides the clock used to compute session expiry.
func WithClock(now func() time.Time) GoTrueOption {
	return func(c *GoTrueClient) { c.now = now }
}

// NewGoTrueClient creates a client for the service at baseURL. publicKey is the
// project's public (anon) key; it is static, non-secret configuration.
func NewGoTrueClient(baseURL, publicKey string, opts ...GoTrueOption) *GoTrueClient {
	c := &GoTrueClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		PublicKey:  publicKey,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type gotrueSession struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         *gotrueUser `json:"user"`
}

// gotrueSignUp covers both signup response shapes: a session when
// auto-confirm is on, a bare user when confirmation is pending.
type gotrueSignUp struct {
	gotrueSession
	gotrueUser
}

type gotrueError struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var out gotrueSession
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &out); err != nil {
		return nil, err
	}
	return c.toSession(out)
}

func (c *GoTrueClient) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	var out gotrueSignUp
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, &out); err != nil {
		return nil, err
	}
	if out.AccessToken != "" {
		s, err := c.toSession(out.gotrueSession)
		if err != nil {
			return nil, err
		}
		return &SignUpResult{User: &s.User, Session: s}, nil
	}
	u := toUser(&out.gotrueUser)
	return &SignUpResult{User: &u}, nil
}

func (c *GoTrueClient) AuthorizeURL(_ context.Context, req OAuthRequest) (string, error) {
	if req.Provider == "" {
		return "", &AuthError{Status: http.StatusBadRequest, Code: "validation_failed", Message: "No external provider configured."}
	}
	u, err := url.Parse(c.BaseURL + "/auth/v1/authorize")
	if err != nil {
		return "", fmt.Errorf("authorize url: %w", err)
	}
	q := url.Values{}
	q.Set("provider", req.Provider)
	if req.RedirectTo != "" {
		q.Set("redirect_to", req.RedirectTo)
	}
	if req.CodeChallenge != "" {
		q.Set("code_challenge", req.CodeChallenge)
		q.Set("code_challenge_method", "s256")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *GoTrueClient) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	var out gotrueSession
	body := map[string]string{"auth_code": code, "code_verifier": verifier}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=pkce", "", body, &out); err != nil {
		return nil, err
	}
	return c.toSession(out)
}

func (c *GoTrueClient) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var out gotrueSession
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &out); err != nil {
		return nil, err
	}
	return c.toSession(out)
}

func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var out gotrueUser
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &out); err != nil {
		return nil, err
	}
	u := toUser(&out)
	return &u, nil
}

func (c *GoTrueClient) UpdateUser(ctx context.Context, accessToken string, attrs Attributes) (*User, error) {
	body := map[string]any{
		"data": map[string]any{"home_country": int(attrs.HomeCountry)},
	}
	var out gotrueUser
	if err := c.do(ctx, http.MethodPut, "/auth/v1/user", accessToken, body, &out); err != nil {
		return nil, err
	}
	u := toUser(&out)
	return &u, nil
}

func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

func (c *GoTrueClient) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.PublicKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &AuthError{Code: "unreachable", Message: unreachableMessage, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeGoTrueError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &AuthError{Status: resp.StatusCode, Code: "bad_response", Message: "Unexpected response from the authentication service.", Err: err}
	}
	return nil
}

func decodeGoTrueError(resp *http.Response) error {
	ae := &AuthError{Status: resp.StatusCode}
	var ge gotrueError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &ge); err == nil {
		ae.Code = ge.ErrorCode
		if ae.Code == "" {
			ae.Code = ge.Error
		}
		for _, m := range []string{ge.Msg, ge.Message, ge.ErrorDescription, ge.Error} {
			if m != "" {
				ae.Message = m
				break
			}
		}
	}
	if ae.Message == "" {
		ae.Message = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		ae.Err = ErrNotAuthenticated
	}
	return ae
}

func (c *GoTrueClient) toSession(s gotrueSession) (*Session, error) {
	if s.AccessToken == "" || s.User == nil {
		return nil, &AuthError{Code: "bad_response", Message: "Unexpected response from the authentication service.", Err: errors.New("session without token or user")}
	}
	out := &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		User:         toUser(s.User),
	}
	switch {
	case s.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	default:
		if exp, ok := expiryFromToken(s.AccessToken); ok {
			out.ExpiresAt = exp
		} else if s.ExpiresIn > 0 {
			out.ExpiresAt = c.now().Add(time.Duration(s.ExpiresIn) * time.Second)
		}
	}
	return out, nil
}

func toUser(g *gotrueUser) User {
	u := User{ID: g.ID, Email: g.Email}
	if c, ok := metadataCountry(g.UserMetadata["home_country"]); ok {
		u.HomeCountry = c
	}
	return u
}

// metadataCountry maps the untyped metadata value to a country. Values outside
// the set are treated as unset.
func metadataCountry(v any) (catalog.CountryID, bool) {
	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
		if float64(n) != t {
			return 0, false
		}
	case string:
		var err error
		if n, err = strconv.Atoi(strings.TrimSpace(t)); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	c := catalog.CountryID(n)
	return c, c.Valid()
}
