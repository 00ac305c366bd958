package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultAccessTTL  = time.Hour
	minPasswordLength = 6
	codeTTL           = 5 * time.Minute
)

type memoryUser struct {
	user      User
	hash      []byte
	confirmed bool
}

type pendingCode struct {
	userID    string
	challenge string
	expires   time.Time
}

// MemoryProvider is a self-contained identity provider for development, the CLI
// in offline mode and tests. Passwords are bcrypt hashed and access tokens are
// Ed25519-signed JWTs. External sign-in is simulated: the authorize URL points
// straight back at the redirect target with a one-time code for ExternalEmail.
type MemoryProvider struct {
	mu      sync.Mutex
	byEmail map[string]*memoryUser
	byID    map[string]*memoryUser
	refresh map[string]string // refresh token -> user id
	revoked map[string]struct{}
	codes   map[string]pendingCode
	tokens  *TokenManager
	now     func() time.Time
	cost    int
	cfg     MemoryConfig
}

// MemoryConfig configures a MemoryProvider.
type MemoryConfig struct {
	// AccessTTL is the lifetime of issued access tokens.
	AccessTTL time.Duration
	// RequireConfirmation withholds the session on sign-up until ConfirmEmail.
	RequireConfirmation bool
	// ExternalProviders lists the enabled external provider names.
	ExternalProviders []string
	// ExternalEmail is the identity the simulated external provider asserts.
	ExternalEmail string
	Now           func() time.Time
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider(cfg MemoryConfig) (*MemoryProvider, error) {
	ks, err := NewInMemoryKeySet()
	if err != nil {
		return nil, err
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &MemoryProvider{
		byEmail: make(map[string]*memoryUser),
		byID:    make(map[string]*memoryUser),
		refresh: make(map[string]string),
		revoked: make(map[string]struct{}),
		codes:   make(map[string]pendingCode),
		tokens:  NewTokenManager(ks),
		now:     now,
		cost:    bcrypt.MinCost,
		cfg:     cfg,
	}, nil
}

// ConfirmEmail marks the account as confirmed.
func (p *MemoryProvider) ConfirmEmail(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	mu, ok := p.byEmail[normalizeEmail(email)]
	if ok {
		mu.confirmed = true
	}
	return ok
}

func (p *MemoryProvider) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &AuthError{Status: http.StatusBadRequest, Code: "validation_failed", Message: "Unable to validate email address: invalid format"}
	}
	if len(password) < minPasswordLength {
		return nil, &AuthError{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: fmt.Sprintf("Password should be at least %d characters.", minPasswordLength)}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	if _, exists := p.byEmail[email]; exists {
		p.mu.Unlock()
		return nil, &AuthError{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered"}
	}
	mu := &memoryUser{
		user:      User{ID: uuid.NewString(), Email: email},
		hash:      hash,
		confirmed: !p.cfg.RequireConfirmation,
	}
	p.byEmail[email] = mu
	p.byID[mu.user.ID] = mu
	u := mu.user
	p.mu.Unlock()

	if p.cfg.RequireConfirmation {
		return &SignUpResult{User: &u}, nil
	}
	s, err := p.issue(ctx, u)
	if err != nil {
		return nil, err
	}
	return &SignUpResult{User: &s.User, Session: s}, nil
}

func (p *MemoryProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	p.mu.Lock()
	mu, ok := p.byEmail[normalizeEmail(email)]
	var (
		hash      []byte
		confirmed bool
		u         User
	)
	if ok {
		hash, confirmed, u = mu.hash, mu.confirmed, mu.user
	}
	p.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return nil, &AuthError{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	if !confirmed {
		return nil, &AuthError{Status: http.StatusBadRequest, Code: "email_not_confirmed", Message: "Email not confirmed"}
	}
	return p.issue(ctx, u)
}

func (p *MemoryProvider) AuthorizeURL(_ context.Context, req OAuthRequest) (string, error) {
	if !p.externalEnabled(req.Provider) || p.cfg.ExternalEmail == "" {
		return "", &AuthError{Status: http.StatusBadRequest, Code: "validation_failed", Message: "Unsupported provider: provider is not enabled"}
	}
	target, err := url.Parse(req.RedirectTo)
	if err != nil || req.RedirectTo == "" {
		return "", &AuthError{Status: http.StatusBadRequest, Code: "validation_failed", Message: "Invalid redirect URL"}
	}

	p.mu.Lock()
	email := normalizeEmail(p.cfg.ExternalEmail)
	mu, ok := p.byEmail[email]
	if !ok {
		mu = &memoryUser{user: User{ID: uuid.NewString(), Email: email}, confirmed: true}
		p.byEmail[email] = mu
		p.byID[mu.user.ID] = mu
	}
	code := uuid.NewString()
	p.codes[code] = pendingCode{userID: mu.user.ID, challenge: req.CodeChallenge, expires: p.now().Add(codeTTL)}
	p.mu.Unlock()

	q := target.Query()
	q.Set("code", code)
	target.RawQuery = q.Encode()
	return target.String(), nil
}

func (p *MemoryProvider) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	p.mu.Lock()
	pc, ok := p.codes[code]
	delete(p.codes, code)
	var u User
	if ok {
		if mu, found := p.byID[pc.userID]; found {
			u = mu.user
		} else {
			ok = false
		}
	}
	p.mu.Unlock()

	if !ok || p.now().After(pc.expires) {
		return nil, &AuthError{Status: http.StatusNotFound, Code: "flow_state_not_found", Message: "invalid flow state, no valid flow state found"}
	}
	if pc.challenge != "" && CodeChallenge(verifier) != pc.challenge {
		return nil, &AuthError{Status: http.StatusBadRequest, Code: "bad_code_verifier", Message: "code challenge does not match previously saved code verifier"}
	}
	return p.issue(ctx, u)
}

func (p *MemoryProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	p.mu.Lock()
	userID, ok := p.refresh[refreshToken]
	delete(p.refresh, refreshToken)
	var u User
	if ok {
		if mu, found := p.byID[userID]; found {
			u = mu.user
		} else {
			ok = false
		}
	}
	p.mu.Unlock()

	if !ok {
		return nil, &AuthError{Status: http.StatusBadRequest, Code: "refresh_token_not_found", Message: "Invalid Refresh Token: Refresh Token Not Found"}
	}
	return p.issue(ctx, u)
}

func (p *MemoryProvider) GetUser(_ context.Context, accessToken string) (*User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mu, err := p.resolve(accessToken)
	if err != nil {
		return nil, err
	}
	u := mu.user
	return &u, nil
}

func (p *MemoryProvider) UpdateUser(_ context.Context, accessToken string, attrs Attributes) (*User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mu, err := p.resolve(accessToken)
	if err != nil {
		return nil, err
	}
	mu.user = mu.user.WithHomeCountry(attrs.HomeCountry)
	u := mu.user
	return &u, nil
}

func (p *MemoryProvider) SignOut(_ context.Context, accessToken string) error {
	claims, err := p.tokens.Validate(accessToken, p.now())
	if err != nil {
		return &AuthError{Status: http.StatusUnauthorized, Code: "bad_jwt", Message: "invalid JWT", Err: ErrNotAuthenticated}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[claims.ID] = struct{}{}
	for tok, id := range p.refresh {
		if id == claims.Subject {
			delete(p.refresh, tok)
		}
	}
	return nil
}

// resolve must be called with p.mu held.
func (p *MemoryProvider) resolve(accessToken string) (*memoryUser, error) {
	claims, err := p.tokens.Validate(accessToken, p.now())
	if err != nil {
		return nil, &AuthError{Status: http.StatusUnauthorized, Code: "bad_jwt", Message: "invalid JWT", Err: ErrNotAuthenticated}
	}
	if _, gone := p.revoked[claims.ID]; gone {
		return nil, &AuthError{Status: http.StatusForbidden, Code: "session_not_found", Message: "Session from session_id claim in JWT does not exist", Err: ErrNotAuthenticated}
	}
	mu, ok := p.byID[claims.Subject]
	if !ok {
		return nil, &AuthError{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found", Err: ErrNotAuthenticated}
	}
	return mu, nil
}

func (p *MemoryProvider) issue(ctx context.Context, u User) (*Session, error) {
	now := p.now()
	token, _, err := p.tokens.Issue(ctx, u, now, p.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	rt := uuid.NewString()
	p.mu.Lock()
	p.refresh[rt] = u.ID
	p.mu.Unlock()
	return &Session{
		AccessToken:  token,
		RefreshToken: rt,
		ExpiresAt:    now.Add(p.cfg.AccessTTL),
		User:         u,
	}, nil
}

func (p *MemoryProvider) externalEnabled(name string) bool {
	for _, n := range p.cfg.ExternalProviders {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// normalizeEmail folds case and composes to NFC so visually identical
// addresses map to one account.
func normalizeEmail(email string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(email)))
}
