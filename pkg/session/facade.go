// Package session is the single point every view consults to learn who is
// signed in. It wraps the identity provider, keeps each browser's session record
// in a Store and performs the navigation side effects of signing in and out.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/tradegate/pkg/auth"
	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
	"github.com/Mindburn-Labs/tradegate/pkg/identity"
	"github.com/Mindburn-Labs/tradegate/pkg/nav"
)

// Options configures a Facade.
type Options struct {
	Store Store
	// NewProvider builds the identity provider client. It runs at most once, on
	// first use.
	NewProvider func() (identity.Provider, error)
	// PublicOrigin is the externally visible origin, e.g. https://tradegate.example.
	PublicOrigin string
	// ExternalProvider names the external sign-in provider (default "google").
	ExternalProvider string
	Logger           *slog.Logger
	Now              func() time.Time
}

// Facade implements the session operations for the browser named by the
// context's browser key.
type Facade struct {
	store    Store
	newProv  func() (identity.Provider, error)
	origin   string
	external string
	logger   *slog.Logger
	now      func() time.Time

	once    sync.Once
	prov    identity.Provider
	provErr error
}

func New(opts Options) *Facade {
	f := &Facade{
		store:    opts.Store,
		newProv:  opts.NewProvider,
		origin:   strings.TrimRight(opts.PublicOrigin, "/"),
		external: opts.ExternalProvider,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if f.store == nil {
		f.store = NewMemoryStore(0)
	}
	if f.external == "" {
		f.external = "google"
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = f.logger.With("component", "session")
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// Provider returns the process-wide provider client, creating it on first use.
func (f *Facade) Provider() (identity.Provider, error) {
	f.once.Do(func() {
		if f.newProv == nil {
			f.provErr = errors.New("no identity provider configured")
			return
		}
		f.prov, f.provErr = f.newProv()
	})
	return f.prov, f.provErr
}

func (f *Facade) provider() (identity.Provider, error) {
	p, err := f.Provider()
	if err != nil {
		return nil, &identity.AuthError{Code: "provider_unavailable", Message: "Authentication is not available.", Err: err}
	}
	return p, nil
}

// load returns the browser key and its record. A missing record is returned as
// an empty one.
func (f *Facade) load(ctx context.Context) (string, *Record, error) {
	key, err := auth.BrowserKey(ctx)
	if err != nil {
		return "", nil, err
	}
	rec, err := f.store.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return key, &Record{}, nil
	}
	if err != nil {
		return key, nil, err
	}
	return key, rec, nil
}

// GetSession returns the current session, refreshing an expired one once.
// Failures are logged and reported as no session.
func (f *Facade) GetSession(ctx context.Context) *identity.Session {
	key, rec, err := f.load(ctx)
	if err != nil {
		if !errors.Is(err, auth.ErrNoBrowserKey) {
			f.logger.WarnContext(ctx, "session lookup failed", "error", err)
		}
		return nil
	}
	s := rec.Session
	if s == nil {
		return nil
	}
	if !s.Expired(f.now()) {
		return s
	}

	fresh := f.refresh(ctx, s)
	rec.Session = fresh
	if err := f.store.Save(ctx, key, rec); err != nil {
		f.logger.WarnContext(ctx, "failed to persist refreshed session", "error", err)
	}
	return fresh
}

func (f *Facade) refresh(ctx context.Context, s *identity.Session) *identity.Session {
	if s.RefreshToken == "" {
		return nil
	}
	p, err := f.provider()
	if err != nil {
		f.logger.WarnContext(ctx, "session refresh unavailable", "error", err)
		return nil
	}
	fresh, err := p.Refresh(ctx, s.RefreshToken)
	if err != nil {
		f.logger.InfoContext(ctx, "session refresh rejected", "error", err)
		return nil
	}
	return fresh
}

// GetUser resolves the signed-in user through the provider and updates the
// local copy. When the provider cannot answer, the session's copy is returned.
// Nil means no session.
func (f *Facade) GetUser(ctx context.Context) *identity.User {
	s := f.GetSession(ctx)
	if s == nil {
		return nil
	}
	cached := s.User
	p, err := f.provider()
	if err != nil {
		f.logger.WarnContext(ctx, "user lookup unavailable, using session copy", "error", err)
		return &cached
	}
	u, err := p.GetUser(ctx, s.AccessToken)
	if err != nil {
		f.logger.WarnContext(ctx, "user lookup failed, using session copy", "error", err)
		return &cached
	}
	if *u != s.User {
		f.storeUser(ctx, *u)
	}
	return u
}

// GetHomeCountry returns the signed-in user's saved country.
func (f *Facade) GetHomeCountry(ctx context.Context) (catalog.CountryID, bool) {
	return f.GetUser(ctx).HomeCountryID()
}

// SaveHomeCountry persists c as the user's home country.
func (f *Facade) SaveHomeCountry(ctx context.Context, c catalog.CountryID) (*identity.User, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", catalog.ErrUnknownCountry, int(c))
	}
	s := f.GetSession(ctx)
	if s == nil {
		return nil, identity.NotAuthenticated()
	}
	p, err := f.provider()
	if err != nil {
		return nil, err
	}
	u, err := p.UpdateUser(ctx, s.AccessToken, identity.Attributes{HomeCountry: c})
	if err != nil {
		f.logger.WarnContext(ctx, "saving home country failed", "error", err)
		return nil, identity.AsAuthError(err)
	}
	f.storeUser(ctx, *u)
	return u, nil
}

func (f *Facade) storeUser(ctx context.Context, u identity.User) {
	key, rec, err := f.load(ctx)
	if err != nil || rec.Session == nil {
		return
	}
	rec.Session.User = u
	if err := f.store.Save(ctx, key, rec); err != nil {
		f.logger.WarnContext(ctx, "failed to persist user", "error", err)
	}
}

func (f *Facade) persist(ctx context.Context, s *identity.Session) error {
	key, rec, err := f.load(ctx)
	if err != nil {
		return err
	}
	rec.Session = s
	rec.CodeVerifier = ""
	return f.store.Save(ctx, key, rec)
}

// SignInWithPassword authenticates and persists the session. It never navigates.
func (f *Facade) SignInWithPassword(ctx context.Context, email, password string) (*identity.User, error) {
	p, err := f.provider()
	if err != nil {
		return nil, err
	}
	s, err := p.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, identity.AsAuthError(err)
	}
	if err := f.persist(ctx, s); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	f.logger.InfoContext(ctx, "signed in", "user_id", s.User.ID)
	return &s.User, nil
}

// SignUpWithPassword registers an account. The returned user is nil only when
// the provider returned none; a session is persisted only when one was issued.
func (f *Facade) SignUpWithPassword(ctx context.Context, email, password string) (*identity.User, error) {
	p, err := f.provider()
	if err != nil {
		return nil, err
	}
	res, err := p.SignUp(ctx, email, password)
	if err != nil {
		return nil, identity.AsAuthError(err)
	}
	if res.Session != nil {
		if err := f.persist(ctx, res.Session); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}
	return res.User, nil
}

// SignInWithExternalProvider starts an external sign-in and navigates the
// browser to the provider. The post-sign-in target is chosen from the user
// signed in before the redirect: calculator with a home country, otherwise
// settings. Provider errors are logged and nothing happens.
func (f *Facade) SignInWithExternalProvider(ctx context.Context, n nav.Navigator) {
	target := nav.Settings
	if _, ok := f.GetHomeCountry(ctx); ok {
		target = nav.Calculator
	}

	p, err := f.provider()
	if err != nil {
		f.logger.ErrorContext(ctx, "external sign-in unavailable", "error", err)
		return
	}
	key, rec, err := f.load(ctx)
	if err != nil {
		f.logger.ErrorContext(ctx, "external sign-in failed", "error", err)
		return
	}
	verifier := identity.NewCodeVerifier()
	authURL, err := p.AuthorizeURL(ctx, identity.OAuthRequest{
		Provider:      f.external,
		RedirectTo:    f.origin + target.Path(),
		CodeChallenge: identity.CodeChallenge(verifier),
	})
	if err != nil {
		f.logger.ErrorContext(ctx, "external sign-in failed", "provider", f.external, "error", err)
		return
	}
	rec.CodeVerifier = verifier
	if err := f.store.Save(ctx, key, rec); err != nil {
		f.logger.ErrorContext(ctx, "external sign-in failed", "error", err)
		return
	}
	n.Redirect(authURL)
}

// CompleteExternalSignIn exchanges the code the provider appended to the
// redirect target for a session.
func (f *Facade) CompleteExternalSignIn(ctx context.Context, code string) (*identity.User, error) {
	_, rec, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	p, err := f.provider()
	if err != nil {
		return nil, err
	}
	s, err := p.ExchangeCode(ctx, code, rec.CodeVerifier)
	if err != nil {
		f.logger.WarnContext(ctx, "code exchange failed", "error", err)
		return nil, identity.AsAuthError(err)
	}
	if err := f.persist(ctx, s); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	f.logger.InfoContext(ctx, "signed in", "user_id", s.User.ID, "provider", f.external)
	return &s.User, nil
}

// SignOut invalidates the session at the provider, forgets it locally and
// navigates to the entry view. Navigation happens even when invalidation fails.
func (f *Facade) SignOut(ctx context.Context, n nav.Navigator) {
	defer n.Navigate(nav.Entry, false)

	key, rec, err := f.load(ctx)
	if err != nil {
		if !errors.Is(err, auth.ErrNoBrowserKey) {
			f.logger.WarnContext(ctx, "sign-out lookup failed", "error", err)
		}
		return
	}
	if rec.Session != nil {
		if p, perr := f.provider(); perr != nil {
			f.logger.WarnContext(ctx, "sign-out unavailable", "error", perr)
		} else if err := p.SignOut(ctx, rec.Session.AccessToken); err != nil {
			f.logger.WarnContext(ctx, "provider sign-out failed", "error", err)
		}
	}
	if err := f.store.Delete(ctx, key); err != nil {
		f.logger.WarnContext(ctx, "failed to delete session record", "error", err)
	}
}
