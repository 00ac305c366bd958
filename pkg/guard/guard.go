// Package guard decides, on view entry, whether a view may render and where to
// send the visitor otherwise.
package guard

import (
	"context"

	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
	"github.com/Mindburn-Labs/tradegate/pkg/identity"
	"github.com/Mindburn-Labs/tradegate/pkg/nav"
)

// Sessions is the part of the session facade the guard consults.
type Sessions interface {
	GetSession(ctx context.Context) *identity.Session
	GetUser(ctx context.Context) *identity.User
	GetHomeCountry(ctx context.Context) (catalog.CountryID, bool)
}

// Mount is what a protected view needs after a successful guard check.
type Mount struct {
	Session *identity.Session
	Email   string
	// HomeCountry is zero when none is saved.
	HomeCountry catalog.CountryID
}

// Guard wraps a Sessions source.
type Guard struct {
	sessions Sessions
}

func New(s Sessions) *Guard {
	return &Guard{sessions: s}
}

// Require lets a protected view proceed only with a session. Without one it
// replaces the current view with the entry view and reports false.
func (g *Guard) Require(ctx context.Context, n nav.Navigator) (*identity.Session, bool) {
	s := g.sessions.GetSession(ctx)
	if s == nil {
		n.Navigate(nav.Entry, true)
		return nil, false
	}
	return s, true
}

// MountCalculator guards the calculator and fetches the home country used to
// prefill the exporter.
func (g *Guard) MountCalculator(ctx context.Context, n nav.Navigator) (Mount, bool) {
	s, ok := g.Require(ctx, n)
	if !ok {
		return Mount{}, false
	}
	m := Mount{Session: s, Email: s.User.Email}
	if c, ok := g.sessions.GetHomeCountry(ctx); ok {
		m.HomeCountry = c
	}
	return m, true
}

// MountSettings guards the settings view and loads the email and saved country.
func (g *Guard) MountSettings(ctx context.Context, n nav.Navigator) (Mount, bool) {
	s, ok := g.Require(ctx, n)
	if !ok {
		return Mount{}, false
	}
	m := Mount{Session: s, Email: s.User.Email}
	if u := g.sessions.GetUser(ctx); u != nil {
		m.Email = u.Email
		if c, ok := u.HomeCountryID(); ok {
			m.HomeCountry = c
		}
	}
	return m, true
}

// Landing is where a freshly signed-in user goes: the calculator when a home
// country is saved, otherwise settings.
func (g *Guard) Landing(ctx context.Context) nav.View {
	if _, ok := g.sessions.GetHomeCountry(ctx); ok {
		return nav.Calculator
	}
	return nav.Settings
}

// RedirectAuthenticated is the entry view's inverse guard. A signed-in visitor
// is moved on to their landing view and true is returned.
func (g *Guard) RedirectAuthenticated(ctx context.Context, n nav.Navigator) bool {
	if g.sessions.GetSession(ctx) == nil {
		return false
	}
	n.Navigate(g.Landing(ctx), true)
	return true
}
