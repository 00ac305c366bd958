package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
	"github.com/Mindburn-Labs/tradegate/pkg/identity"
	"github.com/Mindburn-Labs/tradegate/pkg/nav"
)

type stubSessions struct {
	session *identity.Session
	user    *identity.User
}

func (s stubSessions) GetSession(context.Context) *identity.Session { return s.session }
func (s stubSessions) GetUser(context.Context) *identity.User       { return s.user }
func (s stubSessions) GetHomeCountry(context.Context) (catalog.CountryID, bool) {
	return s.user.HomeCountryID()
}

func signedIn(country catalog.CountryID) stubSessions {
	u := identity.User{ID: "u-1", Email: "ada@example.com", HomeCountry: country}
	return stubSessions{session: &identity.Session{AccessToken: "t", User: u}, user: &u}
}

func TestRequire_NoSessionRedirectsToEntry(t *testing.T) {
	var rec nav.Recorder
	g := New(stubSessions{})

	s, ok := g.Require(context.Background(), &rec)
	assert.False(t, ok)
	assert.Nil(t, s)
	assert.Equal(t, []nav.Step{{View: nav.Entry, Replace: true}}, rec.Steps())
}

func TestMountCalculator_Unauthenticated(t *testing.T) {
	var rec nav.Recorder
	_, ok := New(stubSessions{}).MountCalculator(context.Background(), &rec)
	assert.False(t, ok)

	last, _ := rec.Last()
	assert.Equal(t, nav.Entry, last.View)
	assert.True(t, last.Replace)
}

func TestMountCalculator_Prefill(t *testing.T) {
	var rec nav.Recorder
	m, ok := New(signedIn(catalog.India)).MountCalculator(context.Background(), &rec)
	require.True(t, ok)
	assert.Equal(t, catalog.India, m.HomeCountry)
	assert.Empty(t, rec.Steps())

	m, ok = New(signedIn(0)).MountCalculator(context.Background(), &rec)
	require.True(t, ok)
	assert.Zero(t, m.HomeCountry)
}

func TestMountSettings(t *testing.T) {
	var rec nav.Recorder
	m, ok := New(signedIn(catalog.UK)).MountSettings(context.Background(), &rec)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", m.Email)
	assert.Equal(t, catalog.UK, m.HomeCountry)
}

func TestRedirectAuthenticated(t *testing.T) {
	tests := []struct {
		name     string
		sessions stubSessions
		want     []nav.Step
	}{
		{"anonymous stays", stubSessions{}, nil},
		{"home country goes to calculator", signedIn(catalog.USA), []nav.Step{{View: nav.Calculator, Replace: true}}},
		{"no home country goes to settings", signedIn(0), []nav.Step{{View: nav.Settings, Replace: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec nav.Recorder
			moved := New(tt.sessions).RedirectAuthenticated(context.Background(), &rec)
			assert.Equal(t, tt.want != nil, moved)
			assert.Equal(t, tt.want, rec.Steps())
		})
	}
}
