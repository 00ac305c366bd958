package console_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tradegate/pkg/calculator"
	"github.com/Mindburn-Labs/tradegate/pkg/console"
	"github.com/Mindburn-Labs/tradegate/pkg/identity"
	"github.com/Mindburn-Labs/tradegate/pkg/reveal"
	"github.com/Mindburn-Labs/tradegate/pkg/session"
	"github.com/Mindburn-Labs/tradegate/pkg/store"
)

type recordingCalculator struct {
	mu       sync.Mutex
	requests []calculator.Request
	err      error
}

func (c *recordingCalculator) Calculate(_ context.Context, req calculator.Request) (*calculator.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return &calculator.Result{
		BaseTariff:      "25%",
		EffectiveTariff: "27.5%",
		DutyPayable:     float64(req.DeclaredValue) * 0.275,
	}, nil
}

func (c *recordingCalculator) calls() []calculator.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]calculator.Request(nil), c.requests...)
}

type harness struct {
	ts       *httptest.Server
	calc     *recordingCalculator
	provider *identity.MemoryProvider
	history  *store.SQLHistory
}

type harnessOpts struct {
	memory    identity.MemoryConfig
	rateRPS   float64
	rateBurst int
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	prov, err := identity.NewMemoryProvider(o.memory)
	require.NoError(t, err)
	hist, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	ts := httptest.NewUnstartedServer(nil)
	origin := "http://" + ts.Listener.Addr().String()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	facade := session.New(session.Options{
		Store:        session.NewMemoryStore(0),
		NewProvider:  func() (identity.Provider, error) { return prov, nil },
		PublicOrigin: origin,
		Logger:       logger,
	})
	if o.rateRPS == 0 {
		o.rateRPS, o.rateBurst = 1000, 1000
	}
	calc := &recordingCalculator{}
	srv, err := console.New(ctx, console.Options{
		Sessions:      facade,
		Calculator:    calc,
		History:       hist,
		Scheduler:     &reveal.ManualScheduler{},
		Logger:        logger,
		AuthRateRPS:   o.rateRPS,
		AuthRateBurst: o.rateBurst,
	})
	require.NoError(t, err)

	ts.Config.Handler = srv.Handler()
	ts.Start()
	t.Cleanup(ts.Close)
	return &harness{ts: ts, calc: calc, provider: prov, history: hist}
}

func (h *harness) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func read(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (h *harness) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(h.ts.URL + path)
	require.NoError(t, err)
	return resp, read(t, resp)
}

func (h *harness) post(t *testing.T, c *http.Client, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := c.PostForm(h.ts.URL+path, form)
	require.NoError(t, err)
	return resp, read(t, resp)
}

func (h *harness) postJSON(t *testing.T, c *http.Client, path string, body any) (*http.Response, string) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := c.Post(h.ts.URL+path, "application/json", strings.NewReader(string(raw)))
	require.NoError(t, err)
	return resp, read(t, resp)
}

// signedIn registers and signs in a fresh user.
func (h *harness) signedIn(t *testing.T, email string) *http.Client {
	t.Helper()
	c := h.client(t)
	resp, _ := h.post(t, c, "/auth/signup", url.Values{"email": {email}, "password": {"secret1"}, "confirm": {"secret1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.post(t, c, "/auth/signin", url.Values{"email": {email}, "password": {"secret1"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	return c
}

func TestCalculator_UnauthenticatedRedirectsToEntry(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp, _ := h.get(t, h.client(t), "/calculator")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, _ = h.get(t, h.client(t), "/settings")
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestUnknownPathRedirectsToEntry(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp, _ := h.get(t, h.client(t), "/does/not/exist")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp, body := h.get(t, h.client(t), "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestEntry_FormChecks(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.client(t)

	_, body := h.post(t, c, "/auth/signin", url.Values{"email": {"a@example.com"}})
	assert.Contains(t, body, "Please enter your email and password.")

	_, body = h.post(t, c, "/auth/signup", url.Values{"email": {"a@example.com"}, "password": {"secret1"}})
	assert.Contains(t, body, "Please fill in all fields.")

	_, body = h.post(t, c, "/auth/signup", url.Values{"email": {"a@example.com"}, "password": {"secret1"}, "confirm": {"secret2"}})
	assert.Contains(t, body, "Passwords do not match.")

	_, body = h.post(t, c, "/auth/signup", url.Values{"email": {"a@example.com"}, "password": {"abc"}, "confirm": {"abc"}})
	assert.Contains(t, body, "Password must be at least 6 characters.")

	_, body = h.post(t, c, "/auth/signup", url.Values{"email": {"a@example.com"}, "password": {"secret1"}, "confirm": {"secret1"}})
	assert.Contains(t, body, "Check your email to confirm your account.")

	_, body = h.post(t, c, "/auth/signin", url.Values{"email": {"a@example.com"}, "password": {"wrong-pass"}})
	assert.Contains(t, body, "Invalid login credentials")
}

func TestSignIn_LandsOnSettingsThenCalculator(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.client(t)
	h.post(t, c, "/auth/signup", url.Values{"email": {"ada@example.com"}, "password": {"secret1"}, "confirm": {"secret1"}})

	resp, _ := h.post(t, c, "/auth/signin", url.Values{"email": {"ada@example.com"}, "password": {"secret1"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/settings", resp.Header.Get("Location"), "no home country yet")

	resp, body := h.get(t, c, "/settings")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "ada@example.com")

	_, body = h.post(t, c, "/settings", url.Values{"country": {""}})
	assert.Contains(t, body, "Please select a country before saving.")

	_, body = h.post(t, c, "/settings", url.Values{"country": {"3"}})
	assert.Contains(t, body, "Settings saved!")
	assert.Contains(t, body, `content="2;url=/calculator"`)

	// The entry view now forwards a signed-in user with a home country.
	resp, _ = h.get(t, c, "/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/calculator", resp.Header.Get("Location"))
}

func TestCalculator_SameCountrySendsNothing(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.signedIn(t, "lin@example.com")
	h.post(t, c, "/settings", url.Values{"country": {"3"}})

	resp, body := h.get(t, c, "/calculator")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "(home country)")
	assert.Contains(t, body, `<option value="3" selected>`)

	resp, body = h.post(t, c, "/calculator", url.Values{
		"exporter": {"3"}, "importer": {"3"}, "category": {"1"}, "declared_value": {"1000"}, "condition": {"1"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Importer cannot be the same as exporter.")
	assert.Empty(t, h.calc.calls())
}

func TestCalculator_ValidSubmitShowsResult(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.signedIn(t, "kim@example.com")
	h.get(t, c, "/calculator")

	resp, body := h.post(t, c, "/calculator", url.Values{
		"exporter": {"2"}, "importer": {"1"}, "category": {"1"}, "declared_value": {"10000"}, "condition": {"3"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []calculator.Request{{Exporter: 2, Importer: 1, Category: 1, DeclaredValue: 10000, Condition: 3}}, h.calc.calls())
	assert.Contains(t, body, "Calculation Result")
	assert.Contains(t, body, "27.5%")
	assert.Contains(t, body, "$2,750")
	assert.Contains(t, body, "$10,000")
	assert.Contains(t, body, "Recent calculations")
}

func TestCalculator_EndpointErrorShownInBanner(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.calc.err = &calculator.EndpointError{Status: 502, Message: "Server error 502"}
	c := h.signedIn(t, "err@example.com")

	resp, body := h.post(t, c, "/calculator", url.Values{
		"exporter": {"2"}, "importer": {"1"}, "category": {"1"}, "declared_value": {"10"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Server error 502")
	assert.NotContains(t, body, "Calculation Result")
}

func TestAPI_RequiresSession(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp, body := h.get(t, h.client(t), "/api/calculator/state")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "Not authenticated.")
}

func TestAPI_EditSubmitAndHistory(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.signedIn(t, "api@example.com")

	resp, body := h.postJSON(t, c, "/api/calculator/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var problem struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &problem))
	assert.Equal(t, "Please select an exporter.", problem.Fields["exporter"])
	assert.Equal(t, "Enter a positive integer value.", problem.Fields["declared_value"])

	for field, value := range map[string]string{"exporter": "5", "importer": "1", "category": "4", "declared_value": "2000"} {
		resp, _ = h.postJSON(t, c, "/api/calculator/edit", map[string]string{"field": field, "value": value})
		require.Equal(t, http.StatusOK, resp.StatusCode, field)
	}
	resp, _ = h.postJSON(t, c, "/api/calculator/edit", map[string]string{"field": "colour", "value": "red"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.postJSON(t, c, "/api/calculator/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap struct {
		State  string             `json:"state"`
		Result *calculator.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	assert.Equal(t, "succeeded", snap.State)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 550.0, snap.Result.DutyPayable)

	// An edit retracts the shown result and returns to idle.
	_, body = h.postJSON(t, c, "/api/calculator/edit", map[string]string{"field": "declared_value", "value": "3000"})
	assert.Contains(t, body, `"state":"idle"`)
	assert.Contains(t, body, `"result_visible":false`)

	_, body = h.get(t, c, "/api/calculator/history")
	var hist struct {
		Entries []store.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &hist))
	require.Len(t, hist.Entries, 1)
	assert.Equal(t, int64(2000), hist.Entries[0].Request.DeclaredValue)
}

func TestExternalSignIn_CompletesOnReturn(t *testing.T) {
	h := newHarness(t, harnessOpts{memory: identity.MemoryConfig{
		ExternalProviders: []string{"google"},
		ExternalEmail:     "g@example.com",
	}})
	c := h.client(t)

	resp, _ := h.post(t, c, "/auth/external", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/settings", loc.Path, "no home country before sign-in")
	require.NotEmpty(t, loc.Query().Get("code"))

	resp, _ = h.get(t, c, loc.RequestURI())
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/settings", resp.Header.Get("Location"))

	resp, body := h.get(t, c, "/settings")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "g@example.com")
}

func TestExternalSignIn_DisabledStaysOnEntry(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp, body := h.post(t, h.client(t), "/auth/external", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Continue with Google")
}

func TestSignOut(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.signedIn(t, "bye@example.com")

	resp, _ := h.post(t, c, "/auth/signout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, _ = h.get(t, c, "/calculator")
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	h := newHarness(t, harnessOpts{rateRPS: 0.001, rateBurst: 1})
	c := h.client(t)
	form := url.Values{"email": {"x@example.com"}, "password": {"secret1"}}

	resp, _ := h.post(t, c, "/auth/signin", form)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.post(t, c, "/auth/signin", form)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestCalculator_UserSwitchOnSameBrowser(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.client(t)
	signIn := func(email string) {
		t.Helper()
		h.post(t, c, "/auth/signup", url.Values{"email": {email}, "password": {"secret1"}, "confirm": {"secret1"}})
		resp, _ := h.post(t, c, "/auth/signin", url.Values{"email": {email}, "password": {"secret1"}})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	}

	signIn("first@example.com")
	h.post(t, c, "/settings", url.Values{"country": {"3"}})
	resp, _ := h.get(t, c, "/calculator")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A second account signs in on the same browser without signing out.
	signIn("second@example.com")
	_, body := h.get(t, c, "/api/calculator/state")
	var state struct {
		Form struct {
			Exporter  int  `json:"exporter"`
			Prefilled bool `json:"prefilled"`
		} `json:"form"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &state))
	assert.Zero(t, state.Form.Exporter, "no home country for the second account")
	assert.False(t, state.Form.Prefilled)

	for field, value := range map[string]string{"exporter": "2", "importer": "1", "category": "4", "declared_value": "2000"} {
		resp, _ = h.postJSON(t, c, "/api/calculator/edit", map[string]string{"field": field, "value": value})
		require.Equal(t, http.StatusOK, resp.StatusCode, field)
	}
	resp, _ = h.postJSON(t, c, "/api/calculator/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hist struct {
		Entries []store.Entry `json:"entries"`
	}
	_, body = h.get(t, c, "/api/calculator/history")
	require.NoError(t, json.Unmarshal([]byte(body), &hist))
	require.Len(t, hist.Entries, 1)
	assert.Equal(t, 2, hist.Entries[0].Request.Exporter)

	signIn("first@example.com")
	_, body = h.get(t, c, "/api/calculator/history")
	hist.Entries = nil
	require.NoError(t, json.Unmarshal([]byte(body), &hist))
	assert.Empty(t, hist.Entries, "the first account's history is untouched")
}
