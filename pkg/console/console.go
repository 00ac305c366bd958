// Package console serves the TradeGate web console: the entry, settings and
// calculator views plus a small JSON API over the calculator workflow.
package console

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/tradegate/pkg/api"
	"github.com/Mindburn-Labs/tradegate/pkg/auth"
	"github.com/Mindburn-Labs/tradegate/pkg/calculator"
	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
	"github.com/Mindburn-Labs/tradegate/pkg/guard"
	"github.com/Mindburn-Labs/tradegate/pkg/logging"
	"github.com/Mindburn-Labs/tradegate/pkg/nav"
	"github.com/Mindburn-Labs/tradegate/pkg/observability"
	"github.com/Mindburn-Labs/tradegate/pkg/reveal"
	"github.com/Mindburn-Labs/tradegate/pkg/session"
	"github.com/Mindburn-Labs/tradegate/pkg/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// SettingsForwardDelay is how long the settings view shows its success
// message before moving on to the calculator.
const SettingsForwardDelay = 2 * time.Second

// Options configures a Server.
type Options struct {
	Sessions   *session.Facade
	Calculator calculator.Calculator
	// History is optional; without it nothing is recorded.
	History       store.History
	Scheduler     reveal.Scheduler
	Observability *observability.Provider
	Logger        *slog.Logger

	CORSOrigins   []string
	SecureCookies bool
	AuthRateRPS   float64
	AuthRateBurst int
	// MachineIdle is how long an untouched calculator stays mounted.
	MachineIdle time.Duration
	Now         func() time.Time
}

// Server is the console HTTP surface.
type Server struct {
	sessions *session.Facade
	guard    *guard.Guard
	calc     calculator.Calculator
	history  store.History
	sched    reveal.Scheduler
	obs      *observability.Provider
	logger   *slog.Logger
	limiter  *api.RateLimiter
	machines *machines
	views    map[string]*template.Template

	corsOrigins   []string
	secureCookies bool
}

// New builds a Server. Background sweeps stop when ctx is done.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Sessions == nil || opts.Calculator == nil {
		return nil, fmt.Errorf("console: sessions and calculator are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "console")
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rps, burst := opts.AuthRateRPS, opts.AuthRateBurst
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}

	views, err := parseViews()
	if err != nil {
		return nil, err
	}

	s := &Server{
		sessions:      opts.Sessions,
		guard:         guard.New(opts.Sessions),
		calc:          opts.Calculator,
		history:       opts.History,
		sched:         opts.Scheduler,
		obs:           opts.Observability,
		logger:        logger,
		limiter:       api.NewRateLimiter(ctx, rps, burst),
		machines:      newMachines(opts.MachineIdle, now, logger),
		views:         views,
		corsOrigins:   opts.CORSOrigins,
		secureCookies: opts.SecureCookies,
	}
	go s.machines.janitor(ctx)
	return s, nil
}

// Handler returns the console routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /{$}", s.handleEntry)
	mux.Handle("POST /auth/signin", s.limiter.Middleware(http.HandlerFunc(s.handleSignIn)))
	mux.Handle("POST /auth/signup", s.limiter.Middleware(http.HandlerFunc(s.handleSignUp)))
	mux.Handle("POST /auth/external", s.limiter.Middleware(http.HandlerFunc(s.handleExternal)))
	mux.HandleFunc("POST /auth/signout", s.handleSignOut)

	mux.HandleFunc("GET /settings", s.handleSettings)
	mux.HandleFunc("POST /settings", s.handleSaveSettings)

	mux.HandleFunc("GET /calculator", s.handleCalculator)
	mux.HandleFunc("POST /calculator", s.handleCalculate)

	mux.HandleFunc("GET /api/calculator/state", s.handleAPIState)
	mux.HandleFunc("POST /api/calculator/edit", s.handleAPIEdit)
	mux.HandleFunc("POST /api/calculator/submit", s.handleAPISubmit)
	mux.HandleFunc("GET /api/calculator/history", s.handleAPIHistory)

	// Unknown paths fall back to the entry view.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, nav.Resolve(r.URL.Path).Path(), http.StatusSeeOther)
	})

	var h http.Handler = mux
	h = auth.BrowserKeyMiddleware(s.secureCookies)(h)
	h = auth.CORSMiddleware(s.corsOrigins)(h)
	h = s.obs.Middleware(h)
	h = logging.Middleware(s.logger)(h)
	h = auth.RequestIDMiddleware(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"calculators": s.machines.len(),
	})
}

// follow turns the last recorded navigation into a 303 redirect. It reports
// false when nothing was recorded.
func follow(w http.ResponseWriter, r *http.Request, rec *nav.Recorder) bool {
	step, ok := rec.Last()
	if !ok {
		return false
	}
	http.Redirect(w, r, step.Target(), http.StatusSeeOther)
	return true
}

// chrome is the data every page layout needs.
type chrome struct {
	Title   string
	Email   string
	Forward string

	// ForwardAfter is the delay in seconds before moving on to Forward.
	ForwardAfter int
}

var templateFuncs = template.FuncMap{
	"usd": USD,
	"int": func(v any) int {
		switch x := v.(type) {
		case catalog.CountryID:
			return int(x)
		case catalog.CategoryID:
			return int(x)
		case catalog.Condition:
			return int(x)
		case int:
			return x
		}
		return 0
	},
	"country": func(id int) string { return catalog.CountryID(id).String() },
}

func parseViews() (map[string]*template.Template, error) {
	base, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	views := make(map[string]*template.Template)
	for _, name := range []string{"entry.html", "settings.html", "calculator.html"} {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		views[name] = t
	}
	return views, nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	t, ok := s.views[name]
	if !ok {
		api.WriteInternal(w, r, fmt.Errorf("unknown view %q", name))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to render view", "view", name, "error", err)
	}
}
