package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Mindburn-Labs/tradegate/pkg/api"
	"github.com/Mindburn-Labs/tradegate/pkg/auth"
	"github.com/Mindburn-Labs/tradegate/pkg/calculator"
	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
	"github.com/Mindburn-Labs/tradegate/pkg/form"
	"github.com/Mindburn-Labs/tradegate/pkg/identity"
	"github.com/Mindburn-Labs/tradegate/pkg/nav"
	"github.com/Mindburn-Labs/tradegate/pkg/store"
	"github.com/Mindburn-Labs/tradegate/pkg/workflow"
)

const historyShown = 5

type resultSummary struct {
	Exporter string
	Importer string
	Category string
	Declared string
}

type calculatorView struct {
	chrome
	workflow.Snapshot
	Countries  []catalog.CountryID
	Categories []catalog.CategoryID
	Conditions []catalog.Condition
	Summary    resultSummary
	Scroll     bool
	History    []store.Entry
}

func summarize(f form.State) resultSummary {
	name := func(ok bool, s string) string {
		if !ok {
			return "—"
		}
		return s
	}
	return resultSummary{
		Exporter: name(f.Exporter.Valid(), f.Exporter.String()),
		Importer: name(f.Importer.Valid(), f.Importer.String()),
		Category: name(f.Category.Valid(), f.Category.String()),
		Declared: declaredUSD(f),
	}
}

// mountCalculator replaces the browser's calculator with a fresh one, prefilled
// from the home country.
func (s *Server) mountCalculator(ctx context.Context, key string, userID string, home catalog.CountryID) *workflow.Machine {
	m := workflow.New(workflow.Options{
		Calculator: s.calc,
		Scheduler:  s.sched,
		OnResult:   s.recordHistory(userID),
		Logger:     s.logger,
	})
	m.Prefill(home)
	s.machines.mount(key, userID, m)
	s.logger.DebugContext(ctx, "calculator mounted", "user_id", userID, "prefilled", home.Valid())
	return m
}

func (s *Server) recordHistory(userID string) workflow.ResultHook {
	if s.history == nil {
		return nil
	}
	return func(ctx context.Context, req calculator.Request, res calculator.Result) error {
		return s.history.Record(ctx, store.Entry{UserID: userID, Request: req, Result: res})
	}
}

// machineFor returns the browser's mounted calculator, mounting one when none
// exists.
func (s *Server) machineFor(ctx context.Context, sess *identity.Session) (*workflow.Machine, error) {
	key, err := auth.BrowserKey(ctx)
	if err != nil {
		return nil, err
	}
	if m, ok := s.machines.get(key, sess.User.ID); ok {
		return m, nil
	}
	home, _ := s.sessions.GetHomeCountry(ctx)
	return s.mountCalculator(ctx, key, sess.User.ID, home), nil
}

func (s *Server) recent(ctx context.Context, userID string) []store.Entry {
	if s.history == nil {
		return nil
	}
	entries, err := s.history.Recent(ctx, userID, historyShown)
	if err != nil {
		s.logger.WarnContext(ctx, "history lookup failed", "error", err)
		return nil
	}
	return entries
}

func (s *Server) calculatorView(ctx context.Context, email, userID string, snap workflow.Snapshot) calculatorView {
	return calculatorView{
		chrome:     chrome{Title: "Calculator", Email: email},
		Snapshot:   snap,
		Countries:  catalog.Countries(),
		Categories: catalog.Categories(),
		Conditions: catalog.Conditions(),
		Summary:    summarize(snap.Form),
		History:    s.recent(ctx, userID),
	}
}

func (s *Server) handleCalculator(w http.ResponseWriter, r *http.Request) {
	if s.completeExternal(w, r) {
		return
	}
	ctx := r.Context()
	rec := &nav.Recorder{}
	mnt, ok := s.guard.MountCalculator(ctx, rec)
	if !ok {
		follow(w, r, rec)
		return
	}
	key, err := auth.BrowserKey(ctx)
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}
	m := s.mountCalculator(ctx, key, mnt.Session.User.ID, mnt.HomeCountry)
	s.render(w, r, http.StatusOK, "calculator.html", s.calculatorView(ctx, mnt.Email, mnt.Session.User.ID, m.Snapshot()))
}

// handleCalculate applies a full form post and submits it.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec := &nav.Recorder{}
	sess, ok := s.guard.Require(ctx, rec)
	if !ok {
		follow(w, r, rec)
		return
	}
	m, err := s.machineFor(ctx, sess)
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		api.WriteBadRequest(w, r, "Malformed form body.")
		return
	}
	for _, f := range form.Fields() {
		if _, present := r.PostForm[string(f)]; !present {
			continue
		}
		if err := m.Edit(f, r.PostForm.Get(string(f))); err != nil {
			if errors.Is(err, workflow.ErrUnmounted) {
				http.Redirect(w, r, nav.Calculator.Path(), http.StatusSeeOther)
				return
			}
			api.WriteBadRequest(w, r, "Invalid value for "+string(f)+".")
			return
		}
	}

	status := http.StatusOK
	err = m.Submit(ctx)
	switch {
	case errors.Is(err, workflow.ErrUnmounted):
		http.Redirect(w, r, nav.Calculator.Path(), http.StatusSeeOther)
		return
	case errors.Is(err, workflow.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrInvalid):
		status = http.StatusUnprocessableEntity
	}

	view := s.calculatorView(ctx, sess.User.Email, sess.User.ID, m.Snapshot())
	view.Scroll = err == nil
	s.render(w, r, status, "calculator.html", view)
}

// requireAPISession answers 401 when the browser is not signed in.
func (s *Server) requireAPISession(w http.ResponseWriter, r *http.Request) (*identity.Session, bool) {
	sess := s.sessions.GetSession(r.Context())
	if sess == nil {
		api.WriteUnauthorized(w, r, identity.NotAuthenticated().Message)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireAPISession(w, r)
	if !ok {
		return
	}
	m, err := s.machineFor(r.Context(), sess)
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, m.Snapshot())
}

type editRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) handleAPIEdit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireAPISession(w, r)
	if !ok {
		return
	}
	var req editRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		api.WriteBadRequest(w, r, "Request body must be JSON with field and value.")
		return
	}
	f, err := form.ParseField(req.Field)
	if err != nil {
		api.WriteBadRequest(w, r, err.Error())
		return
	}
	m, err := s.machineFor(r.Context(), sess)
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}
	if err := m.Edit(f, req.Value); err != nil {
		if errors.Is(err, workflow.ErrUnmounted) {
			api.WriteConflict(w, r, "The calculator was closed. Reload to continue.")
			return
		}
		api.WriteBadRequest(w, r, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) handleAPISubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireAPISession(w, r)
	if !ok {
		return
	}
	m, err := s.machineFor(r.Context(), sess)
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}

	err = m.Submit(r.Context())
	switch {
	case errors.Is(err, workflow.ErrBusy):
		api.WriteConflict(w, r, "A calculation is already in progress.")
		return
	case errors.Is(err, workflow.ErrUnmounted):
		api.WriteConflict(w, r, "The calculator was closed. Reload to continue.")
		return
	case errors.Is(err, workflow.ErrInvalid):
		snap := m.Snapshot()
		p := api.Problem(http.StatusUnprocessableEntity, "Some fields need attention.")
		p.Fields = make(map[string]string, len(snap.Errors))
		for f, fe := range snap.Errors {
			p.Fields[string(f)] = fe.Message
		}
		api.WriteProblem(w, r, p)
		return
	}
	// Calculation failures are part of the snapshot.
	api.WriteJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireAPISession(w, r)
	if !ok {
		return
	}
	entries := s.recent(r.Context(), sess.User.ID)
	if entries == nil {
		entries = []store.Entry{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
