package console

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Mindburn-Labs/tradegate/pkg/auth"
	"github.com/Mindburn-Labs/tradegate/pkg/identity"
	"github.com/Mindburn-Labs/tradegate/pkg/nav"
)

const (
	msgSignInMissing    = "Please enter your email and password."
	msgSignUpMissing    = "Please fill in all fields."
	msgPasswordMismatch = "Passwords do not match."
	msgPasswordShort    = "Password must be at least 6 characters."
	msgSignUpConfirm    = "✅ Check your email to confirm your account."

	minPasswordLength = 6
)

type entryView struct {
	chrome
	Tab           string
	SignInEmail   string
	SignInError   string
	SignUpEmail   string
	SignUpError   string
	SignUpSuccess string
}

func newEntryView(tab string) entryView {
	if tab != "signup" {
		tab = "signin"
	}
	return entryView{chrome: chrome{Title: "Sign in"}, Tab: tab}
}

// authMessage is the text shown for a provider failure.
func authMessage(err error) string {
	var ae *identity.AuthError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	rec := &nav.Recorder{}
	if s.guard.RedirectAuthenticated(r.Context(), rec) && follow(w, r, rec) {
		return
	}
	s.render(w, r, http.StatusOK, "entry.html", newEntryView(r.URL.Query().Get("tab")))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	view := newEntryView("signin")
	view.SignInEmail = email
	if email == "" || password == "" {
		view.SignInError = msgSignInMissing
		s.render(w, r, http.StatusOK, "entry.html", view)
		return
	}

	if _, err := s.sessions.SignInWithPassword(ctx, email, password); err != nil {
		s.logger.InfoContext(ctx, "sign-in rejected", "error", err)
		view.SignInError = authMessage(err)
		s.render(w, r, http.StatusOK, "entry.html", view)
		return
	}
	s.forgetCalculator(r)
	http.Redirect(w, r, s.guard.Landing(ctx).Path(), http.StatusSeeOther)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	confirm := r.PostFormValue("confirm")

	view := newEntryView("signup")
	view.SignUpEmail = email
	switch {
	case email == "" || password == "" || confirm == "":
		view.SignUpError = msgSignUpMissing
	case password != confirm:
		view.SignUpError = msgPasswordMismatch
	case len([]rune(password)) < minPasswordLength:
		view.SignUpError = msgPasswordShort
	}
	if view.SignUpError != "" {
		s.render(w, r, http.StatusOK, "entry.html", view)
		return
	}

	if _, err := s.sessions.SignUpWithPassword(ctx, email, password); err != nil {
		s.logger.InfoContext(ctx, "sign-up rejected", "error", err)
		view.SignUpError = authMessage(err)
		s.render(w, r, http.StatusOK, "entry.html", view)
		return
	}
	if s.sessions.GetSession(ctx) != nil {
		s.forgetCalculator(r)
	}
	view.SignUpSuccess = msgSignUpConfirm
	s.render(w, r, http.StatusOK, "entry.html", view)
}

// handleExternal hands the browser to the external provider. When the hand-off
// fails the entry view is shown again without a message.
func (s *Server) handleExternal(w http.ResponseWriter, r *http.Request) {
	rec := &nav.Recorder{}
	s.sessions.SignInWithExternalProvider(r.Context(), rec)
	if follow(w, r, rec) {
		return
	}
	s.render(w, r, http.StatusOK, "entry.html", newEntryView("signin"))
}

// forgetCalculator unmounts the browser's calculator when the signed-in user
// changes.
func (s *Server) forgetCalculator(r *http.Request) {
	if key, err := auth.BrowserKey(r.Context()); err == nil {
		s.machines.drop(key)
	}
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.forgetCalculator(r)
	rec := &nav.Recorder{}
	s.sessions.SignOut(r.Context(), rec)
	follow(w, r, rec)
}

// completeExternal finishes an external sign-in when the provider sent the
// browser back with a code, then reloads the view without it.
func (s *Server) completeExternal(w http.ResponseWriter, r *http.Request) bool {
	code := r.URL.Query().Get("code")
	if code == "" {
		return false
	}
	if _, err := s.sessions.CompleteExternalSignIn(r.Context(), code); err != nil {
		s.logger.WarnContext(r.Context(), "external sign-in could not be completed", "error", err)
	} else {
		s.forgetCalculator(r)
	}
	http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
	return true
}
