package console

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
	"github.com/Mindburn-Labs/tradegate/pkg/identity"
	"github.com/Mindburn-Labs/tradegate/pkg/nav"
)

const (
	msgSelectCountry = "Please select a country before saving."
	msgSaveFailed    = "Failed to save settings. Please try again."
	msgSettingsSaved = "✅ Settings saved!"
)

type settingsView struct {
	chrome
	Countries []catalog.CountryID
	Selected  catalog.CountryID
	Error     string
	Success   string
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.completeExternal(w, r) {
		return
	}
	rec := &nav.Recorder{}
	m, ok := s.guard.MountSettings(r.Context(), rec)
	if !ok {
		follow(w, r, rec)
		return
	}
	s.render(w, r, http.StatusOK, "settings.html", settingsView{
		chrome:    chrome{Title: "Settings", Email: m.Email},
		Countries: catalog.Countries(),
		Selected:  m.HomeCountry,
	})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec := &nav.Recorder{}
	sess, ok := s.guard.Require(ctx, rec)
	if !ok {
		follow(w, r, rec)
		return
	}

	view := settingsView{
		chrome:    chrome{Title: "Settings", Email: sess.User.Email},
		Countries: catalog.Countries(),
	}
	c, err := catalog.ParseCountry(r.PostFormValue("country"))
	if err != nil || c == 0 {
		view.Error = msgSelectCountry
		s.render(w, r, http.StatusOK, "settings.html", view)
		return
	}
	view.Selected = c

	if _, err := s.sessions.SaveHomeCountry(ctx, c); err != nil {
		view.Error = msgSaveFailed
		var ae *identity.AuthError
		if errors.As(err, &ae) && strings.TrimSpace(ae.Message) != "" {
			view.Error = ae.Message
		}
		s.render(w, r, http.StatusOK, "settings.html", view)
		return
	}
	view.Success = msgSettingsSaved
	view.Forward = nav.Calculator.Path()
	view.ForwardAfter = int(SettingsForwardDelay.Seconds())
	s.render(w, r, http.StatusOK, "settings.html", view)
}
