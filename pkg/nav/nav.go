// Package nav names the three views of the application and the capability used
// to move between them.
package nav

import "sync"

// View is an in-app destination.
type View string

const (
	Entry      View = "/"
	Settings   View = "/settings"
	Calculator View = "/calculator"
)

// Path returns the URL path of the view.
func (v View) Path() string { return string(v) }

// Resolve maps a request path to a view. Unknown paths resolve to Entry.
func Resolve(path string) View {
	switch View(path) {
	case Settings, Calculator:
		return View(path)
	default:
		return Entry
	}
}

// Navigator moves the client between views or to an external URL.
//
// Navigate with replace set must not leave the abandoned view in history.
type Navigator interface {
	Navigate(v View, replace bool)
	Redirect(url string)
}

// Step is one recorded navigation.
type Step struct {
	View     View
	Replace  bool
	External string
}

// Recorder is a Navigator that records what was requested. The console uses it
// to translate navigations into HTTP redirects; tests use it to assert them.
type Recorder struct {
	mu    sync.Mutex
	steps []Step
}

func (r *Recorder) Navigate(v View, replace bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, Step{View: v, Replace: replace})
}

func (r *Recorder) Redirect(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, Step{External: url})
}

// Steps returns a copy of every recorded navigation.
func (r *Recorder) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Step(nil), r.steps...)
}

// Last returns the most recent navigation.
func (r *Recorder) Last() (Step, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.steps) == 0 {
		return Step{}, false
	}
	return r.steps[len(r.steps)-1], true
}

// Target returns where the last navigation points: the external URL when set,
// otherwise the view path.
func (s Step) Target() string {
	if s.External != "" {
		return s.External
	}
	return s.View.Path()
}
