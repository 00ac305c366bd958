package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/tradegate/pkg/auth"
	"github.com/Mindburn-Labs/tradegate/pkg/calculator"
	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
	"github.com/Mindburn-Labs/tradegate/pkg/guard"
	"github.com/Mindburn-Labs/tradegate/pkg/identity"
	"github.com/Mindburn-Labs/tradegate/pkg/session"
	"github.com/Mindburn-Labs/tradegate/pkg/store"
	"github.com/Mindburn-Labs/tradegate/pkg/workflow"
)

// terminalKey is the browser key the terminal client stores its session under.
const terminalKey = "terminal"

var errSignedOut = errors.New("not signed in: run `tradegate login`")

// local is the terminal client's view of the session layer: a facade over the
// bolt file in the home directory.
type local struct {
	facade  *session.Facade
	guard   *guard.Guard
	history store.History
	closers []func() error
}

// open loads the local session. The returned context carries the terminal's
// browser key.
func (c *cli) open(ctx context.Context) (context.Context, *local, error) {
	bs, err := session.OpenBoltStore(filepath.Join(c.home, "session.db"))
	if err != nil {
		return nil, nil, err
	}
	facade := session.New(session.Options{
		Store:            bs,
		NewProvider:      func() (identity.Provider, error) { return c.newProvider(c.cfg) },
		PublicOrigin:     c.cfg.PublicOrigin,
		ExternalProvider: c.cfg.AuthExternalProvider,
		Logger:           c.logger,
	})
	l := &local{
		facade:  facade,
		guard:   guard.New(facade),
		closers: []func() error{bs.Close},
	}
	return auth.WithBrowserKey(ctx, terminalKey), l, nil
}

// openHistory attaches the calculation history. Without a configured DSN the
// terminal keeps its own SQLite file next to the session.
func (c *cli) openHistory(l *local) error {
	dsn := c.cfg.HistoryDSN
	if dsn == "" {
		dsn = filepath.Join(c.home, "history.db")
	}
	h, err := store.Open(dsn)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	l.history = h
	l.closers = append(l.closers, h.Close)
	return nil
}

func (l *local) Close() error {
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		errs = append(errs, l.closers[i]())
	}
	return errors.Join(errs...)
}

func (l *local) recordHook(userID string) workflow.ResultHook {
	if l.history == nil {
		return nil
	}
	return func(ctx context.Context, req calculator.Request, res calculator.Result) error {
		return l.history.Record(ctx, store.Entry{UserID: userID, Request: req, Result: res})
	}
}

// lookupCountry accepts a country id or its name, case-insensitively.
func lookupCountry(raw string) (catalog.CountryID, error) {
	raw = strings.TrimSpace(raw)
	for _, c := range catalog.Countries() {
		if strings.EqualFold(c.String(), raw) {
			return c, nil
		}
	}
	c, err := catalog.ParseCountry(raw)
	if err != nil {
		return 0, err
	}
	if c == 0 {
		return 0, fmt.Errorf("%w: %q", catalog.ErrUnknownCountry, raw)
	}
	return c, nil
}

func lookupCategory(raw string) (catalog.CategoryID, error) {
	raw = strings.TrimSpace(raw)
	for _, c := range catalog.Categories() {
		if strings.EqualFold(c.String(), raw) {
			return c, nil
		}
	}
	c, err := catalog.ParseCategory(raw)
	if err != nil {
		return 0, err
	}
	if c == 0 {
		return 0, fmt.Errorf("%w: %q", catalog.ErrUnknownCategory, raw)
	}
	return c, nil
}

func lookupCondition(raw string) (catalog.Condition, error) {
	raw = strings.TrimSpace(raw)
	for _, c := range catalog.Conditions() {
		if strings.EqualFold(c.String(), raw) {
			return c, nil
		}
	}
	return catalog.ParseCondition(raw)
}

func itoa[T ~int](v T) string { return strconv.Itoa(int(v)) }
