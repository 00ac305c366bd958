// Package auth identifies browsers and requests. A browser is identified by an
// opaque key kept in a cookie; the key selects the browser's session record.
package auth

import (
	"context"
	"errors"
)

type contextKey string

const browserKeyKey contextKey = "browser_key"

// ErrNoBrowserKey is returned when the context carries no browser key.
var ErrNoBrowserKey = errors.New("no browser key in context")

// WithBrowserKey attaches a browser key to the context.
func WithBrowserKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, browserKeyKey, key)
}

// BrowserKey retrieves the browser key from the context.
func BrowserKey(ctx context.Context) (string, error) {
	key, ok := ctx.Value(browserKeyKey).(string)
	if !ok || key == "" {
		return "", ErrNoBrowserKey
	}
	return key, nil
}
