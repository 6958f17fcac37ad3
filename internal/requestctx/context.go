// Package requestctx carries the conversation session id from HTTP middleware
// to the ingest pipeline.
package requestctx

import (
	"context"
	"strings"
)

type key int

const sessionKey key = iota

// SetSessionID returns ctx carrying id. Blank ids leave ctx unchanged so an
// empty header never masks a session set further up.
func SetSessionID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, id)
}

// SessionID returns the session id in ctx, or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey).(string)
	return id
}
