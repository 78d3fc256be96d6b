package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionScope wraps a pooled connection for one logical unit of warehouse
// work (one entity merge, one fact upsert, one audit query). Scopes are
// acquired per operation and released immediately after; a transaction never
// spans unrelated keys.
type SessionScope struct {
	Conn *pgxpool.Conn
}

// Close releases the connection back to the pool.
// This MUST be called, or the pool drains under load.
func (s *SessionScope) Close() {
	if s.Conn == nil {
		return
	}
	s.Conn.Release()
}

// AcquireSession checks a connection out of the pool for one logical unit of
// work. The returned SessionScope MUST be closed with defer scope.Close().
func (db *DB) AcquireSession(ctx context.Context) (*SessionScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &SessionScope{Conn: conn}, nil
}

type contextKey string

const (
	// SessionScopeKey is the context key for the per-operation session scope.
	SessionScopeKey contextKey = "sessionScope"
)

// GetSession retrieves the session scope from context.
// Returns nil and false if not present.
func GetSession(ctx context.Context) (*SessionScope, bool) {
	scope, ok := ctx.Value(SessionScopeKey).(*SessionScope)
	return scope, ok
}

// SetSession stores the session scope in context for repository calls.
func SetSession(ctx context.Context, scope *SessionScope) context.Context {
	return context.WithValue(ctx, SessionScopeKey, scope)
}
