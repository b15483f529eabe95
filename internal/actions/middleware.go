package actions

import (
	"context"
	"time"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/store"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

// MiddlewareAuth is the name actions declare to require a logged-in user.
const MiddlewareAuth = "auth"

// AuthMiddleware resolves the connection's session to a user before the
// action body runs. A missing or expired session rejects the invocation.
type AuthMiddleware struct {
	store store.Store
}

// NewAuthMiddleware creates the auth middleware.
func NewAuthMiddleware(s store.Store) *AuthMiddleware {
	return &AuthMiddleware{store: s}
}

func (m *AuthMiddleware) Name() string { return MiddlewareAuth }

func (m *AuthMiddleware) Before(ctx context.Context, conn *action.Connection, params action.Input) error {
	if conn == nil || conn.SessionID == "" {
		return schema.NewError(schema.KindSessionNotFound, "session required")
	}

	session, err := m.store.GetSession(ctx, conn.SessionID)
	if err != nil {
		if schema.IsKind(err, schema.KindNotFound) {
			return schema.NewError(schema.KindSessionNotFound, "session not found")
		}
		return err
	}
	if time.Now().After(session.ExpiresAt) {
		return schema.NewError(schema.KindSessionNotFound, "session expired")
	}

	conn.UserID = session.UserID
	return nil
}

func (m *AuthMiddleware) After(ctx context.Context, conn *action.Connection, result any) error {
	return nil
}
