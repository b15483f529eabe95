package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/store"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

const userCreateInputSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "email": {"type": "string", "minLength": 3},
    "password": {"type": "string", "minLength": 8}
  },
  "required": ["name", "email", "password"]
}`

const sessionCreateInputSchema = `{
  "type": "object",
  "properties": {
    "email": {"type": "string", "minLength": 3},
    "password": {"type": "string", "minLength": 1}
  },
  "required": ["email", "password"]
}`

// UserCreateAction registers a new account.
type UserCreateAction struct {
	store store.Store
}

// NewUserCreateAction creates the user:create action.
func NewUserCreateAction(s store.Store) *UserCreateAction {
	return &UserCreateAction{store: s}
}

func (a *UserCreateAction) Name() string        { return "user:create" }
func (a *UserCreateAction) Description() string { return "Register a new user account." }

func (a *UserCreateAction) InputSchema() json.RawMessage {
	return json.RawMessage(userCreateInputSchema)
}

func (a *UserCreateAction) Middleware() []string { return nil }

func (a *UserCreateAction) Route() action.Route {
	return action.Route{Method: http.MethodPut, Path: "/user"}
}

func (a *UserCreateAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(params.String("password")), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &store.User{
		ID:           uuid.NewString(),
		Name:         params.String("name"),
		Email:        params.String("email"),
		PasswordHash: string(hash),
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return map[string]any{"user": user}, nil
}

// SessionCreateAction logs a user in, minting a server-side session.
type SessionCreateAction struct {
	store store.Store
	ttl   time.Duration
}

// NewSessionCreateAction creates the session:create action.
func NewSessionCreateAction(s store.Store, ttl time.Duration) *SessionCreateAction {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionCreateAction{store: s, ttl: ttl}
}

func (a *SessionCreateAction) Name() string        { return "session:create" }
func (a *SessionCreateAction) Description() string { return "Log in and create a session." }

func (a *SessionCreateAction) InputSchema() json.RawMessage {
	return json.RawMessage(sessionCreateInputSchema)
}

func (a *SessionCreateAction) Middleware() []string { return nil }

func (a *SessionCreateAction) Route() action.Route {
	return action.Route{Method: http.MethodPut, Path: "/session"}
}

func (a *SessionCreateAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	user, err := a.store.GetUserByEmail(ctx, params.String("email"))
	if err != nil {
		if schema.IsKind(err, schema.KindNotFound) {
			return nil, schema.NewError(schema.KindSessionNotFound, "invalid email or password")
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(params.String("password"))) != nil {
		return nil, schema.NewError(schema.KindSessionNotFound, "invalid email or password")
	}

	session := &store.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(a.ttl),
	}
	if err := a.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	// The transport picks the new session ID off the connection to set the
	// cookie (or frame identity) for subsequent requests.
	if conn != nil {
		conn.SessionID = session.ID
		conn.UserID = user.ID
	}

	return map[string]any{"user": user, "session": session}, nil
}

// SessionDestroyAction logs the current session out.
type SessionDestroyAction struct {
	store store.Store
}

// NewSessionDestroyAction creates the session:destroy action.
func NewSessionDestroyAction(s store.Store) *SessionDestroyAction {
	return &SessionDestroyAction{store: s}
}

func (a *SessionDestroyAction) Name() string        { return "session:destroy" }
func (a *SessionDestroyAction) Description() string { return "Log out the current session." }

func (a *SessionDestroyAction) InputSchema() json.RawMessage { return nil }

func (a *SessionDestroyAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *SessionDestroyAction) Route() action.Route {
	return action.Route{Method: http.MethodDelete, Path: "/session"}
}

func (a *SessionDestroyAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	if err := a.store.DeleteSession(ctx, conn.SessionID); err != nil && !schema.IsKind(err, schema.KindNotFound) {
		return nil, err
	}
	conn.SessionID = ""
	conn.UserID = ""
	return map[string]any{"success": true}, nil
}
