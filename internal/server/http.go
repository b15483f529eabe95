package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/realtime"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

// Options configures the HTTP server surface.
type Options struct {
	Addr        string
	APIPrefix   string
	CookieName  string
	CORSOrigins []string
}

// Server exposes every routed action over HTTP and the socket surface over
// /ws. All transports share one dispatcher; the server only translates
// requests into connections and params.
type Server struct {
	echo       *echo.Echo
	dispatcher *action.Dispatcher
	hub        realtime.Hub
	opts       Options
	logger     *slog.Logger
}

// New creates the HTTP server and mounts all routes.
func New(dispatcher *action.Dispatcher, hub realtime.Hub, opts Options, logger *slog.Logger) *Server {
	if opts.CookieName == "" {
		opts.CookieName = "botholomew-session"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     opts.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowCredentials: true,
	}))

	s := &Server{
		echo:       e,
		dispatcher: dispatcher,
		hub:        hub,
		opts:       opts,
		logger:     logger,
	}

	s.mountRoutes()
	e.GET("/ws", s.handleSocket)

	// Anything that matched no action route is a routing miss, reported in
	// the same envelope shape as every other error.
	e.Any("/*", func(c echo.Context) error {
		env := schema.Fail(schema.NewErrorf(schema.KindActionNotFound,
			"no action found for %s %s", c.Request().Method, c.Request().URL.Path))
		return c.JSON(env.Status(), env)
	})

	return s
}

func (s *Server) mountRoutes() {
	prefix := strings.TrimSuffix(s.opts.APIPrefix, "/")
	for _, a := range s.dispatcher.Registry().Routed() {
		routed := a.(action.Routed)
		route := routed.Route()
		name := a.Name()
		s.echo.Add(route.Method, prefix+route.Path, s.actionHandler(name))
	}
}

// actionHandler adapts one routed action into an echo handler. Params merge
// in strict precedence: path placeholders, then body, then query string; a
// lower layer never overwrites a key a higher layer already set.
func (s *Server) actionHandler(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := action.Input{}

		for i, pname := range c.ParamNames() {
			params[pname] = c.ParamValues()[i]
		}

		if body := bodyParams(c); body != nil {
			for k, v := range body {
				if _, exists := params[k]; !exists {
					params[k] = v
				}
			}
		}

		for k, values := range c.QueryParams() {
			if _, exists := params[k]; !exists && len(values) > 0 {
				params[k] = values[0]
			}
		}

		conn, mintedNew := s.connectionFor(c)
		env := s.dispatcher.Act(c.Request().Context(), conn, name, params)

		// A login (or logout) changed the session; reflect it in the cookie.
		if cookie, _ := c.Cookie(s.opts.CookieName); mintedNew || cookie == nil || conn.SessionID != cookie.Value {
			s.setSessionCookie(c, conn.SessionID)
		}

		return c.JSON(env.Status(), env)
	}
}

// bodyParams decodes a JSON or form request body into a param map.
func bodyParams(c echo.Context) map[string]any {
	req := c.Request()
	if req.Body == nil || req.ContentLength == 0 {
		return nil
	}

	contentType := req.Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(contentType, echo.MIMEApplicationJSON):
		var body map[string]any
		if err := c.Bind(&body); err != nil {
			return nil
		}
		return body
	case strings.HasPrefix(contentType, echo.MIMEApplicationForm),
		strings.HasPrefix(contentType, echo.MIMEMultipartForm):
		form, err := c.FormParams()
		if err != nil {
			return nil
		}
		body := make(map[string]any, len(form))
		for k, values := range form {
			if len(values) > 0 {
				body[k] = values[0]
			}
		}
		return body
	default:
		return nil
	}
}

// connectionFor establishes request identity from the session cookie,
// minting a fresh session identifier when none is presented.
func (s *Server) connectionFor(c echo.Context) (*action.Connection, bool) {
	conn := &action.Connection{
		Kind:       "web",
		RemoteAddr: c.RealIP(),
	}

	if cookie, err := c.Cookie(s.opts.CookieName); err == nil && cookie.Value != "" {
		conn.SessionID = cookie.Value
		return conn, false
	}

	conn.SessionID = uuid.NewString()
	return conn, true
}

func (s *Server) setSessionCookie(c echo.Context, sessionID string) {
	cookie := &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if sessionID == "" {
		cookie.MaxAge = -1
	}
	c.SetCookie(cookie)
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.opts.Addr))
	err := s.echo.Start(s.opts.Addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
