package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// socketFrame is one inbound client message.
type socketFrame struct {
	MessageType string       `json:"messageType"`
	MessageID   any          `json:"messageId,omitempty"`
	Action      string       `json:"action,omitempty"`
	Params      action.Input `json:"params,omitempty"`
	Channel     string       `json:"channel,omitempty"`
}

// socketClient is one long-lived connection with its subscriptions.
type socketClient struct {
	ws   *websocket.Conn
	conn *action.Connection

	writeMu sync.Mutex

	subMu   sync.Mutex
	cancels map[string]func()
}

func (c *socketClient) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// sendFrame writes a reply frame, logging a failed write. The read loop will
// notice a dead connection on its own; the failure is not propagated.
func (s *Server) sendFrame(ctx context.Context, client *socketClient, v any) {
	if err := client.send(v); err != nil {
		s.logger.WarnContext(ctx, "socket write failed", slog.String("error", err.Error()))
	}
}

// handleSocket upgrades the request and serves frames until the client goes
// away. Close deregisters every subscription.
func (s *Server) handleSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	conn := &action.Connection{
		Kind:       "websocket",
		RemoteAddr: c.RealIP(),
	}
	if cookie, err := c.Cookie(s.opts.CookieName); err == nil && cookie.Value != "" {
		conn.SessionID = cookie.Value
	} else {
		conn.SessionID = uuid.NewString()
	}

	client := &socketClient{
		ws:      ws,
		conn:    conn,
		cancels: make(map[string]func()),
	}

	defer func() {
		client.subMu.Lock()
		for _, cancel := range client.cancels {
			cancel()
		}
		client.cancels = nil
		client.subMu.Unlock()
		ws.Close()
	}()

	ctx := c.Request().Context()
	for {
		var frame socketFrame
		if err := ws.ReadJSON(&frame); err != nil {
			return nil
		}
		s.handleFrame(ctx, client, frame)
	}
}

func (s *Server) handleFrame(ctx context.Context, client *socketClient, frame socketFrame) {
	switch frame.MessageType {
	case "action":
		env := s.dispatcher.Act(ctx, client.conn, frame.Action, frame.Params)
		reply := map[string]any{"messageId": frame.MessageID}
		if env.IsError() {
			reply["error"] = env.Err
		} else {
			reply["response"] = env.Response
		}
		s.sendFrame(ctx, client, reply)

	case "subscribe":
		s.subscribe(ctx, client, frame)

	case "unsubscribe":
		client.subMu.Lock()
		if cancel, ok := client.cancels[frame.Channel]; ok {
			cancel()
			delete(client.cancels, frame.Channel)
		}
		client.subMu.Unlock()
		s.sendFrame(ctx, client, map[string]any{"messageId": frame.MessageID, "subscribed": false, "channel": frame.Channel})

	default:
		env := schema.Fail(schema.NewErrorf(schema.KindParamValidation,
			"unknown messageType %q", frame.MessageType))
		s.sendFrame(ctx, client, map[string]any{"messageId": frame.MessageID, "error": env.Err})
	}
}

func (s *Server) subscribe(ctx context.Context, client *socketClient, frame socketFrame) {
	client.subMu.Lock()
	if client.cancels == nil {
		client.subMu.Unlock()
		return
	}
	if _, exists := client.cancels[frame.Channel]; exists {
		client.subMu.Unlock()
		s.sendFrame(ctx, client, map[string]any{"messageId": frame.MessageID, "subscribed": true, "channel": frame.Channel})
		return
	}
	client.subMu.Unlock()

	ch, cancel, err := s.hub.Subscribe(ctx, frame.Channel)
	if err != nil {
		env := schema.Fail(err)
		s.sendFrame(ctx, client, map[string]any{"messageId": frame.MessageID, "error": env.Err})
		return
	}

	client.subMu.Lock()
	client.cancels[frame.Channel] = cancel
	client.subMu.Unlock()

	go func() {
		for msg := range ch {
			payload, err := json.Marshal(map[string]any{"message": msg.Payload, "channel": msg.Channel})
			if err != nil {
				continue
			}
			client.writeMu.Lock()
			werr := client.ws.WriteMessage(websocket.TextMessage, payload)
			client.writeMu.Unlock()
			if werr != nil {
				return
			}
		}
	}()

	s.sendFrame(ctx, client, map[string]any{"messageId": frame.MessageID, "subscribed": true, "channel": frame.Channel})
}
