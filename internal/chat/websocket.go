package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Outbound frame types.
const (
	FrameTyping  = "typing"
	FrameMessage = "message"
	FrameError   = "error"
)

// OutboundFrame is written to the client for every typing step, completed
// message, or failure.
type OutboundFrame struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

const defaultWriteTimeout = 10 * time.Second

// WebSocketChannel serves one chat session per WebSocket connection.
type WebSocketChannel struct {
	handler        Handler
	typing         bool
	originPatterns []string
}

// WebSocketOption configures a WebSocketChannel.
type WebSocketOption func(*WebSocketChannel)

// WithTyping enables or disables the typing animation frames.
func WithTyping(enabled bool) WebSocketOption {
	return func(c *WebSocketChannel) {
		c.typing = enabled
	}
}

// WithOriginPatterns allows cross-origin clients matching the patterns.
func WithOriginPatterns(patterns ...string) WebSocketOption {
	return func(c *WebSocketChannel) {
		c.originPatterns = patterns
	}
}

// NewWebSocketChannel creates a channel that dispatches inbound actions to handler.
func NewWebSocketChannel(handler Handler, opts ...WebSocketOption) *WebSocketChannel {
	c := &WebSocketChannel{handler: handler, typing: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Serve upgrades the request and processes actions for sessionID until the
// client disconnects or the request context ends.
func (c *WebSocketChannel) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: c.originPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	slog.Info("websocket connected", "session_id", sessionID)

	for {
		var in InboundMessage
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				slog.Info("websocket closed", "session_id", sessionID)
				return
			}
			slog.Warn("websocket read failed", "session_id", sessionID, "error", err)
			conn.Close(websocket.StatusUnsupportedData, "invalid frame")
			return
		}
		in.SessionID = sessionID

		replies, err := c.handler(ctx, in)
		if err != nil {
			slog.Warn("chat action failed", "session_id", sessionID, "action", in.Action, "error", err)
			if werr := c.write(ctx, conn, OutboundFrame{Type: FrameError, Message: Message{Text: err.Error(), FromAI: true}}); werr != nil {
				return
			}
			continue
		}

		for _, msg := range replies {
			if err := c.send(ctx, conn, msg); err != nil {
				slog.Warn("websocket write failed", "session_id", sessionID, "error", err)
				return
			}
		}
	}
}

// send streams the typing frames of msg, then the completed message.
func (c *WebSocketChannel) send(ctx context.Context, conn *websocket.Conn, msg Message) error {
	if c.typing && msg.FromAI {
		for _, f := range TypingFrames(msg.Text) {
			frame := OutboundFrame{Type: FrameTyping, Message: Message{
				ID:         msg.ID,
				Text:       f.Text,
				FromAI:     true,
				IsQuestion: msg.IsQuestion,
			}}
			if err := c.write(ctx, conn, frame); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.Delay):
			}
		}
	}
	return c.write(ctx, conn, OutboundFrame{Type: FrameMessage, Message: msg})
}

func (c *WebSocketChannel) write(ctx context.Context, conn *websocket.Conn, frame OutboundFrame) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, frame)
}
