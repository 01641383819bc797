package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/marketpulse/presence-backend/internal/hub"
	"github.com/marketpulse/presence-backend/internal/presence"
	"github.com/marketpulse/presence-backend/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	// readTimeout bounds a single read; clients heartbeat every 10s,
	// so a quiet minute means the connection is gone.
	readTimeout = 60 * time.Second
)

// Handler serves the presence channel. Scoping happens through the
// join payload, not the URL: one endpoint covers all content types.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// The first message must be a join; everything before one is
		// noise and closes the connection.
		join, ok := readJoin(r.Context(), conn, log)
		if !ok {
			return
		}
		scope, ok := presence.ParseContentType(join.Presence.ContentType)
		if !ok || join.Presence.ContentID == "" {
			log.Warn("join with invalid scope",
				zap.String("content_type", join.Presence.ContentType))
			return
		}

		out := make(chan types.Envelope, 16)
		reply := make(chan string, 1)
		h.Inbox() <- hub.Join{
			Presence: *join.Presence,
			Scope:    presence.Scope{Type: scope, ID: join.Presence.ContentID},
			Outbox:   out,
			Reply:    reply,
		}
		sessionID := <-reply

		// Abnormal close takes the same path as an explicit leave;
		// the hub's removal is idempotent so a duplicate is harmless.
		defer func() { h.Inbox() <- hub.Leave{SessionID: sessionID} }()

		// Writer goroutine: drains the hub outbox until it closes.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for env := range out {
				payload, _ := json.Marshal(env)
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop.
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				// Leave in defer covers clean and abnormal closes alike.
				return
			}

			var env types.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				// Dropped, connection stays open: no protocol-level NACK.
				log.Warn("malformed message", zap.Error(err))
				continue
			}

			switch env.Type {
			case types.TypeHeartbeat:
				h.Inbox() <- hub.Heartbeat{SessionID: sessionID}
			case types.TypeUpdate:
				if env.Presence == nil {
					continue
				}
				h.Inbox() <- hub.Update{
					SessionID: sessionID,
					Field:     env.Presence.Field,
					Cursor:    env.Presence.CursorPosition,
				}
			case types.TypeLeave:
				return
			default:
				log.Warn("unexpected message type", zap.String("type", env.Type))
			}
		}
	}
}

func readJoin(ctx context.Context, conn *websocket.Conn, log *zap.Logger) (types.Envelope, bool) {
	readCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	_, data, err := conn.Read(readCtx)
	if err != nil {
		return types.Envelope{}, false
	}
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn("malformed join", zap.Error(err))
		return types.Envelope{}, false
	}
	if env.Type != types.TypeJoin || env.Presence == nil {
		log.Warn("expected join", zap.String("type", env.Type))
		return types.Envelope{}, false
	}
	return env, true
}
