package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/hydra/internal/events"
)

// wsMessage is the envelope pushed to every connected client.
type wsMessage struct {
	Type    string      `json:"type"`
	Signals interface{} `json:"signals,omitempty"`
	Summary interface{} `json:"summary,omitempty"`
	Blowup  interface{} `json:"blowup,omitempty"`
}

// wsConn serializes writes to one connection: the push loop and the ping-reply loop both write,
// and nhooyr.io/websocket requires a single writer at a time.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(ctx context.Context, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(ctx, c.conn, v)
}

func (c *wsConn) writeText(ctx context.Context, s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, []byte(s))
}

// handleWebSocket accepts a single /ws connection, pushes an initial snapshot, then relays
// events.SignalsUpdated and events.BlowupScored pushes until the client disconnects, replying
// "pong" to any "ping" text frame the client sends. Grounded on the teacher's reconnect-aware
// websocket client (trader-go/internal/clients/tradernet/websocket_client.go), adapted here to
// the server side of the same library since the teacher only dials out, never accepts.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Error().Err(err).Msg("websocket accept failed")
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	init := wsMessage{
		Type:    "init",
		Signals: s.store.Active(nil, nil),
		Summary: s.store.SummaryOf(),
	}
	if err := conn.writeJSON(ctx, init); err != nil {
		return
	}

	go s.readLoop(ctx, cancel, conn)

	if s.events == nil {
		<-ctx.Done()
		return
	}

	ch, unsubscribe := s.events.Subscribe(16)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			msg := s.translateEvent(ev)
			if msg == nil {
				continue
			}
			if err := conn.writeJSON(ctx, msg); err != nil {
				return
			}
		}
	}
}

// readLoop drains incoming client frames, replying "pong" to a "ping" text frame, and cancels ctx
// once the client disconnects or the read errors.
func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *wsConn) {
	defer cancel()
	for {
		typ, data, err := conn.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if string(data) == "ping" {
			writeCtx, done := context.WithTimeout(ctx, 5*time.Second)
			_ = conn.writeText(writeCtx, "pong")
			done()
		}
	}
}

// translateEvent maps an internal events.Event onto the wire shape the dashboard expects, or nil
// if this event type has no WebSocket counterpart.
func (s *Server) translateEvent(ev events.Event) *wsMessage {
	switch ev.Type {
	case events.SignalsUpdated:
		return &wsMessage{
			Type:    "signals_update",
			Signals: s.store.Active(nil, nil),
			Summary: s.store.SummaryOf(),
		}
	case events.BlowupScored:
		return &wsMessage{
			Type:   "blowup_update",
			Blowup: s.scorer.Latest(),
		}
	default:
		return nil
	}
}
