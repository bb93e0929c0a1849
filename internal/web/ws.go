package web

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/session"
)

// sendBuffer bounds the frames queued for a slow client; further frames are dropped.
const sendBuffer = 64

// Frame is one websocket message sent to clients.
type Frame struct {
	Type     string             `json:"type"` // snapshot, event, record, error, ack
	Snapshot *dialogue.Snapshot `json:"snapshot,omitempty"`
	Event    *dialogue.Event    `json:"event,omitempty"`
	Record   *session.Event     `json:"record,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Command is a client request. Only reactions on live sessions are accepted.
type Command struct {
	Action        string `json:"action"`
	MessageID     string `json:"message_id"`
	ParticipantID string `json:"participant_id"`
	Tag           string `json:"tag"`
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan Frame

	once sync.Once
	done chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan Frame, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue never blocks the publisher.
func (c *client) enqueue(f Frame) {
	select {
	case <-c.done:
	case c.send <- f:
	default:
		log.Warn("client %s is slow, dropping %s frame", c.id, f.Type)
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writeLoop owns all writes to the connection.
func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			if err := c.conn.WriteJSON(f); err != nil {
				c.close()
				return
			}
		}
	}
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// handleWebSocket sends the current snapshot, then streams changes until the
// client goes away.
func (s *Server) handleWebSocket(conn *websocket.Conn) {
	name := conn.Params("name")
	cl := newClient(conn)
	defer cl.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snap, err := s.snapshot(ctx, name)
	if err != nil {
		_ = conn.WriteJSON(Frame{Type: "error", Error: err.Error()})
		return
	}

	s.mu.Lock()
	s.clients[cl.id] = cl
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, cl.id)
		s.mu.Unlock()
	}()
	log.Debug("client %s watching %s", cl.id, name)

	live, isLive := s.lookupLive(name)
	if isLive {
		unsubscribe := live.Subscribe(func(ev dialogue.Event) {
			cl.enqueue(Frame{Type: "event", Event: &ev})
		})
		defer unsubscribe()
	} else if s.store != nil {
		err := s.store.Watch(ctx, name, func(ev session.Event) {
			cl.enqueue(Frame{Type: "record", Record: &ev})
		})
		if err != nil {
			log.Warn("cannot watch %s: %v", name, err)
		}
	}

	// Changes racing the subscription are queued ahead of this snapshot, which
	// already includes them.
	if fresh, err := s.snapshot(ctx, name); err == nil {
		snap = fresh
	}
	cl.enqueue(Frame{Type: "snapshot", Snapshot: &snap})
	go cl.writeLoop()

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			log.Debug("client %s left: %v", cl.id, err)
			return
		}
		cl.enqueue(s.command(ctx, live, cmd))
	}
}

func (s *Server) command(ctx context.Context, live Live, cmd Command) Frame {
	if cmd.Action != "react" {
		return Frame{Type: "error", Error: "unknown action " + cmd.Action}
	}
	if live == nil {
		return Frame{Type: "error", Error: "session is read-only"}
	}
	tag, err := dialogue.ParseTag(cmd.Tag)
	if err != nil {
		return Frame{Type: "error", Error: err.Error()}
	}
	if err := live.React(ctx, cmd.MessageID, cmd.ParticipantID, tag); err != nil {
		return Frame{Type: "error", Error: err.Error()}
	}
	return Frame{Type: "ack"}
}
