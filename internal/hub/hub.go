package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/presence-backend/internal/presence"
	"github.com/marketpulse/presence-backend/internal/types"
)

type Msg interface{ isHubMsg() }

// Join registers a new session. The connection handler receives the
// assigned session id on Reply and all server->client traffic on Outbox.
type Join struct {
	Presence types.Presence
	Scope    presence.Scope
	Outbox   chan types.Envelope
	Reply    chan string
}

func (Join) isHubMsg() {}

// Update moves a session's focus to another field. The session id
// comes from the channel that owns it, never from the payload.
type Update struct {
	SessionID string
	Field     string
	Cursor    *int
}

func (Update) isHubMsg() {}

type Heartbeat struct{ SessionID string }

func (Heartbeat) isHubMsg() {}

type Leave struct{ SessionID string }

func (Leave) isHubMsg() {}

// Roster asks for the current sessions in one scope.
type Roster struct {
	Scope presence.Scope
	Reply chan []presence.Session
}

func (Roster) isHubMsg() {}

// GetView reflects internal state without data races; used by tests
// and the health handler.
type GetView struct {
	Reply chan View
}

func (GetView) isHubMsg() {}

type View struct {
	NumSessions int
	Sessions    []presence.Session
}

type Shutdown struct{}

func (Shutdown) isHubMsg() {}

// sweep is posted by the reaper ticker so evictions serialize with
// every other mutation on the loop.
type sweep struct{}

func (sweep) isHubMsg() {}

type Options struct {
	// ReapTimeout must stay strictly greater than the client heartbeat
	// interval so one missed beat is tolerated and two are not.
	ReapTimeout   time.Duration
	SweepInterval time.Duration
	Logger        *zap.Logger
}

// Hub owns the registry and scope index. A single loop goroutine
// applies every mutation, so a reaped session can never be updated
// back into existence by a racing channel handler.
type Hub struct {
	inbox    chan Msg
	registry *presence.Registry
	index    *presence.ScopeIndex
	outboxes map[string]chan types.Envelope
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.ReapTimeout <= 0 {
		opts.ReapTimeout = 30 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan Msg, 64),
		registry: presence.NewRegistry(),
		index:    presence.NewScopeIndex(),
		outboxes: make(map[string]chan types.Envelope),
		opts:     opts,
		log:      opts.Logger.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}

	go h.loop()
	go h.reaper()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Registry exposes read-only lookups for the HTTP layer.
func (h *Hub) Registry() *presence.Registry { return h.registry }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				h.handleJoin(msg)
			case Update:
				h.handleUpdate(msg)
			case Heartbeat:
				h.registry.Touch(msg.SessionID)
			case Leave:
				h.removeSession(msg.SessionID, "leave")
			case sweep:
				h.handleSweep()
			case Roster:
				msg.Reply <- h.rosterOf(msg.Scope)
			case GetView:
				all := h.registry.All()
				msg.Reply <- View{NumSessions: len(all), Sessions: all}
			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

// reaper sweeps independently of channel activity so a session is
// evicted even when its underlying connection never fires a close.
func (h *Hub) reaper() {
	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			select {
			case h.inbox <- sweep{}:
			case <-h.ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) handleJoin(msg Join) {
	id := h.registry.Register(presence.FromWire(msg.Presence, msg.Scope))
	sess, _ := h.registry.Get(id)
	h.index.Add(sess)
	h.outboxes[id] = msg.Outbox
	msg.Reply <- id

	// Direct sync reply: the full roster for the scope, plus an echo
	// of the joiner's own record so it learns its assigned id.
	roster := h.rosterOf(msg.Scope)
	wires := make([]types.Presence, 0, len(roster))
	for _, s := range roster {
		wires = append(wires, s.ToWire())
	}
	self := sess.ToWire()
	h.send(id, msg.Outbox, types.Envelope{
		Type:      types.TypeSync,
		Presence:  &self,
		Presences: wires,
		Timestamp: time.Now().UnixMilli(),
	})
	if _, ok := h.registry.Get(id); !ok {
		// Dropped while delivering its own sync; nothing to announce.
		return
	}

	h.broadcast(msg.Scope, id, types.TypeJoin, sess)
	h.log.Info("session joined",
		zap.String("session_id", id),
		zap.String("user_id", sess.UserID),
		zap.String("content_type", string(msg.Scope.Type)),
		zap.String("content_id", msg.Scope.ID))
}

func (h *Hub) handleUpdate(msg Update) {
	sess, ok := h.registry.Update(msg.SessionID, msg.Field, msg.Cursor)
	if !ok {
		// Already reaped; the in-flight update is dropped.
		return
	}
	h.broadcast(sess.Scope, sess.ID, types.TypeUpdate, sess)
}

func (h *Hub) handleSweep() {
	cutoff := time.Now().Add(-h.opts.ReapTimeout)
	for _, id := range h.registry.StaleSince(cutoff) {
		h.removeSession(id, "heartbeat timeout")
	}
}

// removeSession is the single cleanup path for explicit leave,
// abnormal close, and reaper timeout. Registry.Remove reports false
// on a repeat, so concurrent leave+timeout yields one broadcast.
func (h *Hub) removeSession(id, reason string) {
	sess, ok := h.registry.Remove(id)
	if !ok {
		return
	}
	h.index.Remove(sess)
	if out, ok := h.outboxes[id]; ok {
		close(out)
		delete(h.outboxes, id)
	}
	h.broadcast(sess.Scope, id, types.TypeLeave, sess)
	h.log.Info("session removed",
		zap.String("session_id", id),
		zap.String("user_id", sess.UserID),
		zap.String("reason", reason))
}

// broadcast fans an event out to every session in scope except the
// originator. Peers on other documents never see it.
func (h *Hub) broadcast(scope presence.Scope, except string, msgType string, sess presence.Session) {
	wire := sess.ToWire()
	env := types.Envelope{
		Type:      msgType,
		Presence:  &wire,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, id := range h.index.SessionsIn(scope) {
		if id == except {
			continue
		}
		out, ok := h.outboxes[id]
		if !ok {
			continue
		}
		h.send(id, out, env)
	}
}

// send never blocks the loop: a session whose outbox is full is
// slow or dead and gets dropped through the normal removal path.
func (h *Hub) send(id string, out chan types.Envelope, env types.Envelope) {
	select {
	case out <- env:
	default:
		h.log.Warn("dropping slow session", zap.String("session_id", id))
		h.removeSession(id, "slow consumer")
	}
}

func (h *Hub) rosterOf(scope presence.Scope) []presence.Session {
	ids := h.index.SessionsIn(scope)
	roster := make([]presence.Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := h.registry.Get(id); ok {
			roster = append(roster, s)
		}
	}
	return roster
}

func (h *Hub) shutdown() {
	for id, out := range h.outboxes {
		close(out)
		delete(h.outboxes, id)
	}
	h.cancel()
}
