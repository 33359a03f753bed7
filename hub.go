package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type hubOptions struct {
	sendTimeout     time.Duration
	storeTimeout    time.Duration
	pingPeriod      time.Duration
	collabScope     string
	evictOnClose    bool
	evictSuperseded bool
	now             func() time.Time
}

func hubOptionsFrom(cfg config) hubOptions {
	return hubOptions{
		sendTimeout:     cfg.sendTimeout,
		storeTimeout:    cfg.storeTimeout,
		pingPeriod:      cfg.pingPeriod,
		collabScope:     cfg.collabScope,
		evictOnClose:    cfg.evictOnClose,
		evictSuperseded: cfg.evictSuperseded,
		now:             time.Now,
	}
}

// hub owns the connection registry and drives every connection's state
// machine against the shared store.
type hub struct {
	opts      hubOptions
	registry  *registry
	store     store
	verifier  identityVerifier
	metrics   *metrics
	heartbeat *mTicker
	log       *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mux    sync.Mutex // Protects closed and wg.Add against shutdown
	closed bool
	wg     sync.WaitGroup
}

func newHub(opts hubOptions, st store, v identityVerifier, m *metrics, log *logrus.Entry) *hub {
	if opts.now == nil {
		opts.now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &hub{
		opts:      opts,
		registry:  newRegistry(),
		store:     st,
		verifier:  v,
		metrics:   m,
		heartbeat: newMTicker(opts.pingPeriod),
		log:       log.WithField("component", "hub"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// serve runs a connection until its transport closes or the hub shuts down.
func (h *hub) serve(w websocketManager, addr string) {
	h.mux.Lock()
	if h.closed {
		h.mux.Unlock()
		w.wsClose()
		return
	}
	h.wg.Add(1)
	h.mux.Unlock()

	defer h.wg.Done()
	newConnection(h, w, addr).run()
}

// shutdown closes every connection and waits for them to finish cleanup.
func (h *hub) shutdown(timeout time.Duration) error {
	h.mux.Lock()
	h.closed = true
	h.mux.Unlock()
	h.cancel()
	h.heartbeat.stop()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.log.Info("all connections closed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("shutdown timed out with connections still open")
		return context.DeadlineExceeded
	}
}

func (h *hub) storeContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, h.opts.storeTimeout)
}

// dispatch handles one inbound frame. Every path ends with a side effect
// or an error event back to the sender.
func (h *hub) dispatch(c *connection, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("recovered while handling event")
			c.reply(errorEvent(typeError, msgInvalidFormat))
		}
	}()

	err := h.handle(c, raw)
	if err == nil {
		return
	}
	entry := c.log.WithError(err).WithField("user", c.identity)
	if errors.Is(err, errStoreUnavailable) {
		entry.Warn("event failed")
	} else {
		entry.Debug("event rejected")
	}
	c.reply(errorEvent(replyType(err), replyMessage(err)))
}

func (h *hub) handle(c *connection, raw []byte) error {
	ev, err := decodeEvent(raw)
	if err != nil {
		return err
	}
	switch ev.Type {
	case typeAuth:
		return h.auth(c, ev.Payload)
	case typeJoinRoom:
		return h.joinRoom(c, ev.Payload)
	case typeRoomMessage:
		return h.roomMessage(c, ev.Payload)
	case typeCollaboration:
		return h.collaborate(c, ev.Payload)
	default:
		return newClientError(errUnknownEvent, msgUnknownType, nil)
	}
}

func (h *hub) auth(c *connection, raw json.RawMessage) error {
	var p authPayload
	if err := decodePayload(raw, &p); err != nil {
		h.metrics.incr("auth.failure", 1)
		return newClientError(errAuthentication, msgInvalidToken, err)
	}
	identity, err := h.verifier.verify(p.Token)
	if err != nil {
		h.metrics.incr("auth.failure", 1)
		return newClientError(errAuthentication, msgInvalidToken, err)
	}

	// Switching identity on the same connection must not leave the old
	// identity addressable through it, nor hand its rooms to the new one.
	if c.identity != "" && c.identity != identity {
		h.disconnect(c)
		c.room = ""
		clear(c.rooms)
	}
	c.identity = identity

	if prev := h.registry.register(identity, c); prev != nil {
		c.log.WithFields(logrus.Fields{"user": identity, "superseded": prev.id}).Info("identity registered from a newer connection")
		if h.opts.evictSuperseded {
			prev.stop()
		}
	}
	h.metrics.gauge("identities", int64(h.registry.len()))
	h.metrics.incr("auth.success", 1)

	c.reply(outboundEvent{Type: typeAuthSuccess, Payload: map[string]string{"userId": identity}})
	return nil
}

func (h *hub) joinRoom(c *connection, raw json.RawMessage) error {
	if c.identity == "" {
		return newClientError(errAuthorization, msgNotAuthed, nil)
	}
	var p joinPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return newClientError(errMalformedInput, msgRoomRequired, nil)
	}

	ctx, cancel := h.storeContext(c.ctx)
	defer cancel()
	if err := h.store.addMember(ctx, roomKey(p.RoomID), c.identity); err != nil {
		return newClientError(errStoreUnavailable, msgJoinFailed, err)
	}
	c.room = p.RoomID
	c.rooms[p.RoomID] = struct{}{}
	h.metrics.incr("rooms.joins", 1)
	c.log.WithField("room", p.RoomID).Debug("joined room")

	c.reply(outboundEvent{Type: typeRoomJoined, Payload: joinPayload{RoomID: p.RoomID}})
	return nil
}

func (h *hub) roomMessage(c *connection, raw json.RawMessage) error {
	if c.identity == "" || c.room == "" {
		return newClientError(errAuthorization, msgNotInRoom, nil)
	}
	payload, err := enrich(raw, c.identity, h.opts.now())
	if err != nil {
		return err
	}

	ctx, cancel := h.storeContext(c.ctx)
	defer cancel()
	h.broadcast(ctx, c.room, outboundEvent{Type: typeRoomMessage, Payload: payload})
	return nil
}

func (h *hub) collaborate(c *connection, raw json.RawMessage) error {
	if c.identity == "" {
		return newClientError(errAuthorization, msgNotAuthed, nil)
	}
	if h.opts.collabScope == collabRoom && c.room == "" {
		return newClientError(errAuthorization, msgNoRoom, nil)
	}
	payload, err := enrich(raw, c.identity, h.opts.now())
	if err != nil {
		return err
	}
	ev := outboundEvent{Type: typeCollaboration, Payload: payload}

	if h.opts.collabScope == collabRoom {
		ctx, cancel := h.storeContext(c.ctx)
		defer cancel()
		h.broadcastExcept(ctx, c.room, c.identity, ev)
		return nil
	}
	h.broadcastOthers(c.identity, ev)
	return nil
}

// disconnect releases what the connection's identity holds in the registry
// and, when configured, in room membership. It runs on close and when the
// connection re-authenticates as someone else. A connection that was
// superseded leaves both alone.
func (h *hub) disconnect(c *connection) {
	if c.identity == "" {
		return
	}
	if !h.registry.unregister(c.identity, c) {
		c.log.Debug("identity already held by a newer connection")
		return
	}
	h.metrics.gauge("identities", int64(h.registry.len()))

	if !h.opts.evictOnClose || len(c.rooms) == 0 {
		return
	}
	ctx, cancel := h.storeContext(context.WithoutCancel(c.ctx))
	defer cancel()
	for room := range c.rooms {
		if err := h.store.removeMember(ctx, roomKey(room), c.identity); err != nil {
			c.log.WithError(err).WithField("room", room).Warn("could not evict room membership")
		}
	}
}
