package main

import (
	"context"
	"encoding/json"
)

// broadcast delivers ev to every member of room with a live connection,
// the sender included. It returns how many connections accepted it.
func (h *hub) broadcast(ctx context.Context, room string, ev outboundEvent) int {
	return h.broadcastExcept(ctx, room, "", ev)
}

// broadcastExcept is broadcast with one identity left out. An unreadable
// membership set counts as empty.
func (h *hub) broadcastExcept(ctx context.Context, room, exclude string, ev outboundEvent) int {
	message, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("could not encode broadcast")
		return 0
	}
	h.metrics.incr("broadcast.rooms", 1)

	members, err := h.store.members(ctx, roomKey(room))
	if err != nil {
		h.log.WithError(err).WithField("room", room).Warn("room membership unavailable")
		h.metrics.incr("broadcast.store_errors", 1)
		return 0
	}

	delivered := 0
	for _, identity := range members {
		if identity == exclude {
			continue
		}
		c, ok := h.registry.lookup(identity)
		if !ok {
			continue
		}
		if h.deliver(c, message) {
			delivered++
		}
	}
	return delivered
}

// broadcastOthers delivers ev to every registered identity except sender.
func (h *hub) broadcastOthers(sender string, ev outboundEvent) int {
	message, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("could not encode broadcast")
		return 0
	}

	delivered := 0
	for _, c := range h.registry.others(sender) {
		if h.deliver(c, message) {
			delivered++
		}
	}
	return delivered
}

// broadcastToIdentity pushes ev straight to identity's connection, if any.
func (h *hub) broadcastToIdentity(identity string, ev outboundEvent) bool {
	c, ok := h.registry.lookup(identity)
	if !ok {
		return false
	}
	message, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("could not encode notification")
		return false
	}
	return h.deliver(c, message)
}

// deliver is a bounded, best-effort send. A recipient that cannot keep up
// loses the message; nobody else waits on it beyond sendTimeout.
func (h *hub) deliver(c *connection, message []byte) bool {
	if c.deliver(message, h.opts.sendTimeout) {
		return true
	}
	if c.isOpen() {
		h.metrics.incr("conn.drops", 1)
		c.log.Warn("send queue full; message dropped")
	}
	return false
}
