package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection liveness.
const (
	connOpen int32 = iota
	connClosing
	connClosed
)

type connection struct {
	id     string
	addr   string
	w      websocketManager
	h      *hub
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
	log    *logrus.Entry

	// Written only by the reader goroutine.
	identity string
	room     string
	rooms    map[string]struct{}
}

func newConnection(h *hub, w websocketManager, addr string) *connection {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(h.ctx)
	return &connection{
		id:     id,
		addr:   addr,
		w:      w,
		h:      h,
		send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
		log:    h.log.WithFields(logrus.Fields{"conn": id, "addr": addr}),
		rooms:  make(map[string]struct{}),
	}
}

func (c *connection) run() {
	c.h.metrics.incr("websockets", 1)
	c.log.Info("connection opened")

	go c.writer()
	go func() {
		<-c.ctx.Done()
		c.w.wsClose()
	}()
	c.reader()

	c.state.Store(connClosing)
	c.h.disconnect(c)
	c.cancel()
	c.state.Store(connClosed)

	c.h.metrics.decr("websockets", 1)
	c.log.Info("connection closed")
}

// stop closes the transport, which ends the read loop and runs cleanup.
func (c *connection) stop() {
	c.cancel()
}

func (c *connection) isOpen() bool {
	return c.state.Load() == connOpen && c.ctx.Err() == nil
}

func (c *connection) reader() {
	c.w.wsSetReadLimit()
	c.w.wsSetReadDeadline()
	c.w.wsSetPongHandler()
	for {
		if err := c.readMessage(); err != nil {
			c.logReadError(err)
			return
		}
	}
}

func (c *connection) readMessage() error {
	_, message, err := c.w.wsReadMessage()
	if err != nil {
		return err
	}
	c.h.metrics.incr("conn.recv", 1)
	c.h.dispatch(c, message)
	return nil
}

func (c *connection) logReadError(err error) {
	switch {
	case c.ctx.Err() != nil:
		c.log.Debug("connection stopped")
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("inbound frame exceeded the size limit")
	case errors.Is(err, io.EOF), websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.WithError(err).Debug("peer closed connection")
	default:
		c.log.WithError(err).Info("read failed")
	}
}

func (c *connection) writer() {
	sub := c.h.heartbeat.subscribe()
	defer func() {
		c.h.heartbeat.unsubscribe(sub)
		c.w.wsClose()
	}()

	ticks := sub.tick
	for {
		select {
		case message := <-c.send:
			c.w.wsSetWriteDeadline()
			if err := c.w.wsWriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			c.h.metrics.incr("conn.send", 1)
		case _, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			c.w.wsSetWriteDeadline()
			if err := c.w.wsWriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// deliver queues message for the writer. It waits at most timeout when the
// queue is full and reports whether the message was queued.
func (c *connection) deliver(message []byte, timeout time.Duration) bool {
	if !c.isOpen() {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.send <- message:
		return true
	case <-c.ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

// reply sends ev to this connection only.
func (c *connection) reply(ev outboundEvent) {
	message, err := json.Marshal(ev)
	if err != nil {
		c.log.WithError(err).Error("could not encode reply")
		return
	}
	c.h.deliver(c, message)
}
