package main

import (
	"time"

	"github.com/gorilla/websocket"
)

type websocketManager interface {
	wsSetReadLimit()
	wsSetReadDeadline()
	wsSetPongHandler()
	wsReadMessage() (int, []byte, error)
	wsSetWriteDeadline()
	wsWriteMessage(int, []byte) error
	wsClose()
}

type websocketInteractor struct {
	ws             *websocket.Conn
	maxMessageSize int64
	pongWait       time.Duration
	writeWait      time.Duration
}

func newWebsocketInteractor(ws *websocket.Conn, cfg config) websocketInteractor {
	return websocketInteractor{
		ws:             ws,
		maxMessageSize: cfg.maxMessageSize,
		pongWait:       cfg.pongWait,
		writeWait:      cfg.writeWait,
	}
}

func (w websocketInteractor) wsSetReadLimit() {
	w.ws.SetReadLimit(w.maxMessageSize)
}

func (w websocketInteractor) wsSetReadDeadline() {
	w.ws.SetReadDeadline(time.Now().Add(w.pongWait))
}

func (w websocketInteractor) wsSetPongHandler() {
	w.ws.SetPongHandler(func(string) error { w.wsSetReadDeadline(); return nil })
}

func (w websocketInteractor) wsClose() {
	w.ws.Close()
}

func (w websocketInteractor) wsReadMessage() (messageType int, p []byte, err error) {
	return w.ws.ReadMessage()
}

func (w websocketInteractor) wsSetWriteDeadline() {
	w.ws.SetWriteDeadline(time.Now().Add(w.writeWait))
}

func (w websocketInteractor) wsWriteMessage(messageType int, payload []byte) error {
	return w.ws.WriteMessage(messageType, payload)
}
