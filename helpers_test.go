package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const testSecret = "test-secret"

var errFakeClosed = errors.New("fake websocket closed")

type fakeClock struct {
	mux sync.Mutex
	t   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.t = c.t.Add(d)
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func mintToken(t *testing.T, secret, userID string, ttl time.Duration) string {
	t.Helper()
	claims := identityClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal("SignedString:", err)
	}
	return token
}

func testHubOptions() hubOptions {
	return hubOptions{
		sendTimeout:  20 * time.Millisecond,
		storeTimeout: time.Second,
		pingPeriod:   time.Hour,
		collabScope:  collabGlobal,
		now:          time.Now,
	}
}

func newTestHub(t *testing.T, opts hubOptions, st store) *hub {
	t.Helper()
	h := newHub(opts, st, newTokenVerifier(testSecret, nil), newMetrics(io.Discard, time.Minute), testLogger())
	t.Cleanup(func() { h.shutdown(time.Second) })
	return h
}

// fakeWs stands in for a websocket: frames written to in are read by the
// connection, text frames it writes show up on out.
type fakeWs struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
	pings  atomic.Int32
}

func newFakeWs() *fakeWs {
	return &fakeWs{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeWs) wsSetReadLimit() {}

func (f *fakeWs) wsSetReadDeadline() {}

func (f *fakeWs) wsSetPongHandler() {}

func (f *fakeWs) wsSetWriteDeadline() {}

func (f *fakeWs) wsReadMessage() (int, []byte, error) {
	select {
	case m, ok := <-f.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, m, nil
	case <-f.closed:
		return 0, nil, errFakeClosed
	}
}

func (f *fakeWs) wsWriteMessage(messageType int, payload []byte) error {
	if messageType == websocket.PingMessage {
		f.pings.Add(1)
		return nil
	}
	select {
	case f.out <- payload:
		return nil
	case <-f.closed:
		return errFakeClosed
	}
}

func (f *fakeWs) wsClose() {
	f.once.Do(func() { close(f.closed) })
}

type received struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type testClient struct {
	t  *testing.T
	ws *fakeWs
}

func connectClient(t *testing.T, h *hub) *testClient {
	t.Helper()
	ws := newFakeWs()
	go h.serve(ws, "192.0.2.1:5000")
	return &testClient{t: t, ws: ws}
}

func (c *testClient) send(typ string, payload any) {
	c.t.Helper()
	raw, err := json.Marshal(map[string]any{"type": typ, "payload": payload})
	if err != nil {
		c.t.Fatal("Marshal:", err)
	}
	c.ws.in <- raw
}

func (c *testClient) sendRaw(raw string) {
	c.ws.in <- []byte(raw)
}

func (c *testClient) expect() received {
	c.t.Helper()
	select {
	case raw := <-c.ws.out:
		var r received
		if err := json.Unmarshal(raw, &r); err != nil {
			c.t.Fatal("Unmarshal:", err, string(raw))
		}
		return r
	case <-time.After(2 * time.Second):
		c.t.Fatal("Expectation: an event, Received: nothing")
	}
	return received{}
}

func (c *testClient) expectType(typ string) received {
	c.t.Helper()
	r := c.expect()
	if r.Type != typ {
		c.t.Fatal("Expectation:", typ, "Received:", r.Type, r.Payload)
	}
	return r
}

func (c *testClient) expectError(typ, message string) {
	c.t.Helper()
	r := c.expectType(typ)
	if r.Payload["message"] != message {
		c.t.Fatalf("Expectation: %q, Received: %q", message, r.Payload["message"])
	}
}

func (c *testClient) expectNothing(d time.Duration) {
	c.t.Helper()
	select {
	case raw := <-c.ws.out:
		c.t.Fatal("Expectation: no event, Received:", string(raw))
	case <-time.After(d):
	}
}

func (c *testClient) auth(userID string) {
	c.t.Helper()
	c.send(typeAuth, map[string]string{"token": mintToken(c.t, testSecret, userID, time.Hour)})
	r := c.expectType(typeAuthSuccess)
	if r.Payload["userId"] != userID {
		c.t.Fatal("Expectation:", userID, "Received:", r.Payload["userId"])
	}
}

func (c *testClient) join(room string) {
	c.t.Helper()
	c.send(typeJoinRoom, map[string]string{"roomId": room})
	r := c.expectType(typeRoomJoined)
	if r.Payload["roomId"] != room {
		c.t.Fatal("Expectation:", room, "Received:", r.Payload["roomId"])
	}
}

// disconnect ends the read loop the way a peer hang-up does.
func (c *testClient) disconnect() {
	close(c.ws.in)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Expectation: condition met, Received: timeout")
}

// brokenStore fails every call.
type brokenStore struct{}

var errBroken = storeError("dial", errors.New("connection refused"))

func (brokenStore) addMember(context.Context, string, string) error    { return errBroken }
func (brokenStore) removeMember(context.Context, string, string) error { return errBroken }
func (brokenStore) members(context.Context, string) ([]string, error)  { return nil, errBroken }
func (brokenStore) counter(context.Context, string) (int64, bool, error) {
	return 0, false, errBroken
}
func (brokenStore) setCounter(context.Context, string, int64, time.Duration) error {
	return errBroken
}
func (brokenStore) incrCounter(context.Context, string) (int64, error) { return 0, errBroken }
func (brokenStore) close() error                                       { return nil }
