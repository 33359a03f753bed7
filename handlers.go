package main

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

func newHandler(h *hub, gov *rateGovernor, cfg config) http.Handler {
	handler := mux.NewRouter()

	// Route websocket requests on any path
	handler.NewRoute().HeadersRegexp("Upgrade", "(?i)^websocket$").Handler(newWsHandler(h, cfg))

	handler.Methods("GET").Path("/health").Handler(healthHandler{now: h.opts.now})
	handler.Methods("GET").Path("/debug/metrics").Handler(metricsHandler{m: h.metrics})
	if cfg.notifyKey != "" {
		handler.Methods("POST").Path("/notify/{identity}").Handler(notifyHandler{
			h:       h,
			key:     cfg.notifyKey,
			maxBody: cfg.maxMessageSize,
		})
	}

	return gov.middleware(handler)
}

type wsHandler struct {
	h        *hub
	cfg      config
	upgrader *websocket.Upgrader
}

func newWsHandler(h *hub, cfg config) wsHandler {
	return wsHandler{
		h:   h,
		cfg: cfg,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.origin),
		},
	}
}

func (wsh wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := wsh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsh.h.log.WithError(err).WithField("addr", r.RemoteAddr).Debug("websocket upgrade failed")
		return
	}
	wsh.h.serve(newWebsocketInteractor(ws, wsh.cfg), r.RemoteAddr)
}

// checkOrigin accepts any origin when origin is empty, otherwise only an
// exact scheme://host[:port] match.
func checkOrigin(origin string) func(*http.Request) bool {
	if origin == "" {
		return func(*http.Request) bool { return true }
	}
	want := strings.ToLower(strings.TrimSuffix(origin, "/"))
	return func(r *http.Request) bool {
		return strings.ToLower(r.Header.Get("Origin")) == want
	}
}

type healthHandler struct {
	now func() time.Time
}

func (hh healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": hh.now().UTC().Format(timestampLayout),
	})
}

type metricsHandler struct {
	m *metrics
}

func (mh metricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	mh.m.writeTo(w)
}

// notifyHandler lets other services push an event to one identity. The
// body is an event object; its type defaults to "notification".
type notifyHandler struct {
	h       *hub
	key     string
	maxBody int64
}

func (nh notifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(nh.key)) != 1 {
		http.Error(w, "Error: unauthorized.", http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, nh.maxBody))
	if err != nil {
		sendBadRequestError(w, "Unable to read POST body.")
		return
	}
	var ev inboundEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		sendBadRequestError(w, "Body must be a JSON event object.")
		return
	}
	if ev.Type == "" {
		ev.Type = typeNotification
	}

	identity := mux.Vars(r)["identity"]
	delivered := nh.h.broadcastToIdentity(identity, outboundEvent{Type: ev.Type, Payload: ev.Payload})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]bool{"delivered": delivered})
}

func sendBadRequestError(w http.ResponseWriter, str string) {
	http.Error(w,
		fmt.Sprintf("Error: bad request. %s", str),
		http.StatusBadRequest)
}
