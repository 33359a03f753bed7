package main

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Admission reasons.
const (
	reasonDisabled         = "disabled"
	reasonWindowOpened     = "window_opened"
	reasonWithinLimit      = "within_limit"
	reasonLimitExceeded    = "limit_exceeded"
	reasonStoreUnavailable = "store_unavailable"
)

type rateDecision struct {
	allowed    bool
	reason     string
	count      int64
	retryAfter time.Duration
}

// rateGovernor is a fixed-window counter per client address. A client can
// get up to twice max through across a window boundary, and concurrent
// requests may overshoot max slightly, since read and increment are not
// one transaction.
type rateGovernor struct {
	store   store
	max     int64
	window  time.Duration
	timeout time.Duration
	metrics *metrics
	log     *logrus.Entry
}

func newRateGovernor(st store, cfg config, m *metrics, log *logrus.Entry) *rateGovernor {
	return &rateGovernor{
		store:   st,
		max:     cfg.rateMax,
		window:  cfg.rateWindow,
		timeout: cfg.storeTimeout,
		metrics: m,
		log:     log.WithField("component", "ratelimit"),
	}
}

// admit decides whether a request from clientAddr may proceed. Store
// failures let the request through.
func (g *rateGovernor) admit(ctx context.Context, clientAddr string) rateDecision {
	if g.max <= 0 {
		return rateDecision{allowed: true, reason: reasonDisabled}
	}
	key := rateKey(clientAddr)

	current, present, err := g.store.counter(ctx, key)
	if err != nil {
		return g.failOpen(clientAddr, err)
	}
	if !present {
		if err := g.store.setCounter(ctx, key, 1, g.window); err != nil {
			return g.failOpen(clientAddr, err)
		}
		g.metrics.incr("ratelimit.allowed", 1)
		return rateDecision{allowed: true, reason: reasonWindowOpened, count: 1}
	}
	if current >= g.max {
		g.metrics.incr("ratelimit.denied", 1)
		return rateDecision{allowed: false, reason: reasonLimitExceeded, count: current, retryAfter: g.window}
	}
	n, err := g.store.incrCounter(ctx, key)
	if err != nil {
		return g.failOpen(clientAddr, err)
	}
	g.metrics.incr("ratelimit.allowed", 1)
	return rateDecision{allowed: true, reason: reasonWithinLimit, count: n}
}

func (g *rateGovernor) failOpen(clientAddr string, err error) rateDecision {
	g.metrics.incr("ratelimit.failopen", 1)
	g.log.WithError(err).WithField("client", clientAddr).Warn("rate limit check failed; allowing request")
	return rateDecision{allowed: true, reason: reasonStoreUnavailable}
}

// middleware admits each request before it reaches next.
func (g *rateGovernor) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
		d := g.admit(ctx, clientAddress(r))
		cancel()
		if !d.allowed {
			sendRateLimited(w, d)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sendRateLimited(w http.ResponseWriter, d rateDecision) {
	seconds := int64(math.Ceil(d.retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   msgTooManyRequests,
		"message": msgRateExceeded,
	})
}

// clientAddress is the peer host without its port. Forwarding headers are
// not trusted.
func clientAddress(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
