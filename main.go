// Command roomhub is an authenticated websocket relay for chat rooms and
// collaborative editing sessions.
//
//	JWT_SECRET=... roomhub --addr=:3001 --redis-url=redis://localhost:6379
//
// A client connects to any path with a websocket upgrade, then sends JSON
// events of the form {"type": ..., "payload": {...}}:
//
//	auth                {token}   authenticate with a bearer JWT
//	join_room           {roomId}  add the identity to a room
//	room_message        {...}     send to every member of the current room
//	collaboration_event {...}     send to every other connected identity
//
// Room membership and the per-address request counters live in Redis, so
// several processes can share them, but delivery only reaches connections
// held by this process. Every HTTP request, upgrades included, passes a
// fixed-window rate limit that fails open when Redis is unavailable.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/facebookgo/httpdown"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.LookupEnv)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "roomhub:", err)
		os.Exit(2)
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "roomhub:", err)
		os.Exit(2)
	}
	log := logrus.NewEntry(logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.storeTimeout)
	st, err := openStore(ctx, cfg)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("shared store unavailable")
	}

	m := newMetrics(os.Stderr, cfg.metricsTick)
	m.start()

	h := newHub(hubOptionsFrom(cfg), st, newTokenVerifier(cfg.jwtSecret, time.Now), m, log)
	gov := newRateGovernor(st, cfg, m, log)

	// Prepare the stoppable HTTP server
	server := &http.Server{
		Addr:    cfg.addr,
		Handler: newHandler(h, gov, cfg),
	}
	hd := &httpdown.HTTP{
		StopTimeout: cfg.stopTimeout,
		KillTimeout: cfg.killTimeout,
	}

	log.WithFields(logrus.Fields{"addr": cfg.addr, "store": cfg.storeKind}).Info("roomhub listening")
	if err := httpdown.ListenAndServe(server, hd); err != nil {
		log.WithError(err).Error("http server stopped")
	}

	if err := h.shutdown(cfg.stopTimeout); err != nil {
		log.WithError(err).Warn("hub shutdown incomplete")
	}
	m.writeOnce()
	if err := st.close(); err != nil {
		log.WithError(err).Warn("closing shared store")
	}
}

func newLogger(cfg config, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	if cfg.logFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
