package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

const (
	collabGlobal = "global"
	collabRoom   = "room"
)

type config struct {
	addr        string
	origin      string
	stopTimeout time.Duration
	killTimeout time.Duration

	jwtSecret string
	notifyKey string

	storeKind    string
	redisURL     string
	storeTimeout time.Duration

	rateMax    int64
	rateWindow time.Duration

	maxMessageSize int64
	sendTimeout    time.Duration
	pingPeriod     time.Duration
	pongWait       time.Duration
	writeWait      time.Duration

	collabScope     string
	evictOnClose    bool
	evictSuperseded bool

	logLevel    string
	logFormat   string
	metricsTick time.Duration
}

func defaultConfig() config {
	return config{
		addr:           ":3001",
		stopTimeout:    10 * time.Second,
		killTimeout:    1 * time.Second,
		storeKind:      storeRedis,
		redisURL:       "redis://localhost:6379",
		storeTimeout:   2 * time.Second,
		rateMax:        100,
		rateWindow:     60 * time.Second,
		maxMessageSize: 1 << 20,
		sendTimeout:    50 * time.Millisecond,
		pongWait:       60 * time.Second,
		pingPeriod:     54 * time.Second,
		writeWait:      10 * time.Second,
		collabScope:    collabGlobal,
		logLevel:       "info",
		logFormat:      "text",
		metricsTick:    60 * time.Second,
	}
}

// loadEnv overrides defaults with the environment. Malformed numeric values
// are ignored.
func (c *config) loadEnv(lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str("JWT_SECRET", &c.jwtSecret)
	str("REDIS_URL", &c.redisURL)
	str("CORS_ORIGIN", &c.origin)
	str("ROOMHUB_NOTIFY_KEY", &c.notifyKey)
	str("ROOMHUB_STORE", &c.storeKind)
	str("ROOMHUB_LOG_LEVEL", &c.logLevel)
	if v, ok := lookup("PORT"); ok && v != "" {
		c.addr = ":" + v
	}
	if v, ok := lookup("ROOMHUB_RATE_MAX"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.rateMax = n
		}
	}
	if v, ok := lookup("ROOMHUB_RATE_WINDOW"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.rateWindow = d
		}
	}
}

func (c *config) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.addr, "addr", c.addr, "http service address")
	fs.StringVar(&c.origin, "origin", c.origin, "websocket server checks Origin headers against this scheme://host[:port]")
	fs.DurationVar(&c.stopTimeout, "stop-timeout", c.stopTimeout, "stop timeout")
	fs.DurationVar(&c.killTimeout, "kill-timeout", c.killTimeout, "kill timeout")

	fs.StringVar(&c.jwtSecret, "jwt-secret", c.jwtSecret, "HMAC secret used to verify auth tokens")
	fs.StringVar(&c.notifyKey, "notify-key", c.notifyKey, "bearer key for POST /notify/{identity}; empty disables the endpoint")

	fs.StringVar(&c.storeKind, "store", c.storeKind, "shared store: redis or memory")
	fs.StringVar(&c.redisURL, "redis-url", c.redisURL, "redis connection URL")
	fs.DurationVar(&c.storeTimeout, "store-timeout", c.storeTimeout, "timeout for a single store call")

	fs.Int64Var(&c.rateMax, "rate-max", c.rateMax, "requests allowed per client per window; 0 disables")
	fs.DurationVar(&c.rateWindow, "rate-window", c.rateWindow, "rate limit window")

	fs.Int64Var(&c.maxMessageSize, "max-message-size", c.maxMessageSize, "largest inbound websocket frame in bytes")
	fs.DurationVar(&c.sendTimeout, "send-timeout", c.sendTimeout, "how long a delivery waits on a full send queue")
	fs.DurationVar(&c.pingPeriod, "ping-period", c.pingPeriod, "interval between pings; must be less than pong-wait")
	fs.DurationVar(&c.pongWait, "pong-wait", c.pongWait, "time allowed to read the next pong")
	fs.DurationVar(&c.writeWait, "write-wait", c.writeWait, "time allowed to write a frame")

	fs.StringVar(&c.collabScope, "collab-scope", c.collabScope, "collaboration_event fan-out: global or room")
	fs.BoolVar(&c.evictOnClose, "evict-on-close", c.evictOnClose, "remove room membership when an identity disconnects")
	fs.BoolVar(&c.evictSuperseded, "evict-superseded", c.evictSuperseded, "close a connection when its identity authenticates elsewhere")

	fs.StringVar(&c.logLevel, "log-level", c.logLevel, "log level")
	fs.StringVar(&c.logFormat, "log-format", c.logFormat, "log format: text or json")
	fs.DurationVar(&c.metricsTick, "metrics-tick", c.metricsTick, "duration between metrics reports")
}

func (c config) validate() error {
	var errs []error
	if c.jwtSecret == "" {
		errs = append(errs, errors.New("jwt secret is required (JWT_SECRET or --jwt-secret)"))
	}
	if c.storeKind != storeRedis && c.storeKind != storeMemory {
		errs = append(errs, fmt.Errorf("unknown store %q", c.storeKind))
	}
	if c.collabScope != collabGlobal && c.collabScope != collabRoom {
		errs = append(errs, fmt.Errorf("unknown collaboration scope %q", c.collabScope))
	}
	if c.logFormat != "text" && c.logFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.logFormat))
	}
	if c.rateMax > 0 && c.rateWindow <= 0 {
		errs = append(errs, errors.New("rate window must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"stop-timeout":  c.stopTimeout,
		"kill-timeout":  c.killTimeout,
		"send-timeout":  c.sendTimeout,
		"store-timeout": c.storeTimeout,
		"ping-period":   c.pingPeriod,
		"pong-wait":     c.pongWait,
		"write-wait":    c.writeWait,
		"metrics-tick":  c.metricsTick,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.pingPeriod >= c.pongWait {
		errs = append(errs, errors.New("ping-period must be less than pong-wait"))
	}
	if c.maxMessageSize <= 0 {
		errs = append(errs, errors.New("max-message-size must be positive"))
	}
	return errors.Join(errs...)
}

// loadConfig resolves defaults, then the environment, then flags.
func loadConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	cfg := defaultConfig()
	cfg.loadEnv(lookup)

	fs := pflag.NewFlagSet("roomhub", pflag.ContinueOnError)
	cfg.bindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}
