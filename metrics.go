package main

import (
	"io"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

type metrics struct {
	log  io.Writer
	reg  gometrics.Registry
	tick time.Duration
}

func newMetrics(log io.Writer, tick time.Duration) *metrics {
	return &metrics{
		log:  log,
		reg:  gometrics.NewRegistry(),
		tick: tick,
	}
}

func (m *metrics) start() {
	go gometrics.WriteJSON(m.reg, m.tick, m.log)
}

func (m *metrics) writeOnce() {
	gometrics.WriteJSONOnce(m.reg, m.log)
}

func (m *metrics) writeTo(w io.Writer) {
	gometrics.WriteJSONOnce(m.reg, w)
}

func (m *metrics) incr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Inc(i)
}

func (m *metrics) decr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Dec(i)
}

func (m *metrics) gauge(name string, v int64) {
	gometrics.GetOrRegisterGauge(name, m.reg).Update(v)
}

func (m *metrics) count(name string) int64 {
	return gometrics.GetOrRegisterCounter(name, m.reg).Count()
}
