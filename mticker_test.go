package main

import (
	"testing"
	"time"
)

func TestTickerSubscribe(t *testing.T) {
	ticker := newMTicker(time.Hour)
	defer ticker.stop()

	// assert no subscribers
	if len(ticker.subscribers) != 0 {
		t.Fatal("Expectation: 0, Received:", len(ticker.subscribers))
	}

	ticker.subscribe()
	if len(ticker.subscribers) != 1 {
		t.Fatal("Expectation: 1, Received:", len(ticker.subscribers))
	}
}

func TestTickerUnsubscribe(t *testing.T) {
	ticker := newMTicker(time.Hour)
	defer ticker.stop()
	sub := ticker.subscribe()

	ticker.unsubscribe(sub)
	if len(ticker.subscribers) != 0 {
		t.Fatal("Expectation: 0, Received:", len(ticker.subscribers))
	}

	// assert chan closed
	if _, ok := <-sub.tick; ok {
		t.Fatal("Expectation: tick channel should be closed, Received: open channel")
	}

	// a second unsubscribe is a no-op
	ticker.unsubscribe(sub)
}

func TestTick(t *testing.T) {
	ticker := newMTicker(10 * time.Millisecond)
	defer ticker.stop()
	sub1 := ticker.subscribe()
	sub2 := ticker.subscribe()
	sub3 := ticker.subscribe()

	// assert time stamps are passed
	// to subscribing channels
	t1, ok1 := <-sub1.tick
	t2, ok2 := <-sub2.tick
	t3, ok3 := <-sub3.tick

	if !ok1 || !ok2 || !ok3 || !(t1.Equal(t2) && t1.Equal(t3)) {
		t.Fatal("Expectation: all subscribed channels receive identical time stamps, Received:", t1, t2, t3)
	}
}

func TestTickerStop(t *testing.T) {
	ticker := newMTicker(time.Hour)
	sub1 := ticker.subscribe()
	sub2 := ticker.subscribe()

	ticker.stop()

	_, ok1 := <-sub1.tick
	_, ok2 := <-sub2.tick
	if ok1 || ok2 {
		t.Fatal("Expectation: all tick channels should be closed, Received: open channel")
	}

	// unsubscribing after stop and stopping twice must not panic
	ticker.unsubscribe(sub1)
	ticker.stop()
}

func TestSubscribeAfterStop(t *testing.T) {
	ticker := newMTicker(time.Hour)
	ticker.stop()

	sub := ticker.subscribe()
	if _, ok := <-sub.tick; ok {
		t.Fatal("Expectation: closed subscriber, Received: open channel")
	}
	if len(ticker.subscribers) != 0 {
		t.Fatal("Expectation: 0, Received:", len(ticker.subscribers))
	}
}
