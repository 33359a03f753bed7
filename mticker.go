package main

import (
	"sync"
	"time"
)

// mTicker fans one time.Ticker out to many subscribers. Every connection
// writer takes its ping schedule from the hub's mTicker instead of running
// its own timer.
type mTicker struct {
	mux         sync.Mutex // Protects subscribers and stopped
	subscribers subscribers
	stopped     bool
	dropped     int

	ticker *time.Ticker
	stopCh chan struct{}
}

type subscribers map[*subscriber]interface {
}

type subscriber struct {
	tick chan time.Time
}

// newMTicker creates and starts a ticker with the given interval.
func newMTicker(interval time.Duration) *mTicker {
	t := &mTicker{
		subscribers: make(subscribers),
		ticker:      time.NewTicker(interval),
		stopCh:      make(chan struct{}),
	}
	go t.run()
	return t
}

func newSubscriber() *subscriber {
	return &subscriber{
		tick: make(chan time.Time, 1),
	}
}

// subscribe returns a subscriber whose channel receives ticks. Ticks that
// can't be delivered because the subscriber is not ready are discarded.
// Subscribing to a stopped ticker returns an already closed subscriber.
func (t *mTicker) subscribe() *subscriber {
	t.mux.Lock()
	defer t.mux.Unlock()

	sub := newSubscriber()
	if t.stopped {
		close(sub.tick)
		return sub
	}
	t.subscribers[sub] = nil
	return sub
}

func (t *mTicker) unsubscribe(sub *subscriber) {
	t.mux.Lock()
	defer t.mux.Unlock()

	if _, ok := t.subscribers[sub]; !ok {
		return
	}
	close(sub.tick)
	delete(t.subscribers, sub)
}

// stop stops the ticker and closes all subscribed channels.
func (t *mTicker) stop() {
	t.mux.Lock()
	defer t.mux.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true
	t.ticker.Stop()
	close(t.stopCh)
	for sub := range t.subscribers {
		close(sub.tick)
		delete(t.subscribers, sub)
	}
}

func (t *mTicker) run() {
	for {
		select {
		case tick := <-t.ticker.C:
			t.mux.Lock()
			for sub := range t.subscribers {
				select {
				case sub.tick <- tick:
				default:
					t.dropped++
				}
			}
			t.mux.Unlock()
		case <-t.stopCh:
			return
		}
	}
}
