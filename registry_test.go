package main

import (
	"testing"
)

func TestRegistryRegister(t *testing.T) {
	r := newRegistry()
	c1, c2 := &connection{id: "1"}, &connection{id: "2"}

	if prev := r.register("alice", c1); prev != nil {
		t.Fatal("Expectation: nil, Received:", prev.id)
	}
	// registering the same connection again replaces nothing
	if prev := r.register("alice", c1); prev != nil {
		t.Fatal("Expectation: nil, Received:", prev.id)
	}
	if prev := r.register("alice", c2); prev != c1 {
		t.Fatal("Expectation: connection 1 replaced, Received:", prev)
	}
	if got, _ := r.lookup("alice"); got != c2 {
		t.Fatal("Expectation: connection 2, Received:", got.id)
	}
	if r.len() != 1 {
		t.Fatal("Expectation: 1, Received:", r.len())
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := newRegistry()
	c1, c2 := &connection{id: "1"}, &connection{id: "2"}
	r.register("alice", c1)
	r.register("alice", c2)

	// the superseded connection cannot remove the newer one
	if r.unregister("alice", c1) {
		t.Fatal("Expectation: false, Received: true")
	}
	if got, _ := r.lookup("alice"); got != c2 {
		t.Fatal("Expectation: connection 2 current")
	}

	if !r.unregister("alice", c2) {
		t.Fatal("Expectation: true, Received: false")
	}
	if _, ok := r.lookup("alice"); ok {
		t.Fatal("Expectation: no entry, Received: entry")
	}
	if r.unregister("alice", c2) {
		t.Fatal("Expectation: false on second unregister, Received: true")
	}
}

func TestRegistryOthers(t *testing.T) {
	r := newRegistry()
	a, b, c := &connection{id: "a"}, &connection{id: "b"}, &connection{id: "c"}
	r.register("alice", a)
	r.register("bob", b)
	r.register("carol", c)

	others := r.others("alice")
	if len(others) != 2 {
		t.Fatal("Expectation: 2, Received:", len(others))
	}
	for _, o := range others {
		if o == a {
			t.Fatal("Expectation: sender excluded, Received: sender")
		}
	}
	if len(r.others("nobody")) != 3 {
		t.Fatal("Expectation: 3, Received:", len(r.others("nobody")))
	}
}
