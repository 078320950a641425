package app

import (
	"testing"

	"github.com/meetcall/meetcall/internal/core"
)

func TestRegistryBindGetUnbind(t *testing.T) {
	r := NewRegistry()
	sess := core.NewClientSession(&fakeConn{})

	r.Bind("a", sess, nil)
	got, ok := r.Get("a")
	if !ok || got != sess {
		t.Fatal("bound session not returned")
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}

	r.Unbind("a")
	if _, ok := r.Get("a"); ok {
		t.Fatal("unbound session still returned")
	}
}

func TestCloseAllDropsEverySession(t *testing.T) {
	r := NewRegistry()
	connA, connB := &fakeConn{}, &fakeConn{}
	canceled := 0

	r.Bind("a", core.NewClientSession(connA), func() { canceled++ })
	r.Bind("b", core.NewClientSession(connB), nil)

	r.CloseAll()

	if canceled != 1 {
		t.Fatalf("expected the bound cancel to run once, ran %d times", canceled)
	}
	if !connA.isClosed() || !connB.isClosed() {
		t.Fatal("connections left open after CloseAll")
	}
	if r.Count() != 0 {
		t.Fatalf("registry not emptied, count = %d", r.Count())
	}
}
