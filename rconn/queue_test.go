package rconn

import "testing"

func TestTxQueueFIFOOrder(t *testing.T) {
	var q txQueue
	q.pushTail(queueItem{msg: []byte("a")})
	q.pushTail(queueItem{msg: []byte("b")})

	if q.len() != 2 {
		t.Fatalf("expected length 2, got %d", q.len())
	}

	head, ok := q.popHead()
	if !ok || string(head.msg) != "a" {
		t.Fatalf("expected to pop 'a' first, got %v ok=%v", head.msg, ok)
	}
	head, ok = q.popHead()
	if !ok || string(head.msg) != "b" {
		t.Fatalf("expected to pop 'b' second, got %v ok=%v", head.msg, ok)
	}
	if !q.empty() {
		t.Fatal("expected queue to be empty after draining")
	}
}

func TestTxQueuePopEmptyReturnsFalse(t *testing.T) {
	var q txQueue
	if _, ok := q.popHead(); ok {
		t.Fatal("expected popHead on an empty queue to report ok=false")
	}
	if _, ok := q.peekHead(); ok {
		t.Fatal("expected peekHead on an empty queue to report ok=false")
	}
}

func TestTxQueuePeekDoesNotRemove(t *testing.T) {
	var q txQueue
	q.pushTail(queueItem{msg: []byte("only")})
	if _, ok := q.peekHead(); !ok {
		t.Fatal("expected peekHead to find the item")
	}
	if q.len() != 1 {
		t.Fatal("peekHead must not remove the item")
	}
}
