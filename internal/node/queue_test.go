package node

import (
	"testing"
	"time"

	"vectornav-ng/internal/vn"
)

func pkt(s string) vn.Packet { return vn.Packet{Data: []byte(s)} }

func drain(q *FrameQueue) []string {
	var out []string
	for q.Len() > 0 {
		out = append(out, string((<-q.C()).Data))
	}
	return out
}

func TestFrameQueue_DropOldestKeepsNewest(t *testing.T) {
	q := NewFrameQueue(2, DropOldest, 0, nil)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		if !q.Push(pkt(s)) {
			t.Fatalf("push %s rejected", s)
		}
	}
	got := drain(q)
	if len(got) != 2 || got[0] != "d" || got[1] != "e" {
		t.Fatalf("queued=%v want [d e]", got)
	}
	if q.Pushed() != 5 || q.Dropped() != 3 {
		t.Fatalf("pushed=%d dropped=%d want 5/3", q.Pushed(), q.Dropped())
	}
}

func TestFrameQueue_BlockTimesOut(t *testing.T) {
	q := NewFrameQueue(1, Block, 10*time.Millisecond, nil)
	if !q.Push(pkt("a")) {
		t.Fatalf("first push rejected")
	}
	start := time.Now()
	if q.Push(pkt("b")) {
		t.Fatalf("second push should time out")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("push returned before the timeout")
	}
	if got := drain(q); len(got) != 1 || got[0] != "a" {
		t.Fatalf("queued=%v want [a]", got)
	}
	if q.Dropped() != 1 {
		t.Fatalf("dropped=%d want 1", q.Dropped())
	}
}

func TestFrameQueue_BlockWaitsForConsumer(t *testing.T) {
	q := NewFrameQueue(1, Block, 5*time.Second, nil)
	q.Push(pkt("a"))
	go func() {
		time.Sleep(10 * time.Millisecond)
		<-q.C()
	}()
	if !q.Push(pkt("b")) {
		t.Fatalf("push should succeed once the consumer reads")
	}
	if q.Dropped() != 0 {
		t.Fatalf("dropped=%d want 0", q.Dropped())
	}
}
