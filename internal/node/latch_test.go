package node

import (
	"testing"

	"github.com/golang/geo/r3"
)

func TestLatch_RelativeToFirstPosition(t *testing.T) {
	var l Latch
	p0 := r3.Vector{X: 1000, Y: 2000, Z: 3000}
	if got := l.Relative(p0); got != (r3.Vector{}) {
		t.Fatalf("first relative=%v want zero", got)
	}
	p1 := r3.Vector{X: 1001.5, Y: 1998, Z: 3000.25}
	want := r3.Vector{X: 1.5, Y: -2, Z: 0.25}
	if got := l.Relative(p1); got != want {
		t.Fatalf("relative=%v want %v", got, want)
	}
	if o, set := l.Origin(); !set || o != p0 {
		t.Fatalf("origin=%v set=%v", o, set)
	}
}

func TestLatch_ResetRelatches(t *testing.T) {
	var l Latch
	l.Relative(r3.Vector{X: 1, Y: 1, Z: 1})
	l.Reset()
	if _, set := l.Origin(); set {
		t.Fatalf("origin still set after reset")
	}
	p := r3.Vector{X: 7, Y: 8, Z: 9}
	if got := l.Relative(p); got != (r3.Vector{}) {
		t.Fatalf("relative after reset=%v want zero", got)
	}
	if o, _ := l.Origin(); o != p {
		t.Fatalf("origin=%v want %v", o, p)
	}
}
