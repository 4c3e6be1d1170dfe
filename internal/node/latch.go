package node

import (
	"sync"

	"github.com/golang/geo/r3"
)

// Latch remembers the first valid absolute position seen since startup or
// the last reset. Odometry is published relative to it.
type Latch struct {
	mu     sync.Mutex
	set    bool
	origin r3.Vector
}

// Relative latches p if no origin is set, then returns p - origin.
func (l *Latch) Relative(p r3.Vector) r3.Vector {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set {
		l.origin = p
		l.set = true
	}
	return p.Sub(l.origin)
}

// Reset clears the origin; the next valid position becomes the new one.
func (l *Latch) Reset() {
	l.mu.Lock()
	l.set = false
	l.origin = r3.Vector{}
	l.mu.Unlock()
}

func (l *Latch) Origin() (r3.Vector, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.origin, l.set
}
