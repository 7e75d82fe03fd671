package processing

import (
	"errors"
	"sync"
)

// ErrBusy is returned when a run is already in flight.
var ErrBusy = errors.New("an extraction is already running")

// Guard admits one process at a time. A second caller is refused rather than
// queued.
type Guard struct {
	mu      sync.Mutex
	running bool
	owner   string
}

func NewGuard() *Guard {
	return &Guard{}
}

// Acquire claims the guard for owner. The returned release func is
// idempotent.
func (g *Guard) Acquire(owner string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil, ErrBusy
	}
	g.running = true
	g.owner = owner

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.running = false
			g.owner = ""
			g.mu.Unlock()
		})
	}, nil
}

// Owner reports who holds the guard, or "" when idle.
func (g *Guard) Owner() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner, g.running
}
