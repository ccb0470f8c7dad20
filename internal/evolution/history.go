package evolution

import "sync"

// ring keeps the most recent results, oldest first.
type ring struct {
	mu    sync.Mutex
	size  int
	items []Result
}

func newRing(size int) *ring {
	if size < 1 {
		size = 1
	}
	return &ring{size: size, items: make([]Result, 0, size)}
}

func (r *ring) push(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == r.size {
		copy(r.items, r.items[1:])
		r.items = r.items[:r.size-1]
	}
	r.items = append(r.items, res)
}

func (r *ring) snapshot() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, len(r.items))
	copy(out, r.items)
	return out
}

// History returns the retained run results, oldest first. Sequences appear
// as their individual runs.
func (c *Controller) History() []Result {
	return c.history.snapshot()
}
