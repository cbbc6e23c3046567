package credential

import "sync"

// refreshFlight tracks one in-progress token refresh.
type refreshFlight struct {
	wg  sync.WaitGroup
	err error
}

// RefreshCoordinator collapses concurrent refreshes of the same credential
// into a single upstream call; latecomers wait for the first caller's result.
type RefreshCoordinator struct {
	mu      sync.Mutex
	flights map[string]*refreshFlight
}

func NewRefreshCoordinator() *RefreshCoordinator {
	return &RefreshCoordinator{flights: make(map[string]*refreshFlight)}
}

// Do runs fn for key unless another goroutine is already running it, in
// which case it waits and returns that goroutine's error.
func (c *RefreshCoordinator) Do(key string, fn func() error) error {
	c.mu.Lock()
	if f, ok := c.flights[key]; ok {
		c.mu.Unlock()
		f.wg.Wait()
		return f.err
	}
	f := &refreshFlight{}
	f.wg.Add(1)
	c.flights[key] = f
	c.mu.Unlock()

	f.err = fn()

	c.mu.Lock()
	delete(c.flights, key)
	c.mu.Unlock()
	f.wg.Done()
	return f.err
}
