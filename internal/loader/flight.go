package loader

import "sync"

// flight suppresses duplicate concurrent calls: callers arriving while a
// call is in progress wait for it and share its result.
type flight[V any] struct {
	mu   sync.Mutex
	call *flightCall[V]
}

type flightCall[V any] struct {
	wg  sync.WaitGroup
	val V
	err error
}

// do runs fn unless a call is already running. shared reports whether the
// result came from another caller's run.
func (f *flight[V]) do(fn func() (V, error)) (val V, err error, shared bool) {
	f.mu.Lock()
	if c := f.call; c != nil {
		f.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err, true
	}
	c := &flightCall[V]{}
	c.wg.Add(1)
	f.call = c
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.call = nil
		f.mu.Unlock()
		c.wg.Done()
	}()
	c.val, c.err = fn()
	return c.val, c.err, false
}
