// Package worker provides the halt/goroutine lifecycle primitive used
// throughout emberd's long-lived loops (receive, maintenance tick,
// log drain), in the idiom of katzenpost's core/worker package.
package worker

import "sync"

// Worker tracks goroutines spawned with Go and provides a single
// HaltCh that Halt closes exactly once, so every tracked goroutine can
// select on it and return. Embed it by value in a struct that owns one
// or more long-lived loops.
type Worker struct {
	sync.WaitGroup

	initOnce sync.Once
	haltOnce sync.Once
	haltCh   chan struct{}
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltCh = make(chan struct{})
	})
}

// Go runs fn in a new goroutine tracked by the worker's WaitGroup.
func (w *Worker) Go(fn func()) {
	w.Add(1)
	go func() {
		defer w.Done()
		fn()
	}()
}

// HaltCh returns the channel that closes when Halt is called. Loops
// spawned via Go should select on this channel to know when to return.
func (w *Worker) HaltCh() <-chan struct{} {
	w.init()
	return w.haltCh
}

// Halt closes the halt channel (idempotently) and blocks until every
// goroutine started with Go has returned.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() { close(w.haltCh) })
	w.Wait()
}
