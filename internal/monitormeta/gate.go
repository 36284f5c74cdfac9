package monitormeta

import "context"

// fifoGate bounds concurrent metadata lookups to a fixed size while
// guaranteeing waiters are admitted in arrival order. A plain buffered
// channel semaphore does not guarantee this under the Go scheduler; this
// gate threads an explicit ticket queue so a burst of resolutions started
// just before shutdown drains in the order they arrived rather than being
// starved by newer arrivals racing for the same tokens (spec.md §9 Design
// Notes: "FIFO-queued concurrency gate").
type fifoGate struct {
	tickets chan chan struct{}
	tokens  chan struct{}
}

func newFIFOGate(size int) *fifoGate {
	if size < 1 {
		size = 1
	}
	g := &fifoGate{
		tickets: make(chan chan struct{}, 4096),
		tokens:  make(chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		g.tokens <- struct{}{}
	}
	go g.dispatch()
	return g
}

func (g *fifoGate) dispatch() {
	for ticket := range g.tickets {
		<-g.tokens
		ticket <- struct{}{}
	}
}

// Acquire blocks until a token is available, in FIFO order, or ctx is
// cancelled. The returned release func must be called exactly once.
func (g *fifoGate) Acquire(ctx context.Context) (release func(), err error) {
	ticket := make(chan struct{}, 1)
	select {
	case g.tickets <- ticket:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case <-ticket:
		return func() { g.tokens <- struct{}{} }, nil
	case <-ctx.Done():
		// The dispatcher may still hand us a token later; drain it
		// asynchronously so it is not lost.
		go func() {
			<-ticket
			g.tokens <- struct{}{}
		}()
		return nil, ctx.Err()
	}
}
