package crawl

import (
	"sync"

	"github.com/lysyi3m/product-comb/app/product"
)

// Request is one page the crawler intends to fetch.
type Request struct {
	URL     string
	Kind    product.PageKind
	Meta    map[string]string
	Depth   int
	Referer string
}

// Frontier is a FIFO of pending requests. Pop blocks while the frontier is
// empty but requests are still being fetched, since those may discover more
// links; once nothing is queued and nothing is in flight the crawl is drained.
type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []Request
	inFlight int
	stopped  bool
}

func NewFrontier() *Frontier {
	f := &Frontier{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push appends req. It returns false once the frontier is stopped.
func (f *Frontier) Push(req Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return false
	}
	f.items = append(f.items, req)
	f.cond.Signal()
	return true
}

// Pop returns the next request and marks it in flight. The caller must call
// Done for every request it receives. ok is false when the frontier is
// drained or stopped.
func (f *Frontier) Pop() (req Request, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.items) == 0 && f.inFlight > 0 && !f.stopped {
		f.cond.Wait()
	}
	if f.stopped || len(f.items) == 0 {
		return Request{}, false
	}

	req = f.items[0]
	f.items[0] = Request{}
	f.items = f.items[1:]
	f.inFlight++
	return req, true
}

// Done marks one popped request as finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight > 0 {
		f.inFlight--
	}
	if f.inFlight == 0 && len(f.items) == 0 {
		f.cond.Broadcast()
	}
}

// Stop wakes all waiting callers and rejects further pushes.
func (f *Frontier) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	f.cond.Broadcast()
}

func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}
