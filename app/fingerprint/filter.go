package fingerprint

import "sync"

// Filter remembers the fingerprints seen during one crawl session.
type Filter struct {
	mu   sync.Mutex
	seen map[string]struct{}
	opts []Option
}

func NewFilter(opts ...Option) *Filter {
	return &Filter{
		seen: make(map[string]struct{}),
		opts: opts,
	}
}

// Seen reports whether an equivalent request was already recorded, and
// records req if it was not.
func (f *Filter) Seen(req Request) (bool, error) {
	fp, err := Fingerprint(req, f.opts...)
	if err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[fp]; ok {
		return true, nil
	}
	f.seen[fp] = struct{}{}
	return false, nil
}

func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
