package local

import (
	"sync"

	"github.com/llm-privacy/anonymisation-api/lib/cache"
)

const DefaultMaxEntries = 10000

// New returns an in-process detection cache bounded to maxEntries, evicting
// oldest-inserted first.
func New(maxEntries int) cache.Client {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &local{
		store: make(map[string]*cache.Detection, maxEntries),
		max:   maxEntries,
	}
}

type local struct {
	mut   sync.RWMutex
	store map[string]*cache.Detection
	order []string
	max   int
}

func (l *local) Get(key string) (*cache.Detection, error) {
	l.mut.RLock()
	defer l.mut.RUnlock()

	detection, ok := l.store[key]
	if !ok {
		return nil, nil
	}
	return detection, nil
}

func (l *local) Set(key string, detection *cache.Detection) error {
	l.mut.Lock()
	defer l.mut.Unlock()

	if _, ok := l.store[key]; !ok {
		for len(l.store) >= l.max && len(l.order) > 0 {
			delete(l.store, l.order[0])
			l.order = l.order[1:]
		}
		l.order = append(l.order, key)
	}
	l.store[key] = detection
	return nil
}

func (l *local) Ready() bool { return true }
