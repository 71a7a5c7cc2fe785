package trigger

import "sync"

// Flag is an observable boolean that requests a scan when raised.
// It is safe for concurrent use.
type Flag struct {
	mu        sync.Mutex
	value     bool
	nextID    int
	observers map[int]func(old, new bool)
}

// NewFlag creates a flag with the given initial value.
func NewFlag(initial bool) *Flag {
	return &Flag{
		value:     initial,
		observers: make(map[int]func(old, new bool)),
	}
}

// Get returns the current value.
func (f *Flag) Get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Set stores v and reports whether the value changed. Observers run
// synchronously, outside the lock, and only on a change.
func (f *Flag) Set(v bool) bool {
	f.mu.Lock()
	old := f.value
	if old == v {
		f.mu.Unlock()
		return false
	}
	f.value = v
	observers := make([]func(old, new bool), 0, len(f.observers))
	for id := 0; id < f.nextID; id++ {
		if fn, ok := f.observers[id]; ok {
			observers = append(observers, fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range observers {
		fn(old, v)
	}
	return true
}

// Observe registers fn for value changes and returns a function that
// removes it.
func (f *Flag) Observe(fn func(old, new bool)) (cancel func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.observers[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.observers, id)
			f.mu.Unlock()
		})
	}
}
