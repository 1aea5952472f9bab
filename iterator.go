package logkv

import "sort"

// Iterator walks the keys that were live when it was created, in sorted
// order. Values are read at the time Value is called.
type Iterator struct {
	engine *Engine
	keys   []string
	index  int
}

// Iterator creates an iterator over a snapshot of the live keys.
func (e *Engine) Iterator() *Iterator {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	keys := make([]string, 0, len(e.index))
	for k := range e.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &Iterator{
		engine: e,
		keys:   keys,
		index:  -1,
	}
}

// Next advances the iterator to the next key.
func (it *Iterator) Next() bool {
	it.index++
	return it.index < len(it.keys)
}

// Key returns the current key.
func (it *Iterator) Key() string {
	return it.keys[it.index]
}

// Value returns the current value, or nil if the key was deleted since the
// iterator was created.
func (it *Iterator) Value() ([]byte, error) {
	return it.engine.Get(it.Key())
}
