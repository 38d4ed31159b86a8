package chat

import "sync"

// lockTable hands out named mutexes. The registry uses it to serialize
// check-then-create on a participant pair, the message log to serialize
// appends per conversation. Entries are never evicted; the table grows with
// the number of distinct keys touched, one mutex each.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its release function.
func (t *lockTable) lock(key string) func() {
	t.mu.Lock()
	m, ok := t.locks[key]
	if !ok {
		m = &sync.Mutex{}
		t.locks[key] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}
