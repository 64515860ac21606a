package tasks

import "sync"

// taskLocks is a keyed mutex: edits to one task's documents are serialised
// while different tasks proceed in parallel. Entries are never removed; the
// number of tasks in an ecosystem is small.
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for id and returns its release function.
func (l *taskLocks) lock(id string) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
