package mcpclient

import (
	"encoding/json"
	"sync"
	"time"
)

// Outcome is the settled state of a pending request: exactly one of Result or
// Err is meaningful.
type Outcome struct {
	Result json.RawMessage
	Err    error
}

type pendingEntry struct {
	method string
	ch     chan Outcome
	timer  *time.Timer
}

// Table correlates request ids with their eventual outcome. Each registered id
// settles at most once: by Resolve, Reject, RejectAll or its timer.
type Table struct {
	timeout time.Duration

	mu      sync.Mutex
	entries map[int64]*pendingEntry
}

// NewTable returns a table whose entries expire after timeout.
func NewTable(timeout time.Duration) *Table {
	return &Table{timeout: timeout, entries: make(map[int64]*pendingEntry)}
}

// Register arms a timer for id and returns the channel its outcome is
// delivered on. The channel is buffered so settling never blocks.
func (t *Table) Register(id int64, method string) <-chan Outcome {
	e := &pendingEntry{method: method, ch: make(chan Outcome, 1)}
	t.mu.Lock()
	t.entries[id] = e
	e.timer = time.AfterFunc(t.timeout, func() { t.expire(id) })
	t.mu.Unlock()
	return e.ch
}

// take removes and returns the entry for id, stopping its timer.
func (t *Table) take(id int64) *pendingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	delete(t.entries, id)
	e.timer.Stop()
	return e
}

// Resolve delivers a successful result. It returns false when id is unknown,
// e.g. for a response that arrives after its request timed out.
func (t *Table) Resolve(id int64, result json.RawMessage) bool {
	e := t.take(id)
	if e == nil {
		return false
	}
	e.ch <- Outcome{Result: result}
	return true
}

// Reject delivers err for id. Unknown ids are ignored.
func (t *Table) Reject(id int64, err error) bool {
	e := t.take(id)
	if e == nil {
		return false
	}
	e.ch <- Outcome{Err: err}
	return true
}

func (t *Table) expire(id int64) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if ok {
		e.ch <- Outcome{Err: &TimeoutError{Method: e.method, ID: id}}
	}
}

// RejectAll fails every pending request with err and returns how many there were.
func (t *Table) RejectAll(err error) int {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[int64]*pendingEntry)
	t.mu.Unlock()
	for _, e := range entries {
		e.timer.Stop()
		e.ch <- Outcome{Err: err}
	}
	return len(entries)
}

// Method returns the method of a pending request.
func (t *Table) Method(id int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return "", false
	}
	return e.method, true
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table) Has(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}
