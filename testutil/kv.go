package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// MemKeyValue is an in-memory jetstream.KeyValue with revision and history
// semantics close enough to a real bucket for store tests. Methods that are
// not implemented panic through the embedded nil interface.
type MemKeyValue struct {
	jetstream.KeyValue

	name    string
	history int

	mu       sync.Mutex
	revision uint64
	entries  map[string][]*memEntry
	watchers []*memWatcher

	// FailNext, when set, is returned once by the next write and cleared
	FailNext error
}

// NewMemKeyValue creates an empty bucket keeping history revisions per key
func NewMemKeyValue(name string, history int) *MemKeyValue {
	return &MemKeyValue{
		name:    name,
		history: max(history, 1),
		entries: make(map[string][]*memEntry),
	}
}

// Bucket returns the bucket name
func (m *MemKeyValue) Bucket() string { return m.name }

func (m *MemKeyValue) latest(key string) *memEntry {
	hist := m.entries[key]
	if len(hist) == 0 {
		return nil
	}
	return hist[len(hist)-1]
}

func (m *MemKeyValue) live(key string) *memEntry {
	if e := m.latest(key); e != nil && e.op == jetstream.KeyValuePut {
		return e
	}
	return nil
}

func (m *MemKeyValue) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func (m *MemKeyValue) append(key string, value []byte, op jetstream.KeyValueOp) uint64 {
	m.revision++
	e := &memEntry{
		bucket:   m.name,
		key:      key,
		value:    slices.Clone(value),
		revision: m.revision,
		created:  time.Now(),
		op:       op,
	}
	hist := append(m.entries[key], e)
	if len(hist) > m.history {
		hist = hist[len(hist)-m.history:]
	}
	m.entries[key] = hist
	for _, w := range m.watchers {
		if w.matches(key) {
			select {
			case w.ch <- e:
			default:
			}
		}
	}
	return e.revision
}

// Get returns the live value of key
func (m *MemKeyValue) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

// Put stores value unconditionally
func (m *MemKeyValue) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	return m.append(key, value, jetstream.KeyValuePut), nil
}

// Create stores value only if key has no live value
func (m *MemKeyValue) Create(ctx context.Context, key string, value []byte, _ ...jetstream.KVCreateOpt) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	if m.live(key) != nil {
		return 0, jetstream.ErrKeyExists
	}
	return m.append(key, value, jetstream.KeyValuePut), nil
}

// Update stores value if revision matches the latest revision of key
func (m *MemKeyValue) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	e := m.latest(key)
	if e == nil || e.revision != revision {
		return 0, fmt.Errorf("nats: wrong last sequence: %d", revision)
	}
	return m.append(key, value, jetstream.KeyValuePut), nil
}

// Delete writes a delete marker for key
func (m *MemKeyValue) Delete(ctx context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	m.append(key, nil, jetstream.KeyValueDelete)
	return nil
}

// ListKeys lists every key with a live value
func (m *MemKeyValue) ListKeys(ctx context.Context, _ ...jetstream.WatchOpt) (jetstream.KeyLister, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan string, len(m.entries))
	for key := range m.entries {
		if m.live(key) != nil {
			ch <- key
		}
	}
	close(ch)
	return memLister(ch), nil
}

// History returns the retained revisions of key, oldest first
func (m *MemKeyValue) History(ctx context.Context, key string, _ ...jetstream.WatchOpt) ([]jetstream.KeyValueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	hist := m.entries[key]
	if len(hist) == 0 {
		return nil, jetstream.ErrKeyNotFound
	}
	out := make([]jetstream.KeyValueEntry, len(hist))
	for i, e := range hist {
		out[i] = e
	}
	return out, nil
}

// Watch delivers writes made after the call to keys matching the pattern
// ">" (everything), an exact key, or "prefix.>". It behaves like a real
// watcher opened with UpdatesOnly; other options are ignored. Updates are
// dropped once the buffer of 64 is full.
func (m *MemKeyValue) Watch(ctx context.Context, keys string, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := &memWatcher{
		kv:      m,
		pattern: keys,
		ch:      make(chan jetstream.KeyValueEntry, 64),
		stopped: make(chan struct{}),
	}

	m.mu.Lock()
	m.watchers = append(m.watchers, w)
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = w.Stop()
		case <-w.stopped:
		}
	}()
	return w, nil
}

type memWatcher struct {
	kv      *MemKeyValue
	pattern string
	ch      chan jetstream.KeyValueEntry

	once    sync.Once
	stopped chan struct{}
}

func (w *memWatcher) matches(key string) bool {
	switch {
	case w.pattern == jetstream.AllKeys:
		return true
	case strings.HasSuffix(w.pattern, ".>"):
		return strings.HasPrefix(key, strings.TrimSuffix(w.pattern, ">"))
	default:
		return key == w.pattern
	}
}

func (w *memWatcher) Updates() <-chan jetstream.KeyValueEntry { return w.ch }

// Stop detaches the watcher and closes its update channel
func (w *memWatcher) Stop() error {
	w.once.Do(func() {
		w.kv.mu.Lock()
		w.kv.watchers = slices.DeleteFunc(w.kv.watchers, func(o *memWatcher) bool { return o == w })
		close(w.ch)
		w.kv.mu.Unlock()
		close(w.stopped)
	})
	return nil
}

type memEntry struct {
	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
	op       jetstream.KeyValueOp
}

func (e *memEntry) Bucket() string                  { return e.bucket }
func (e *memEntry) Key() string                     { return e.key }
func (e *memEntry) Value() []byte                   { return e.value }
func (e *memEntry) Revision() uint64                { return e.revision }
func (e *memEntry) Created() time.Time              { return e.created }
func (e *memEntry) Delta() uint64                   { return 0 }
func (e *memEntry) Operation() jetstream.KeyValueOp { return e.op }

type memLister <-chan string

func (l memLister) Keys() <-chan string { return l }
func (l memLister) Stop() error         { return nil }
