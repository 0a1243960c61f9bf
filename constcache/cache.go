// Package constcache implements the process-wide Constant Tensor Cache of
// spec.md §4.3: a keyed store that memoizes the persistent buffer holding
// precomputed constant outputs for a given partition and input signature,
// using a promise/future handshake so concurrent callers requesting the
// same key collapse onto one producer.
package constcache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/sbl8/partitionkernel/perr"
)

// Key identifies one constant-cache entry: hash(partition id, persistent
// memory-descriptor list, input signature) per spec.md §3.
type Key uint64

// Buffer is a reference-counted shared buffer. Retain and Release adjust
// the refcount; the cache itself never changes it (Commit stores the buffer
// as handed over, and eviction drops it without calling Release).
type Buffer struct {
	mu   sync.Mutex
	data []byte
	refs int
}

// NewBuffer wraps data (already the right size) with an initial refcount
// of 1, owned by the caller that created it (Commit stores the buffer
// without taking a reference of its own).
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data, refs: 1}
}

// Data returns the underlying bytes.
func (b *Buffer) Data() []byte { return b.data }

// Retain increments the refcount; callers that keep a Buffer beyond the
// call that handed it to them must Retain and later Release.
func (b *Buffer) Retain() {
	b.mu.Lock()
	b.refs++
	b.mu.Unlock()
}

// Release decrements the refcount. The zero-reference case is a no-op
// beyond bookkeeping: Go's GC reclaims the backing array once nothing
// references it, so Release exists for symmetry with the spec's C++
// shared_ptr model and for tests that assert on refcount, not to trigger
// explicit frees.
func (b *Buffer) Release() {
	b.mu.Lock()
	b.refs--
	b.mu.Unlock()
}

// Refs reports the current reference count (test/debug only).
func (b *Buffer) Refs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs
}

// future is the promise/future handshake of spec.md §4.3: exactly one
// caller per key becomes the producer and calls Set or SetErr; every other
// caller for the same key blocks on Wait.
type future struct {
	done chan struct{}
	buf  *Buffer
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) Set(buf *Buffer) {
	f.buf = buf
	close(f.done)
}

func (f *future) SetErr(err error) {
	f.err = err
	close(f.done)
}

func (f *future) Wait() (*Buffer, error) {
	<-f.done
	return f.buf, f.err
}

type entry struct {
	key     Key
	future  *future
	size    int64
	pending bool
	elem    *list.Element // position in the LRU list
}

// DefaultCapacity bounds the cache's resident byte count when a caller
// does not override it (config.Config.ConstantCacheCapacity == 0). Chosen
// to hold a modest number of mid-sized constant buffers without the cache
// growing unbounded across many distinct partitions in one process.
const DefaultCapacity int64 = 256 << 20 // 256 MiB

// Cache is the process-wide constant tensor cache. The zero value is not
// ready for use; construct with New.
type Cache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	entries  map[Key]*entry
	lru      *list.List // front = most recently used
}

// New creates a Cache bounded to capacity bytes. A capacity <= 0 uses
// DefaultCapacity.
func New(capacity int64) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[Key]*entry),
		lru:      list.New(),
	}
}

// GetOrAdd implements spec.md §4.3's get_or_add: if key already has a
// populated (or pending) entry, the caller blocks on its future and
// returns hit=true once resolved. Otherwise the caller becomes the
// producer: it must eventually call either Commit or Abort on the
// returned *Producer.
//
// size is the number of bytes the producer will allocate if it becomes the
// producer; it is only used for LRU accounting once Commit succeeds.
func (c *Cache) GetOrAdd(key Key, size int64) (buf *Buffer, hit bool, producer *Producer, err error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.lru.MoveToFront(e.elem)
		c.mu.Unlock()
		buf, err := e.future.Wait()
		if err != nil {
			return nil, false, nil, err
		}
		return buf, true, nil, nil
	}

	f := newFuture()
	e := &entry{key: key, future: f, size: size, pending: true}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.size += size
	c.mu.Unlock()

	return nil, false, &Producer{cache: c, entry: e}, nil
}

// Producer is returned to exactly one caller per key by GetOrAdd; it must
// call Commit (on success) or Abort (on failure) exactly once, so waiters
// either observe the value or a CacheProducerFailure and can retry
// (spec.md §4.3 Failure, §7 ErrCacheProducerFailure).
type Producer struct {
	cache *Cache
	entry *entry
}

// Commit publishes buf to every waiter and makes the entry eligible for
// LRU eviction.
func (p *Producer) Commit(buf *Buffer) {
	p.cache.mu.Lock()
	p.entry.pending = false
	if actual := int64(len(buf.Data())); actual != p.entry.size {
		p.cache.size += actual - p.entry.size
		p.entry.size = actual
	}
	p.cache.evictLocked()
	p.cache.mu.Unlock()

	p.entry.future.Set(buf)
}

// Abort fails the entry: every waiter's Wait returns err wrapped in
// perr.ErrCacheProducerFailure, and the pending entry is removed so the next
// caller may retry becoming the producer (spec.md §4.3 Failure).
func (p *Producer) Abort(err error) {
	p.cache.mu.Lock()
	delete(p.cache.entries, p.entry.key)
	p.cache.lru.Remove(p.entry.elem)
	p.cache.size -= p.entry.size
	p.cache.mu.Unlock()

	p.entry.future.SetErr(fmt.Errorf("%w: %w", perr.ErrCacheProducerFailure, err))
}

// evictLocked drops least-recently-used entries until size fits capacity.
// Caller must hold c.mu.
func (c *Cache) evictLocked() {
	for c.size > c.capacity {
		back := c.lru.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		if e.pending {
			// Never evict an entry whose producer hasn't committed yet.
			return
		}
		c.lru.Remove(back)
		delete(c.entries, e.key)
		c.size -= e.size
	}
}

// Len reports the number of resident entries (test/debug and metrics use).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
