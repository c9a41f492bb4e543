package shardmap

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

var ErrInvalidSharding = errors.New("invalid sharding")

// Map is a string-keyed concurrent map sharded by xxhash. A single key
// always resolves to the same shard, so per-key operations like
// GetOrSet are atomic under the shard lock alone.
type Map struct {
	capacity uint64
	count    int64
	shards   []*shard
}

type shard struct {
	mu    sync.RWMutex
	elems map[string]interface{}
}

func New(shards int) (*Map, error) {
	if shards < 1 {
		return nil, ErrInvalidSharding
	}

	m := Map{
		capacity: uint64(shards),
		shards:   make([]*shard, shards),
	}

	for i := range m.shards {
		m.shards[i] = &shard{elems: make(map[string]interface{})}
	}

	return &m, nil
}

// GetOrSet returns the element stored under key, constructing and
// storing the factory's product when the key is vacant. The second
// return value reports whether a new element was created.
func (m *Map) GetOrSet(key string, factory func() interface{}) (interface{}, bool) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.elems[key]; ok {
		return v, false
	}

	v := factory()
	s.elems[key] = v
	atomic.AddInt64(&m.count, 1)
	return v, true
}

func (m *Map) Get(key string) (interface{}, bool) {
	s := m.getShard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.elems[key]
	return v, ok
}

// Remove deletes key and reports whether it was present.
func (m *Map) Remove(key string) bool {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.elems[key]; !ok {
		return false
	}

	delete(s.elems, key)
	atomic.AddInt64(&m.count, -1)
	return true
}

func (m *Map) Purge() {
	var wg sync.WaitGroup

	wg.Add(len(m.shards))
	for i := range m.shards {
		go func(i int) {
			defer wg.Done()
			s := m.shards[i]
			s.mu.Lock()
			removed := len(s.elems)
			s.elems = make(map[string]interface{})
			s.mu.Unlock()
			atomic.AddInt64(&m.count, -int64(removed))
		}(i)
	}

	wg.Wait()
}

func (m *Map) Count() int {
	return int(atomic.LoadInt64(&m.count))
}

func (m *Map) getShard(key string) *shard {
	hash := xxhash.Sum64String(key)
	return m.shards[hash%m.capacity]
}
