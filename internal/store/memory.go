package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and local development. A
// single mutex serializes every Apply, which trivially satisfies the
// per-key serialization the Redis backend provides via WATCH.
type Memory struct {
	mu     sync.Mutex
	hashes map[string]Record
	lists  map[string][]string
	sets   map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		hashes: make(map[string]Record),
		lists:  make(map[string][]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Get(_ context.Context, key string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRecord(m.hashes[key]), nil
}

func (m *Memory) Apply(_ context.Context, keys []string, fn func(view map[string]Record) (*Mutation, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := make(map[string]Record, len(keys))
	for _, k := range keys {
		view[k] = copyRecord(m.hashes[k])
	}
	mut, err := fn(view)
	if err != nil {
		return err
	}
	if mut == nil {
		return nil
	}
	for k, rec := range mut.Set {
		dst := m.hashes[k]
		if dst == nil {
			dst = make(Record, len(rec))
			m.hashes[k] = dst
		}
		for f, v := range rec {
			dst[f] = v
		}
	}
	for k, vals := range mut.Append {
		m.lists[k] = append(m.lists[k], vals...)
	}
	for k, members := range mut.AddTo {
		dst := m.sets[k]
		if dst == nil {
			dst = make(map[string]struct{}, len(members))
			m.sets[k] = dst
		}
		for _, member := range members {
			dst[member] = struct{}{}
		}
	}
	for _, k := range mut.Delete {
		delete(m.hashes, k)
		delete(m.lists, k)
		delete(m.sets, k)
	}
	return nil
}

func (m *Memory) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (m *Memory) ListLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.lists[key])), nil
}

func (m *Memory) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for f, v := range rec {
		out[f] = v
	}
	return out
}
