package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/duka-backend/pkg/redis"
)

const memoryIdleWait = 10 * time.Millisecond

// MemoryStore is an in-process Store for tests and single-binary local runs.
type MemoryStore struct {
	mu     sync.Mutex
	lists  map[string][]string
	zsets  map[string]map[string]float64
	hashes map[string]map[string]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists:  map[string][]string{},
		zsets:  map[string]map[string]float64{},
		hashes: map[string]map[string]string{},
	}
}

func (m *MemoryStore) QueueKey(queue, part string) string {
	return fmt.Sprintf("queue:%s:%s", queue, part)
}

func (m *MemoryStore) LPush(_ context.Context, key string, values ...any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range values {
		m.lists[key] = append([]string{fmt.Sprint(v)}, m.lists[key]...)
	}
	return int64(len(m.lists[key])), nil
}

// BLMove never blocks longer than a short idle wait so test loops stay cheap.
func (m *MemoryStore) BLMove(ctx context.Context, src, dst string, timeout time.Duration) (string, error) {
	m.mu.Lock()
	list := m.lists[src]
	if len(list) > 0 {
		value := list[len(list)-1]
		m.lists[src] = list[:len(list)-1]
		m.lists[dst] = append([]string{value}, m.lists[dst]...)
		m.mu.Unlock()
		return value, nil
	}
	m.mu.Unlock()

	wait := memoryIdleWait
	if timeout > 0 && timeout < wait {
		wait = timeout
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(wait):
	}
	return "", redis.Nil
}

func (m *MemoryStore) LRem(_ context.Context, key string, count int64, value any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := fmt.Sprint(value)
	var removed int64
	kept := m.lists[key][:0:0]
	for _, v := range m.lists[key] {
		if v == target && (count == 0 || removed < count) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	m.lists[key] = kept
	return removed, nil
}

func (m *MemoryStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	from, to, ok := listBounds(int64(len(list)), start, stop)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, to-from+1)
	copy(out, list[from:to+1])
	return out, nil
}

func (m *MemoryStore) LTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	from, to, ok := listBounds(int64(len(list)), start, stop)
	if !ok {
		delete(m.lists, key)
		return nil
	}
	m.lists[key] = append([]string(nil), list[from:to+1]...)
	return nil
}

func (m *MemoryStore) LLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.lists[key])), nil
}

func (m *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.zsets[key] == nil {
		m.zsets[key] = map[string]float64{}
	}
	m.zsets[key][member] = score
	return nil
}

func (m *MemoryStore) ZAddExisting(_ context.Context, key string, score float64, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.zsets[key][member]; !ok {
		return false, nil
	}
	m.zsets[key][member] = score
	return true, nil
}

func (m *MemoryStore) ZRangeByScore(_ context.Context, key string, max float64, limit int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type entry struct {
		member string
		score  float64
	}
	var entries []entry
	for member, s := range m.zsets[key] {
		if s <= max {
			entries = append(entries, entry{member, s})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score == entries[j].score {
			return entries[i].member < entries[j].member
		}
		return entries[i].score < entries[j].score
	})
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		out = append(out, e.member)
	}
	return out, nil
}

func (m *MemoryStore) ZRem(_ context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for _, member := range members {
		if _, ok := m.zsets[key][member]; ok {
			delete(m.zsets[key], member)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.zsets[key])), nil
}

func (m *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes[key] == nil {
		m.hashes[key] = map[string]string{}
	}
	m.hashes[key][field] = value
	return nil
}

func (m *MemoryStore) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.hashes[key][field]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *MemoryStore) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range fields {
		delete(m.hashes[key], f)
	}
	return nil
}

func listBounds(n, start, stop int64) (int64, int64, bool) {
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
	if n == 0 || start > stop {
		return 0, 0, false
	}
	return start, stop, true
}
