package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed on first request")
	}
	if count != 1 {
		t.Fatalf("expected counter 1 got %d", count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected expire for first increment")
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expire should not be set again")
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}
}

func TestListMoveAndRemove(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	if _, err := client.LPush(ctx, "waiting", "job-1"); err != nil {
		t.Fatalf("lpush: %v", err)
	}
	if _, err := client.LPush(ctx, "waiting", "job-2"); err != nil {
		t.Fatalf("lpush: %v", err)
	}

	first, err := client.BLMove(ctx, "waiting", "active", time.Second)
	if err != nil {
		t.Fatalf("blmove: %v", err)
	}
	if first != "job-1" {
		t.Fatalf("expected oldest job first, got %q", first)
	}
	active, err := client.LRange(ctx, "active", 0, -1)
	if err != nil {
		t.Fatalf("lrange: %v", err)
	}
	if len(active) != 1 || active[0] != "job-1" {
		t.Fatalf("unexpected active list %v", active)
	}

	removed, err := client.LRem(ctx, "active", 1, "job-1")
	if err != nil || removed != 1 {
		t.Fatalf("expected one removal, got %d (%v)", removed, err)
	}

	if _, err := client.BLMove(ctx, "waiting", "active", time.Second); err != nil {
		t.Fatalf("blmove second: %v", err)
	}
	if _, err := client.BLMove(ctx, "waiting", "active", time.Second); !errors.Is(err, Nil) {
		t.Fatalf("expected Nil on empty list, got %v", err)
	}
}

func TestZRangeByScoreHonoursMaxAndLimit(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	for i, member := range []string{"a", "b", "c"} {
		if err := client.ZAdd(ctx, "delayed", float64(10*(i+1)), member); err != nil {
			t.Fatalf("zadd: %v", err)
		}
	}

	due, err := client.ZRangeByScore(ctx, "delayed", 20, 10)
	if err != nil {
		t.Fatalf("zrangebyscore: %v", err)
	}
	if len(due) != 2 || due[0] != "a" || due[1] != "b" {
		t.Fatalf("unexpected due members %v", due)
	}

	limited, err := client.ZRangeByScore(ctx, "delayed", 100, 1)
	if err != nil {
		t.Fatalf("zrangebyscore: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %v", limited)
	}

	removed, err := client.ZRem(ctx, "delayed", "a", "missing")
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 removal, got %d (%v)", removed, err)
	}
	size, err := client.ZCard(ctx, "delayed")
	if err != nil || size != 2 {
		t.Fatalf("expected 2 members left, got %d (%v)", size, err)
	}
}

func TestHashRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	if err := client.HSet(ctx, "jobs", "job-1", `{"id":"job-1"}`); err != nil {
		t.Fatalf("hset: %v", err)
	}
	got, err := client.HGet(ctx, "jobs", "job-1")
	if err != nil || got != `{"id":"job-1"}` {
		t.Fatalf("unexpected hget %q (%v)", got, err)
	}
	if err := client.HDel(ctx, "jobs", "job-1"); err != nil {
		t.Fatalf("hdel: %v", err)
	}
	if _, err := client.HGet(ctx, "jobs", "job-1"); !errors.Is(err, Nil) {
		t.Fatalf("expected Nil after delete, got %v", err)
	}
}

func TestUninitializedClientFails(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, err := client.LPush(context.Background(), "k", "v"); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, err := client.DelIfValue(context.Background(), "k", "v"); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "duka:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "duka:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.QueueKey("sms", "waiting"); got != "duka:queue:sms:waiting" {
		t.Fatalf("unexpected queue key %s", got)
	}
	if got := client.LockKey(""); got != "duka:lock" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	lists       map[string][]string
	zsets       map[string]map[string]float64
	hashes      map[string]map[string]string
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:   make(map[string]string),
		incr:   make(map[string]int64),
		lists:  make(map[string][]string),
		zsets:  make(map[string]map[string]float64),
		hashes: make(map[string]map[string]string),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) LPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	for _, v := range values {
		m.lists[key] = append([]string{fmt.Sprint(v)}, m.lists[key]...)
	}
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *mockCmdable) BLMove(ctx context.Context, src, dst, srcpos, destpos string, timeout time.Duration) *redis.StringCmd {
	list := m.lists[src]
	if len(list) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	value := list[len(list)-1]
	m.lists[src] = list[:len(list)-1]
	m.lists[dst] = append([]string{value}, m.lists[dst]...)
	return redis.NewStringResult(value, nil)
}

func (m *mockCmdable) LRem(ctx context.Context, key string, count int64, value any) *redis.IntCmd {
	target := fmt.Sprint(value)
	kept := make([]string, 0, len(m.lists[key]))
	var removed int64
	for _, v := range m.lists[key] {
		if v == target && (count == 0 || removed < count) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	m.lists[key] = kept
	return redis.NewIntResult(removed, nil)
}

func (m *mockCmdable) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	list := m.lists[key]
	n := int64(len(list))
	if stop < 0 {
		stop = n + stop
	}
	if stop >= n {
		stop = n - 1
	}
	if start >= n || start > stop {
		return redis.NewStringSliceResult([]string{}, nil)
	}
	out := append([]string(nil), list[start:stop+1]...)
	return redis.NewStringSliceResult(out, nil)
}

func (m *mockCmdable) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	kept := m.LRange(ctx, key, start, stop).Val()
	m.lists[key] = kept
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) LLen(ctx context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *mockCmdable) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	set, ok := m.zsets[key]
	if !ok {
		set = map[string]float64{}
		m.zsets[key] = set
	}
	for _, z := range members {
		set[fmt.Sprint(z.Member)] = z.Score
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (m *mockCmdable) ZAddArgs(ctx context.Context, key string, args redis.ZAddArgs) *redis.IntCmd {
	var changed int64
	for _, z := range args.Members {
		name := fmt.Sprint(z.Member)
		old, exists := m.zsets[key][name]
		if args.XX && !exists {
			continue
		}
		if args.NX && exists {
			continue
		}
		if m.zsets[key] == nil {
			m.zsets[key] = map[string]float64{}
		}
		m.zsets[key][name] = z.Score
		if !exists || (args.Ch && old != z.Score) {
			changed++
		}
	}
	return redis.NewIntResult(changed, nil)
}

func (m *mockCmdable) ZScore(ctx context.Context, key, member string) *redis.FloatCmd {
	score, ok := m.zsets[key][member]
	if !ok {
		return redis.NewFloatResult(0, redis.Nil)
	}
	return redis.NewFloatResult(score, nil)
}

func (m *mockCmdable) ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd {
	max, err := strconv.ParseFloat(opt.Max, 64)
	if err != nil {
		return redis.NewStringSliceResult(nil, err)
	}
	type entry struct {
		member string
		score  float64
	}
	var entries []entry
	for member, score := range m.zsets[key] {
		if score <= max {
			entries = append(entries, entry{member, score})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].score < entries[j].score })
	out := []string{}
	for _, e := range entries {
		if opt.Count > 0 && int64(len(out)) >= opt.Count {
			break
		}
		out = append(out, e.member)
	}
	return redis.NewStringSliceResult(out, nil)
}

func (m *mockCmdable) ZRem(ctx context.Context, key string, members ...any) *redis.IntCmd {
	var removed int64
	for _, member := range members {
		name := fmt.Sprint(member)
		if _, ok := m.zsets[key][name]; ok {
			delete(m.zsets[key], name)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (m *mockCmdable) ZCard(ctx context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(m.zsets[key])), nil)
}

func (m *mockCmdable) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	hash, ok := m.hashes[key]
	if !ok {
		hash = map[string]string{}
		m.hashes[key] = hash
	}
	for i := 0; i+1 < len(values); i += 2 {
		hash[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (m *mockCmdable) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	v, ok := m.hashes[key][field]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	for _, f := range fields {
		delete(m.hashes[key], f)
	}
	return redis.NewIntResult(int64(len(fields)), nil)
}
