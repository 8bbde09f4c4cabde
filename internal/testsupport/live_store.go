// Package testsupport provides in-memory fakes for the core's store,
// bus, and clock abstractions so package tests can exercise real
// component logic without a Redis/Firestore dependency, in the style of
// the teacher's service-level table-driven tests.
package testsupport

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/chesscore/realtime/internal/store"
)

// FakeLiveStore is an in-memory LiveStore: good enough to exercise
// matchmaker/gamecore/timemanager logic deterministically in tests.
type FakeLiveStore struct {
	mu      sync.Mutex
	values  map[string][]byte
	expiry  map[string]time.Time
	zsets   map[string]map[string]float64
}

// NewFakeLiveStore constructs an empty FakeLiveStore.
func NewFakeLiveStore() *FakeLiveStore {
	return &FakeLiveStore{
		values: make(map[string][]byte),
		expiry: make(map[string]time.Time),
		zsets:  make(map[string]map[string]float64),
	}
}

func (f *FakeLiveStore) expired(key string) bool {
	t, ok := f.expiry[key]
	return ok && time.Now().After(t)
}

func (f *FakeLiveStore) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired(key) {
		delete(f.values, key)
		return false, nil
	}
	raw, ok := f.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (f *FakeLiveStore) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = raw
	if ttl > 0 {
		f.expiry[key] = time.Now().Add(ttl)
	} else {
		delete(f.expiry, key)
	}
	return nil
}

func (f *FakeLiveStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	delete(f.expiry, key)
	return nil
}

func (f *FakeLiveStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; !ok {
		return nil
	}
	f.expiry[key] = time.Now().Add(ttl)
	return nil
}

func (f *FakeLiveStore) SetNXWithTTL(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok && !f.expired(key) {
		return false, nil
	}
	f.values[key] = []byte(`"` + value + `"`)
	f.expiry[key] = time.Now().Add(ttl)
	return true, nil
}

func (f *FakeLiveStore) CheckAndRemove(ctx context.Context, key, expected string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.values[key]
	if !ok || string(raw) != `"`+expected+`"` {
		return false, nil
	}
	delete(f.values, key)
	delete(f.expiry, key)
	return true, nil
}

func (f *FakeLiveStore) ZAdd(ctx context.Context, key string, member string, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.zsets[key]
	if !ok {
		set = make(map[string]float64)
		f.zsets[key] = set
	}
	set[member] = score
	return nil
}

func (f *FakeLiveStore) ZRem(ctx context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.zsets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(set, m)
	}
	return nil
}

func (f *FakeLiveStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.zsets[key]
	out := make([]string, 0, len(set))
	for m, s := range set {
		if s >= min && s <= max {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return set[out[i]] < set[out[j]] })
	return out, nil
}

func (f *FakeLiveStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.zsets[key][member]
	return s, ok, nil
}

func (f *FakeLiveStore) ZIsMember(ctx context.Context, key, member string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.zsets[key][member]
	return ok, nil
}

func (f *FakeLiveStore) Close() error { return nil }

var _ store.LiveStore = (*FakeLiveStore)(nil)
