package kvfakes

import (
	"encoding/json"
	"sync"

	"github.com/voluntree/client-go/kvstore"
)

var _ kvstore.Store = (*FakeStore)(nil)

// FakeStore is an in-memory kvstore.Store for tests. Setting FailWrites
// simulates a disabled or quota-exhausted durable store: every mutation
// reports failure and leaves the map untouched.
type FakeStore struct {
	lock       sync.RWMutex
	data       map[string]string
	FailWrites bool

	// SetCalls counts mutating calls, useful for asserting write-through
	// persistence behaviour.
	SetCalls int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{data: make(map[string]string)}
}

func (f *FakeStore) Get(key, fallback string) string {
	f.lock.RLock()
	defer f.lock.RUnlock()

	value, ok := f.data[key]
	if !ok {
		return fallback
	}
	return value
}

func (f *FakeStore) GetJSON(key string, target any) bool {
	f.lock.RLock()
	defer f.lock.RUnlock()

	value, ok := f.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(value), target) == nil
}

func (f *FakeStore) Set(key, value string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.SetCalls++
	if f.FailWrites {
		return false
	}
	f.data[key] = value
	return true
}

func (f *FakeStore) SetJSON(key string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return f.Set(key, string(raw))
}

func (f *FakeStore) Remove(key string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.FailWrites {
		return false
	}
	delete(f.data, key)
	return true
}

func (f *FakeStore) Clear() bool {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.FailWrites {
		return false
	}
	f.data = make(map[string]string)
	return true
}

func (f *FakeStore) IsAvailable() bool {
	return f.Set("__storage_probe__", "1") && f.Remove("__storage_probe__")
}

// Len reports how many keys are stored.
func (f *FakeStore) Len() int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return len(f.data)
}
