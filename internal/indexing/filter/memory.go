package filter

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var _ Filter = (*MemoryFilter)(nil)

// MemoryFilter implements Filter interface using an in-memory map.
// Addresses are matched exactly: base58 encodings are case-sensitive.
type MemoryFilter struct {
	addresses map[string]struct{}
	load      Loader
	mu        sync.RWMutex
}

// NewMemoryFilter creates a new in-memory filter. load may be nil, in which
// case Rebuild keeps the current contents.
func NewMemoryFilter(load Loader) *MemoryFilter {
	return &MemoryFilter{
		addresses: make(map[string]struct{}),
		load:      load,
	}
}

// Contains checks if an address is tracked.
func (f *MemoryFilter) Contains(address string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.addresses[address]
	return exists
}

// AddBatch adds multiple addresses.
func (f *MemoryFilter) AddBatch(addresses []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, addr := range addresses {
		f.addresses[addr] = struct{}{}
	}
	return nil
}

// Remove removes an address from the filter.
func (f *MemoryFilter) Remove(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.addresses, address)
	return nil
}

// Size returns the number of tracked addresses.
func (f *MemoryFilter) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.addresses)
}

// Rebuild replaces the contents with what the loader returns.
func (f *MemoryFilter) Rebuild(ctx context.Context) error {
	if f.load == nil {
		return nil
	}
	addresses, err := f.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load addresses: %w", err)
	}

	set := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		set[addr] = struct{}{}
	}

	f.mu.Lock()
	f.addresses = set
	f.mu.Unlock()
	return nil
}

// Addresses returns the sorted list of all tracked addresses.
func (f *MemoryFilter) Addresses() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	result := make([]string, 0, len(f.addresses))
	for addr := range f.addresses {
		result = append(result, addr)
	}
	sort.Strings(result)
	return result
}
