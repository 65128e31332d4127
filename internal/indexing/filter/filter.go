package filter

import "context"

// Filter defines the interface for address filtering
type Filter interface {
	// Contains checks if an address is tracked
	Contains(address string) bool

	// AddBatch adds multiple addresses
	AddBatch(addresses []string) error

	// Remove removes an address from the filter
	Remove(address string) error

	// Size returns the number of tracked addresses
	Size() int

	// Addresses returns the tracked addresses in sorted order
	Addresses() []string

	// Rebuild replaces the filter contents from its source of truth
	Rebuild(ctx context.Context) error
}

// Loader returns the full set of tracked addresses.
type Loader func(ctx context.Context) ([]string, error)
