// Package cache keeps per-run lookup state shared by the worker and the
// storage backends.
package cache

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/kartlab/vehiclesim/pkg/core"
)

// VehicleCache holds the vehicles registered in the current run so state
// records can be checked without a database read.
type VehicleCache struct {
	mu       sync.RWMutex
	vehicles map[uint16]core.Vehicle
}

func NewVehicleCache() *VehicleCache {
	return &VehicleCache{vehicles: make(map[uint16]core.Vehicle)}
}

// Reset forgets every vehicle. Called when a new run starts.
func (c *VehicleCache) Reset() {
	c.mu.Lock()
	clear(c.vehicles)
	c.mu.Unlock()
}

func (c *VehicleCache) Get(id uint16) (core.Vehicle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vehicles[id]
	return v, ok
}

// Add registers v, replacing an earlier vehicle with the same ID.
func (c *VehicleCache) Add(v core.Vehicle) {
	c.mu.Lock()
	c.vehicles[v.ID] = v
	c.mu.Unlock()
}

func (c *VehicleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vehicles)
}

// IDs returns the registered vehicle IDs in ascending order.
func (c *VehicleCache) IDs() []uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.vehicles))
}

// Counter is a run-scoped event count safe for concurrent use.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Value() int { return int(c.n.Load()) }

func (c *Counter) Inc() { c.n.Add(1) }

// Reset zeroes the counter and returns the count it held.
func (c *Counter) Reset() int { return int(c.n.Swap(0)) }
