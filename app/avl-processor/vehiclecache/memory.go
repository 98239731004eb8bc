// Package vehiclecache holds the latest snapshot of every vehicle: an in
// memory cache that always serves reads, optionally mirrored into redis for
// other services to share.
package vehiclecache

import (
	"sort"
	"sync"

	"github.com/TransitTrack/transittrack/business/data/avl"
)

// Memory is the authoritative snapshot cache. Updates are idempotent:
// pushing the same snapshot twice leaves a single entry.
type Memory struct {
	mu       sync.RWMutex
	vehicles map[string]*avl.VehicleSnapshot
	byBlock  map[string]map[string]bool
}

// NewMemory builds an empty cache.
func NewMemory() *Memory {
	return &Memory{
		vehicles: make(map[string]*avl.VehicleSnapshot),
		byBlock:  make(map[string]map[string]bool),
	}
}

// Update stores the vehicle's snapshot, moving it between block groupings
// when its assignment changed.
func (m *Memory) Update(snapshot *avl.VehicleSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if previous, ok := m.vehicles[snapshot.VehicleId]; ok && previous.BlockId != snapshot.BlockId {
		if group, ok := m.byBlock[previous.BlockId]; ok {
			delete(group, snapshot.VehicleId)
			if len(group) == 0 {
				delete(m.byBlock, previous.BlockId)
			}
		}
	}
	m.vehicles[snapshot.VehicleId] = snapshot
	if len(snapshot.BlockId) > 0 && snapshot.Predictable && !snapshot.ScheduleBased {
		group, ok := m.byBlock[snapshot.BlockId]
		if !ok {
			group = make(map[string]bool)
			m.byBlock[snapshot.BlockId] = group
		}
		group[snapshot.VehicleId] = true
	} else {
		// unassigned, unpredictable and schedule based vehicles do not hold
		// a block for exclusivity purposes
		m.removeFromAllBlocks(snapshot.VehicleId)
	}
	return nil
}

func (m *Memory) removeFromAllBlocks(vehicleId string) {
	for blockId, group := range m.byBlock {
		if group[vehicleId] {
			delete(group, vehicleId)
			if len(group) == 0 {
				delete(m.byBlock, blockId)
			}
		}
	}
}

// Vehicle returns the snapshot for vehicleId.
func (m *Memory) Vehicle(vehicleId string) (*avl.VehicleSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot, ok := m.vehicles[vehicleId]
	return snapshot, ok
}

// Vehicles lists every cached snapshot ordered by vehicle id.
func (m *Memory) Vehicles() []*avl.VehicleSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*avl.VehicleSnapshot, 0, len(m.vehicles))
	for _, snapshot := range m.vehicles {
		result = append(result, snapshot)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].VehicleId < result[j].VehicleId
	})
	return result
}

// VehicleIdsForBlock lists the predictable, non schedule based vehicles
// holding blockId.
func (m *Memory) VehicleIdsForBlock(blockId string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	group, ok := m.byBlock[blockId]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(group))
	for id := range group {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
