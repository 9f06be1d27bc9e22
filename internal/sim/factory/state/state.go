// Package state is the canonical store of building snapshots that the
// presentation layer reads, with change notifications.
package state

import (
	"sort"
	"sync"

	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory/geom"
)

type BuildingSnapshot struct {
	ID             string                        `json:"id"`
	Type           catalogs.BuildingType         `json:"type"`
	Position       geom.Vec2                     `json:"position"`
	Inventory      map[catalogs.ResourceKind]int `json:"inventory"`
	EnergyShortage bool                          `json:"energy_shortage"`
	// Ports holds per-output-port stock for utilities.
	Ports []map[catalogs.ResourceKind]int `json:"ports,omitempty"`
}

func (s BuildingSnapshot) Clone() BuildingSnapshot {
	out := s
	out.Inventory = cloneCounts(s.Inventory)
	if s.Ports != nil {
		out.Ports = make([]map[catalogs.ResourceKind]int, len(s.Ports))
		for i, p := range s.Ports {
			out.Ports[i] = cloneCounts(p)
		}
	}
	return out
}

// SameContents compares everything that a tick can change.
func (s BuildingSnapshot) SameContents(o BuildingSnapshot) bool {
	if s.EnergyShortage != o.EnergyShortage || s.Position != o.Position || len(s.Ports) != len(o.Ports) {
		return false
	}
	if !sameCounts(s.Inventory, o.Inventory) {
		return false
	}
	for i := range s.Ports {
		if !sameCounts(s.Ports[i], o.Ports[i]) {
			return false
		}
	}
	return true
}

func cloneCounts(m map[catalogs.ResourceKind]int) map[catalogs.ResourceKind]int {
	out := make(map[catalogs.ResourceKind]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sameCounts(a, b map[catalogs.ResourceKind]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

type ChangeType string

const (
	BuildingCreated   ChangeType = "building_created"
	BuildingDestroyed ChangeType = "building_destroyed"
	InventoryUpdated  ChangeType = "inventory_updated"
	BatchUpdate       ChangeType = "batch_update"
)

type Change struct {
	Type       ChangeType         `json:"type"`
	Tick       uint64             `json:"tick"`
	BuildingID string             `json:"building_id,omitempty"`
	Changes    *BuildingSnapshot  `json:"changes,omitempty"`
	Batch      []BuildingSnapshot `json:"batch,omitempty"`
}

type Listener func(Change)

// View is a point-in-time copy of the store.
type View struct {
	Tick      uint64                      `json:"tick"`
	Buildings map[string]BuildingSnapshot `json:"buildings"`
}

// IDs returns the building ids in sorted order.
func (v View) IDs() []string {
	ids := make([]string, 0, len(v.Buildings))
	for id := range v.Buildings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type Store struct {
	mu        sync.RWMutex
	tick      uint64
	buildings map[string]BuildingSnapshot

	subMu     sync.Mutex
	nextSub   int
	listeners map[int]Listener
	order     []int
}

func NewStore() *Store {
	return &Store{
		buildings: map[string]BuildingSnapshot{},
		listeners: map[int]Listener{},
	}
}

// Subscribe registers l and returns a function that removes it. Listeners run
// synchronously, outside the store lock, in subscription order.
func (s *Store) Subscribe(l Listener) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = l
	s.order = append(s.order, id)
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.listeners, id)
		for i, o := range s.order {
			if o == id {
				s.order = append(s.order[:i:i], s.order[i+1:]...)
				break
			}
		}
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	ls := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		ls = append(ls, s.listeners[id])
	}
	s.subMu.Unlock()
	for _, l := range ls {
		l(c)
	}
}

func (s *Store) AddBuilding(b BuildingSnapshot) {
	b = b.Clone()
	s.mu.Lock()
	s.buildings[b.ID] = b
	tick := s.tick
	s.mu.Unlock()
	c := b.Clone()
	s.notify(Change{Type: BuildingCreated, Tick: tick, BuildingID: b.ID, Changes: &c})
}

func (s *Store) RemoveBuilding(id string) bool {
	s.mu.Lock()
	_, ok := s.buildings[id]
	delete(s.buildings, id)
	tick := s.tick
	s.mu.Unlock()
	if ok {
		s.notify(Change{Type: BuildingDestroyed, Tick: tick, BuildingID: id})
	}
	return ok
}

// UpdateBuilding applies one snapshot as an individual inventory_updated change.
func (s *Store) UpdateBuilding(tick uint64, b BuildingSnapshot) {
	b = b.Clone()
	s.mu.Lock()
	if _, ok := s.buildings[b.ID]; !ok {
		s.mu.Unlock()
		return
	}
	s.buildings[b.ID] = b
	s.tick = tick
	s.mu.Unlock()
	c := b.Clone()
	s.notify(Change{Type: InventoryUpdated, Tick: tick, BuildingID: b.ID, Changes: &c})
}

// BatchUpdate applies all snapshots under one lock and emits a single
// batch_update change. Unknown ids are ignored.
func (s *Store) BatchUpdate(tick uint64, updates []BuildingSnapshot) {
	applied := make([]BuildingSnapshot, 0, len(updates))
	s.mu.Lock()
	for _, u := range updates {
		if _, ok := s.buildings[u.ID]; !ok {
			continue
		}
		u = u.Clone()
		s.buildings[u.ID] = u
		applied = append(applied, u.Clone())
	}
	s.tick = tick
	s.mu.Unlock()
	s.notify(Change{Type: BatchUpdate, Tick: tick, Batch: applied})
}

// SetTick overwrites the tick count without notifying, for restores.
func (s *Store) SetTick(tick uint64) {
	s.mu.Lock()
	s.tick = tick
	s.mu.Unlock()
}

func (s *Store) TickCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buildings)
}

func (s *Store) Building(id string) (BuildingSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buildings[id]
	if !ok {
		return BuildingSnapshot{}, false
	}
	return b.Clone(), true
}

func (s *Store) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := View{Tick: s.tick, Buildings: make(map[string]BuildingSnapshot, len(s.buildings))}
	for id, b := range s.buildings {
		v.Buildings[id] = b.Clone()
	}
	return v
}
