package factory

import (
	"fmt"

	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory/geom"
	"factorycraft.ai/internal/sim/factory/graph"
	"factorycraft.ai/internal/sim/factory/spatial"
	"factorycraft.ai/internal/sim/factory/state"
)

// Registry owns building lifecycle. Buildings live in a dense arena with
// stable indices; the caches, spatial index and game state are kept in step
// with every register and unregister.
type Registry struct {
	cats      *catalogs.Catalogs
	footprint geom.Footprint

	slots []*Building
	free  []int
	byID  map[string]int
	order []*Building // registration order
	seq   uint64

	// version changes on every membership change.
	version uint64

	state     *state.Store
	conns     *graph.ConnectionCache
	suppliers *graph.SupplierCache
	spatial   *spatial.Index[string]

	onUnregister []func(*Building)
}

func NewRegistry(cats *catalogs.Catalogs, fp geom.Footprint, cellSize float64, st *state.Store) *Registry {
	return &Registry{
		cats:      cats,
		footprint: fp,
		byID:      map[string]int{},
		state:     st,
		conns:     &graph.ConnectionCache{},
		suppliers: &graph.SupplierCache{},
		spatial:   spatial.New[string](cellSize),
	}
}

// Register constructs a building from its catalog entry and publishes it.
func (r *Registry) Register(p Placement) (*Building, error) {
	if p.ID == "" {
		return nil, &ConstructionError{ID: p.ID, Type: p.Type, Err: ErrEmptyID}
	}
	if _, dup := r.byID[p.ID]; dup {
		return nil, &ConstructionError{ID: p.ID, Type: p.Type, Err: ErrDuplicateID}
	}
	def, err := r.cats.Building(p.Type)
	if err != nil {
		return nil, &ConstructionError{ID: p.ID, Type: p.Type, Err: err}
	}
	if _, ok := behaviors[def.Specialty]; !ok {
		return nil, &ConstructionError{ID: p.ID, Type: p.Type, Err: fmt.Errorf("no behaviour for specialty %q", def.Specialty)}
	}

	b := newBuilding(p, def, r.footprint)
	r.seq++
	b.seq = r.seq
	if n := len(r.free); n > 0 {
		b.index = r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[b.index] = b
	} else {
		b.index = len(r.slots)
		r.slots = append(r.slots, b)
	}
	r.byID[b.ID] = b.index
	r.order = append(r.order, b)
	r.version++

	r.spatial.Add(b.ID, b.Center)
	r.state.AddBuilding(b.Snapshot())
	return b, nil
}

// Unregister removes id from the arena, both caches, the spatial index and
// the game state in one step.
func (r *Registry) Unregister(id string) bool {
	i, ok := r.byID[id]
	if !ok {
		return false
	}
	b := r.slots[i]
	delete(r.byID, id)
	r.slots[i] = nil
	r.free = append(r.free, i)
	for j, o := range r.order {
		if o == b {
			r.order = append(r.order[:j:j], r.order[j+1:]...)
			break
		}
	}
	r.version++

	r.conns.Remove(i)
	r.suppliers.Remove(i)
	r.spatial.Remove(id)
	r.state.RemoveBuilding(id)

	// Live buildings must not keep pointers to the removed one.
	for _, o := range r.order {
		o.suppliers = dropSupplier(o.suppliers, b)
		o.energySuppliers = dropSupplier(o.energySuppliers, b)
	}
	for _, fn := range r.onUnregister {
		fn(b)
	}
	return true
}

func dropSupplier(list []supplier, b *Building) []supplier {
	out := list[:0:0]
	for _, s := range list {
		if s.b != b {
			out = append(out, s)
		}
	}
	return out
}

// Move updates a building's position and its spatial entry.
func (r *Registry) Move(id string, pos geom.Vec2) bool {
	b, ok := r.Get(id)
	if !ok {
		return false
	}
	if b.Position == pos {
		return true
	}
	b.Position = pos
	b.Center = r.footprint.Center(pos)
	r.spatial.Add(id, b.Center)
	return true
}

func (r *Registry) Get(id string) (*Building, bool) {
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.slots[i], true
}

// At returns the building in arena slot i, or nil.
func (r *Registry) At(i int) *Building {
	if i < 0 || i >= len(r.slots) {
		return nil
	}
	return r.slots[i]
}

// Resolve maps an id to its arena slot.
func (r *Registry) Resolve(id string) (int, bool) {
	i, ok := r.byID[id]
	return i, ok
}

// All returns the live buildings in registration order. The slice is shared; do not modify it.
func (r *Registry) All() []*Building { return r.order }

func (r *Registry) Count() int { return len(r.order) }

// Slots is the arena length, an upper bound for building indices.
func (r *Registry) Slots() int { return len(r.slots) }

func (r *Registry) Version() uint64 { return r.version }

func (r *Registry) Nearby(p geom.Vec2, radius float64) []string {
	return r.spatial.Nearby(p, radius)
}

// rebuildSpatial reindexes every live building from scratch.
func (r *Registry) rebuildSpatial() {
	r.spatial.Clear()
	for _, b := range r.order {
		r.spatial.Add(b.ID, b.Center)
	}
}

// OnUnregister adds a hook run after a building has been purged.
func (r *Registry) OnUnregister(fn func(*Building)) {
	r.onUnregister = append(r.onUnregister, fn)
}

// Tracks reports whether id is still present in any registry-owned structure.
func (r *Registry) Tracks(id string, index int) bool {
	if _, ok := r.byID[id]; ok {
		return true
	}
	if r.spatial.Contains(id) {
		return true
	}
	if _, ok := r.state.Building(id); ok {
		return true
	}
	// A freed slot must not be referenced until it is reused.
	if r.At(index) == nil && (r.conns.Contains(index) || r.suppliers.Contains(index)) {
		return true
	}
	return false
}
