package factory

import (
	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory/geom"
	"factorycraft.ai/internal/sim/factory/graph"
	"factorycraft.ai/internal/sim/factory/inventory"
	"factorycraft.ai/internal/sim/factory/state"
)

// Placement is an external request to put a building on the map.
type Placement struct {
	ID        string                        `json:"id"`
	Type      catalogs.BuildingType         `json:"type"`
	Position  geom.Vec2                     `json:"position"`
	Inventory map[catalogs.ResourceKind]int `json:"inventory,omitempty"`
	// Ports restores per-output-port reservations of a utility.
	Ports []map[catalogs.ResourceKind]int `json:"ports,omitempty"`
}

type supplier struct {
	b    *Building
	port int
}

// Building is one simulated entity. Its behaviour is selected by Def.Specialty
// from the behaviors table; only its own methods mutate Inv.
type Building struct {
	ID       string
	Type     catalogs.BuildingType
	Def      *catalogs.BuildingDef
	Position geom.Vec2
	Center   geom.Vec2
	Inv      *inventory.Inventory

	EnergyShortage bool

	index int
	seq   uint64
	view  graph.View

	suppliers       []supplier
	energySuppliers []supplier
}

func newBuilding(p Placement, def *catalogs.BuildingDef, fp geom.Footprint) *Building {
	b := &Building{
		ID:       p.ID,
		Type:     p.Type,
		Def:      def,
		Position: p.Position,
		Center:   fp.Center(p.Position),
		Inv:      inventory.New(def.Capacity),
	}
	b.Inv.Load(p.Inventory)
	for port, m := range p.Ports {
		for _, k := range catalogs.PriorityOrder {
			b.Inv.Reserve(port, k, m[k])
		}
	}
	return b
}

func (b *Building) Specialty() catalogs.Specialty { return b.Def.Specialty }

// Index is the building's arena slot; it is reused after unregistration.
func (b *Building) Index() int { return b.index }

func (b *Building) Snapshot() state.BuildingSnapshot {
	return state.BuildingSnapshot{
		ID:             b.ID,
		Type:           b.Type,
		Position:       b.Position,
		Inventory:      b.Inv.Snapshot(),
		EnergyShortage: b.EnergyShortage,
		Ports:          b.Inv.PortSnapshot(),
	}
}

// PullResource removes up to max units of kind for a downstream building.
// Kinds the building does not output are never handed out.
func (b *Building) PullResource(kind catalogs.ResourceKind, max int) int {
	return b.pullPort(0, kind, max)
}

// PullAnyResource hands out the first outputable material kind in priority order.
func (b *Building) PullAnyResource(max int) (catalogs.ResourceKind, int) {
	return b.pullAnyPort(0, max)
}

// pullPort serves a pull arriving over source port slot. Utilities hand out
// only what is reserved for that port; everything else ignores the slot.
func (b *Building) pullPort(port int, kind catalogs.ResourceKind, max int) int {
	if max <= 0 || !b.Def.CanOutput(kind) {
		return 0
	}
	if b.Def.Specialty == catalogs.SpecialtyUtility {
		return b.Inv.TakeReserved(port, kind, max)
	}
	return b.Inv.Remove(kind, max)
}

func (b *Building) pullAnyPort(port, max int) (catalogs.ResourceKind, int) {
	if max <= 0 {
		return catalogs.KindNone, 0
	}
	for _, k := range catalogs.PriorityOrder {
		if !k.Material() || !b.Def.CanOutput(k) || b.available(port, k) == 0 {
			continue
		}
		if n := b.pullPort(port, k, max); n > 0 {
			return k, n
		}
	}
	return catalogs.KindNone, 0
}

func (b *Building) available(port int, k catalogs.ResourceKind) int {
	if b.Def.Specialty == catalogs.SpecialtyUtility {
		return b.Inv.Reserved(port, k)
	}
	return b.Inv.Get(k)
}
