package factory

import (
	"sync"

	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory/inventory"
)

// GlobalStock is the player's shared resource pool. The engine only draws
// from it as a power plant fuel fallback.
type GlobalStock struct {
	mu  sync.Mutex
	inv *inventory.Inventory
}

func NewGlobalStock(capacity int, start map[catalogs.ResourceKind]int) *GlobalStock {
	g := &GlobalStock{inv: inventory.New(capacity)}
	g.inv.Load(start)
	return g
}

func (g *GlobalStock) Take(k catalogs.ResourceKind, n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inv.Remove(k, n)
}

func (g *GlobalStock) Add(k catalogs.ResourceKind, n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inv.Add(k, n)
}

func (g *GlobalStock) Get(k catalogs.ResourceKind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inv.Get(k)
}

func (g *GlobalStock) Capacity() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inv.Capacity()
}

func (g *GlobalStock) Snapshot() map[catalogs.ResourceKind]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inv.Snapshot()
}

// Replace swaps in new contents and capacity, as sent by the client or a save.
func (g *GlobalStock) Replace(capacity int, amounts map[catalogs.ResourceKind]int) {
	inv := inventory.New(capacity)
	inv.Load(amounts)
	g.mu.Lock()
	g.inv = inv
	g.mu.Unlock()
}
