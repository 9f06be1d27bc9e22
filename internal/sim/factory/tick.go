package factory

import (
	"context"
	"io"
	"log"
	"sort"
	"time"

	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory/graph"
	"factorycraft.ai/internal/sim/factory/parallel"
	"factorycraft.ai/internal/sim/factory/state"
	"factorycraft.ai/internal/sim/tuning"
)

// TickInput is what the presentation layer supplies for one tick.
type TickInput struct {
	Connections []graph.Connection
	Fields      []ResourceField
	Global      *GlobalStock
}

type TickResult struct {
	Tick      uint64
	Duration  time.Duration
	Buildings int
	Rebuilt   bool
	// Dangling counts connections skipped this tick.
	Dangling  int
	Shortages int
	Published int
}

// TickProcessor runs the fixed phase order over every registered building
// and decides when the derived caches are rebuilt.
type TickProcessor struct {
	reg    *Registry
	opt    tuning.Optimization
	logger *log.Logger

	tick        uint64
	lastVersion uint64
	lastKnown   map[string]state.BuildingSnapshot
}

func NewTickProcessor(reg *Registry, opt tuning.Optimization, logger *log.Logger) *TickProcessor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &TickProcessor{
		reg:       reg,
		opt:       opt,
		logger:    logger,
		lastKnown: map[string]state.BuildingSnapshot{},
	}
	reg.OnUnregister(func(b *Building) { delete(p.lastKnown, b.ID) })
	return p
}

func (p *TickProcessor) CurrentTick() uint64 { return p.tick }

// reset rewinds the processor to tick and drops every derived cache.
func (p *TickProcessor) reset(tick uint64) {
	p.tick = tick
	p.lastKnown = map[string]state.BuildingSnapshot{}
	p.reg.conns.Invalidate()
}

func (p *TickProcessor) Tick(ctx context.Context, in TickInput) TickResult {
	start := time.Now()
	p.tick++
	res := TickResult{Tick: p.tick}
	reg := p.reg
	buildings := reg.All()
	env := &tickEnv{fields: fieldSet(in.Fields), global: in.Global}

	// 1. Local connection views.
	views := graph.BuildViews(in.Connections, reg.Slots(), reg.Resolve)
	res.Dangling = views.Skipped
	for _, b := range buildings {
		b.view = views.ByIndex[b.index]
	}

	// 2.
	for _, b := range buildings {
		b.EnergyShortage = false
	}

	// 3. Connection cache and spatial index.
	if p.needsRebuild(in.Connections) {
		reg.conns.Rebuild(in.Connections, reg.Slots(), reg.Resolve)
		reg.rebuildSpatial()
		p.lastVersion = reg.Version()
		res.Rebuilt = true
	}

	// 4. Suppliers.
	p.bindSuppliers(in.Connections)

	// 5. Power first, so energy is available to this tick's consumers.
	for _, b := range buildings {
		if b.Def.Specialty != catalogs.SpecialtyPowerPlant {
			continue
		}
		bh := behaviors[b.Def.Specialty]
		p.run(b, "pull", bh.pull, env)
		p.run(b, "consume", bh.consume, env)
	}

	// 6. Miners. Energy draws touch shared plants and stay sequential.
	var producers []*Building
	for _, b := range buildings {
		if b.Def.Specialty == catalogs.SpecialtyMiner && p.check(b, "energy", minerHasEnergy) {
			producers = append(producers, b)
		}
	}
	produce := behaviors[catalogs.SpecialtyMiner].produce
	if p.opt.ParallelProcessing && len(producers) > 1 {
		err := parallel.ForEachChunk(ctx, producers, p.opt.MaxConcurrency, func(_ context.Context, b *Building) error {
			p.run(b, "produce", produce, env)
			return nil
		})
		if err != nil {
			p.logger.Printf("tick %d: miner production interrupted: %v", p.tick, err)
		}
	} else {
		for _, b := range producers {
			p.run(b, "produce", produce, env)
		}
	}

	// 7.
	for _, b := range buildings {
		if b.Def.Specialty == catalogs.SpecialtyPowerPlant {
			continue
		}
		p.run(b, "pull", behaviors[b.Def.Specialty].pull, env)
	}

	// 8.
	for _, b := range buildings {
		switch b.Def.Specialty {
		case catalogs.SpecialtyFactory, catalogs.SpecialtyUtility:
			p.run(b, "consume", behaviors[b.Def.Specialty].consume, env)
		}
	}

	// 9. Publish what changed since the last publication.
	var changed []state.BuildingSnapshot
	for _, b := range buildings {
		if b.EnergyShortage {
			res.Shortages++
		}
		snap := b.Snapshot()
		if last, ok := p.lastKnown[b.ID]; ok && last.SameContents(snap) {
			continue
		}
		p.lastKnown[b.ID] = snap
		changed = append(changed, snap)
	}
	if len(changed) > 0 {
		if p.opt.BatchUpdates {
			reg.state.BatchUpdate(p.tick, changed)
		} else {
			for _, s := range changed {
				reg.state.UpdateBuilding(p.tick, s)
			}
		}
	}
	res.Published = len(changed)

	// 10.
	if p.opt.MemoryOptimization && p.opt.CacheInvalidationInterval > 0 && p.tick%uint64(p.opt.CacheInvalidationInterval) == 0 {
		p.lastKnown = map[string]state.BuildingSnapshot{}
		reg.conns.Invalidate()
	}

	res.Buildings = len(buildings)
	res.Duration = time.Since(start)
	return res
}

func (p *TickProcessor) needsRebuild(conns []graph.Connection) bool {
	if !p.opt.ConnectionChangeDetection {
		return true
	}
	if p.reg.Version() != p.lastVersion || p.reg.conns.Len() != p.reg.Slots() {
		return true
	}
	return p.reg.conns.Hash() != graph.Hash(conns)
}

// bindSuppliers points every building at its live suppliers, ordered by
// supplier registration so the result does not depend on connection order.
func (p *TickProcessor) bindSuppliers(conns []graph.Connection) {
	reg := p.reg
	if p.opt.SupplierCache {
		reg.suppliers.Rebuild(reg.conns)
	} else {
		reg.suppliers.Clear()
	}
	for _, b := range reg.All() {
		var material, energy []graph.Link
		if p.opt.SupplierCache {
			material, energy = reg.suppliers.Suppliers(b.index)
		} else {
			material, energy = graph.ScanSuppliers(conns, b.index, reg.Resolve)
		}
		b.suppliers = p.bind(material)
		b.energySuppliers = p.bind(energy)
	}
}

func (p *TickProcessor) bind(links []graph.Link) []supplier {
	out := make([]supplier, 0, len(links))
	for _, l := range links {
		if s := p.reg.At(l.Index); s != nil {
			out = append(out, supplier{b: s, port: l.Port})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].b.seq != out[j].b.seq {
			return out[i].b.seq < out[j].b.seq
		}
		return out[i].port < out[j].port
	})
	return out
}

// run executes one phase of one building. A panic is logged and the building
// skipped so the tick always completes.
func (p *TickProcessor) run(b *Building, phase string, fn phaseFunc, env *tickEnv) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("tick %d: %s %s (%s) failed: %v", p.tick, phase, b.ID, b.Type, r)
		}
	}()
	fn(b, env)
}

func (p *TickProcessor) check(b *Building, phase string, fn func(*Building) bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("tick %d: %s %s (%s) failed: %v", p.tick, phase, b.ID, b.Type, r)
			ok = false
		}
	}()
	return fn(b)
}
