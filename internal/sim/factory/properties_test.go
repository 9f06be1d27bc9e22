package factory

import (
	"fmt"
	"testing"

	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory/graph"
	"factorycraft.ai/internal/sim/factory/state"
	"factorycraft.ai/internal/sim/tuning"
)

// bigLayout wires n independent production chains plus one shared splitter,
// enough to exercise every specialty and the parallel miner path.
func bigLayout(n int) Layout {
	l := Layout{
		GlobalInventory: counts{catalogs.Coal: 1000},
		StorageCapacity: 1000,
	}
	for i := 0; i < n; i++ {
		x := float64(i) * 500
		id := func(s string) string { return fmt.Sprintf("%s-%d", s, i) }
		l.Placements = append(l.Placements,
			place(id("plant"), catalogs.TypeCoalPowerPlant, x, 300, nil),
			place(id("plant2"), catalogs.TypeCoalPowerPlant, x+100, 300, nil),
			place(id("iron"), catalogs.TypeIronMiner, x, 0, nil),
			place(id("copper"), catalogs.TypeCopperMiner, x+100, 0, nil),
			place(id("smelter"), catalogs.TypeSmelter, x, 100, nil),
			place(id("gears"), catalogs.TypeAssembler, x, 200, nil),
			place(id("split"), catalogs.TypeSplitter, x+100, 100, nil),
			place(id("a"), catalogs.TypeStorage, x+200, 100, nil),
			place(id("b"), catalogs.TypeStorage, x+200, 200, nil),
			place(id("sink"), catalogs.TypeStorage, x, 400, nil),
		)
		l.Connections = append(l.Connections,
			energy(id("plant"), id("iron")),
			energy(id("plant"), id("copper")),
			energy(id("plant"), id("smelter")),
			energy(id("plant2"), id("gears")),
			input(id("iron"), id("smelter")),
			input(id("smelter"), id("gears")),
			input(id("gears"), id("sink")),
			input(id("copper"), id("split")),
			fromPort(id("split"), 0, id("a")),
			fromPort(id("split"), 1, id("b")),
		)
		l.ResourceFields = append(l.ResourceFields,
			field(catalogs.IronOre, x, 0, 50, 50),
			field(catalogs.CopperOre, x+100, 0, 50, 50),
		)
	}
	return l
}

func TestInventoriesStayWithinBounds(t *testing.T) {
	e := newTestEngine(t, nil)
	mustApply(t, e, bigLayout(3))
	for i := 0; i < 60; i++ {
		e.StepOnce()
		for _, b := range e.reg.All() {
			if b.Inv.Total() > b.Inv.Capacity() {
				t.Fatalf("tick %d: %s holds %d > capacity %d", i+1, b.ID, b.Inv.Total(), b.Inv.Capacity())
			}
			for k := catalogs.ResourceKind(0); int(k) < catalogs.NumKinds; k++ {
				if b.Inv.Get(k) < 0 {
					t.Fatalf("tick %d: %s has negative %s", i+1, b.ID, k)
				}
			}
		}
	}
	if got := invOf(t, e, "sink-0")[catalogs.IronGear]; got == 0 {
		t.Fatalf("gear chain never produced anything")
	}
}

func TestEmptyEngineTickIsNoop(t *testing.T) {
	e := newTestEngine(t, nil)
	var notified int
	e.State().Subscribe(func(state.Change) { notified++ })
	global := e.Global().Snapshot()
	for i := 0; i < 10; i++ {
		e.StepOnce()
	}
	if notified != 0 {
		t.Fatalf("notifications=%d, want 0", notified)
	}
	if got := e.State().Snapshot(); len(got.Buildings) != 0 || got.Tick != 0 {
		t.Fatalf("state=%+v, want empty at tick 0", got)
	}
	if !sameCounts(e.Global().Snapshot(), global) {
		t.Fatalf("global stock changed on an empty map")
	}
	if e.CurrentTick() != 10 {
		t.Fatalf("tick=%d, want 10", e.CurrentTick())
	}
}

func TestDeterministicDigests(t *testing.T) {
	a := newTestEngine(t, nil)
	b := newTestEngine(t, nil)
	mustApply(t, a, bigLayout(2))
	mustApply(t, b, bigLayout(2))
	for i := 0; i < 40; i++ {
		ta, da := a.StepOnce()
		tb, db := b.StepOnce()
		if ta != tb || da != db {
			t.Fatalf("tick %d diverged: %s vs %s", ta, da, db)
		}
	}
}

func TestOptimizationTogglesDoNotChangeResults(t *testing.T) {
	run := func(t *testing.T, opt tuning.Optimization) string {
		t.Helper()
		e := newTestEngine(t, func(tu *tuning.Tuning) { tu.Optimization = opt })
		l := bigLayout(3)
		// Rewiring a-b->c into a->b-c keeps the concatenated ids identical.
		l.Placements = append(l.Placements,
			place("a", catalogs.TypeStorage, 5000, 0, counts{catalogs.Stone: 50}),
			place("a-b", catalogs.TypeStorage, 5100, 0, counts{catalogs.IronOre: 50}),
			place("c", catalogs.TypeStorage, 5200, 0, nil),
			place("b-c", catalogs.TypeStorage, 5300, 0, nil),
		)
		l.Connections = append(l.Connections, input("a-b", "c"))
		mustApply(t, e, l)
		var d string
		for i := 0; i < 15; i++ {
			_, d = e.StepOnce()
		}
		rewired := append([]graph.Connection(nil), l.Connections[:len(l.Connections)-1]...)
		e.SetConnections(append(rewired, input("a", "b-c")))
		for i := 0; i < 15; i++ {
			_, d = e.StepOnce()
		}
		if got := invOf(t, e, "b-c"); got[catalogs.Stone] != 50 {
			t.Fatalf("b-c=%v after rewiring, want stone:50", got)
		}
		return d
	}
	want := run(t, tuning.DefaultOptimization())

	cases := map[string]func(*tuning.Optimization){
		"no change detection": func(o *tuning.Optimization) { o.ConnectionChangeDetection = false },
		"no supplier cache":   func(o *tuning.Optimization) { o.SupplierCache = false },
		"no batching":         func(o *tuning.Optimization) { o.BatchUpdates = false },
		"sequential":          func(o *tuning.Optimization) { o.ParallelProcessing = false },
		"concurrency 1":       func(o *tuning.Optimization) { o.MaxConcurrency = 1 },
		"no memory opt":       func(o *tuning.Optimization) { o.MemoryOptimization = false },
		"invalidate often": func(o *tuning.Optimization) {
			o.CacheInvalidationInterval = 3
		},
		"all off": func(o *tuning.Optimization) {
			o.ConnectionChangeDetection = false
			o.SupplierCache = false
			o.BatchUpdates = false
			o.ParallelProcessing = false
			o.MemoryOptimization = false
		},
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			opt := tuning.DefaultOptimization()
			mut(&opt)
			if got := run(t, opt); got != want {
				t.Fatalf("digest %s, want %s", got, want)
			}
		})
	}
}

func TestCompetingConsumersFirstComeOrder(t *testing.T) {
	run := func(first, second string) (int, int) {
		e := newTestEngine(t, nil)
		mustApply(t, e, Layout{
			Placements: []Placement{
				place("ore", catalogs.TypeStorage, 0, 0, counts{catalogs.IronOre: 3}),
				place(first, catalogs.TypeSmelter, 100, 0, nil),
				place(second, catalogs.TypeSmelter, 100, 100, nil),
			},
			// Connection order deliberately lists the later consumer first.
			Connections: []graph.Connection{
				input("ore", second),
				input("ore", first),
			},
		})
		e.StepOnce()
		return invOf(t, e, "s1")[catalogs.IronOre], invOf(t, e, "s2")[catalogs.IronOre]
	}
	if s1, s2 := run("s1", "s2"); s1 != 2 || s2 != 1 {
		t.Fatalf("s1 first: s1=%d s2=%d, want 2 and 1", s1, s2)
	}
	if s1, s2 := run("s2", "s1"); s1 != 1 || s2 != 2 {
		t.Fatalf("s2 first: s1=%d s2=%d, want 1 and 2", s1, s2)
	}
}

func TestBatchedAndIndividualPublication(t *testing.T) {
	for _, batch := range []bool{true, false} {
		e := newTestEngine(t, func(tu *tuning.Tuning) { tu.Optimization.BatchUpdates = batch })
		mustApply(t, e, minerLayout())
		seen := map[state.ChangeType]int{}
		e.State().Subscribe(func(c state.Change) { seen[c.Type]++ })
		e.StepOnce()
		if batch && (seen[state.BatchUpdate] != 1 || seen[state.InventoryUpdated] != 0) {
			t.Fatalf("batched: %v", seen)
		}
		if !batch && (seen[state.BatchUpdate] != 0 || seen[state.InventoryUpdated] == 0) {
			t.Fatalf("individual: %v", seen)
		}
		if got := e.State().TickCount(); got != 1 {
			t.Fatalf("state tick=%d, want 1", got)
		}
		snap, ok := e.State().Building("store")
		if !ok || snap.Inventory[catalogs.IronOre] != 2 {
			t.Fatalf("published store=%+v", snap)
		}
	}
}

func TestUnchangedBuildingsAreNotRepublished(t *testing.T) {
	e := newTestEngine(t, nil)
	mustApply(t, e, Layout{
		Placements: []Placement{place("idle", catalogs.TypeStorage, 0, 0, counts{catalogs.Stone: 1})},
	})
	var updates int
	e.State().Subscribe(func(c state.Change) {
		if c.Type == state.BatchUpdate {
			updates++
		}
	})
	e.StepOnce()
	e.StepOnce()
	e.StepOnce()
	if updates != 1 {
		t.Fatalf("batch updates=%d, want only the first tick", updates)
	}
}
