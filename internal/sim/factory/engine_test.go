package factory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"factorycraft.ai/internal/persistence/snapshot"
	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory/geom"
	"factorycraft.ai/internal/sim/factory/graph"
	"factorycraft.ai/internal/sim/tuning"
)

type recorder struct {
	ticks    []TickResult
	failures int
	logged   []TickLogEntry
	audits   []AuditEntry
}

func (r *recorder) ObserveTick(res TickResult)     { r.ticks = append(r.ticks, res) }
func (r *recorder) ConstructionFailed()            { r.failures++ }
func (r *recorder) WriteTick(e TickLogEntry) error { r.logged = append(r.logged, e); return nil }
func (r *recorder) WriteAudit(a AuditEntry) error  { r.audits = append(r.audits, a); return nil }
func (r *recorder) last() TickResult               { return r.ticks[len(r.ticks)-1] }

func (r *recorder) actions() (out []string) {
	for _, a := range r.audits {
		out = append(out, a.Action)
	}
	return out
}

func newRecordedEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	tun := tuning.Defaults()
	tun.StartingResources = map[string]int{"coal": 100}
	e, err := NewEngine(Config{Tuning: tun, Observer: rec, TickLogger: rec, AuditLogger: rec})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, rec
}

func TestNewEngineRejectsInvalidTuning(t *testing.T) {
	tun := tuning.Defaults()
	tun.TickRateHz = 0
	if _, err := NewEngine(Config{Tuning: tun}); err == nil {
		t.Fatalf("expected tuning validation error")
	}
}

func TestConstructionErrorsDoNotStopTheLayout(t *testing.T) {
	e, rec := newRecordedEngine(t)
	l := minerLayout()
	l.Placements = append(l.Placements, place("tp", catalogs.BuildingType("teleporter"), 0, 0, nil))

	_, errs := e.ApplyLayout(l)
	if len(errs) != 1 {
		t.Fatalf("errs=%v, want exactly one", errs)
	}
	var ce *ConstructionError
	if !errors.As(errs[0], &ce) || ce.ID != "tp" {
		t.Fatalf("err=%v, want *ConstructionError for tp", errs[0])
	}
	if !errors.Is(errs[0], catalogs.ErrUnknownBuildingType) {
		t.Fatalf("err=%v does not wrap ErrUnknownBuildingType", errs[0])
	}
	if rec.failures != 1 {
		t.Fatalf("observer failures=%d, want 1", rec.failures)
	}

	e.StepOnce()
	if got := invOf(t, e, "store"); got[catalogs.IronOre] != 2 {
		t.Fatalf("valid buildings did not run: store=%v", got)
	}
	if _, ok := e.Building("tp"); ok {
		t.Fatalf("failed building was registered")
	}
}

func TestRegisterRejectsDuplicateAndEmptyIDs(t *testing.T) {
	e := newTestEngine(t, nil)
	if _, err := e.Register(place("x", catalogs.TypeStorage, 0, 0, nil)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := e.Register(place("x", catalogs.TypeStorage, 50, 0, nil))
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err=%v, want ErrDuplicateID", err)
	}
	if _, err := e.reg.Register(place("", catalogs.TypeStorage, 0, 0, nil)); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("err=%v, want ErrEmptyID", err)
	}
	b, err := e.Register(place("", catalogs.TypeStorage, 0, 0, nil))
	if err != nil || !strings.HasPrefix(b.ID, "b_") {
		t.Fatalf("engine did not assign an id: %v %v", b, err)
	}
}

func TestDanglingConnectionsAreSkippedAndCounted(t *testing.T) {
	e, rec := newRecordedEngine(t)
	l := minerLayout()
	l.Connections = append(l.Connections,
		input("ghost", "store"),
		input("store", "store"),
		graph.Connection{Source: "miner", Target: "store", TargetPort: "fuel"},
	)
	mustApply(t, e, l)
	e.StepOnce()
	if got := rec.last().Dangling; got != 3 {
		t.Fatalf("dangling=%d, want 3", got)
	}
	if got := invOf(t, e, "store"); got[catalogs.IronOre] != 2 {
		t.Fatalf("store=%v", got)
	}
}

func TestEnergyShortageBlocksConversion(t *testing.T) {
	e, rec := newRecordedEngine(t)
	mustApply(t, e, Layout{
		Placements: []Placement{
			place("ore", catalogs.TypeStorage, 0, 0, counts{catalogs.IronOre: 4}),
			place("smelter", catalogs.TypeSmelter, 100, 0, nil),
			place("out", catalogs.TypeStorage, 200, 0, nil),
		},
		Connections: []graph.Connection{input("ore", "smelter"), input("smelter", "out")},
	})
	e.StepOnce()
	sm, _ := e.Building("smelter")
	if !sm.EnergyShortage {
		t.Fatalf("smelter without power should report a shortage")
	}
	if got := sm.Inv.Snapshot(); !sameCounts(got, counts{catalogs.IronOre: 2}) {
		t.Fatalf("smelter=%v, want the pulled ore unconverted", got)
	}
	if rec.last().Shortages != 1 {
		t.Fatalf("shortages=%d, want 1", rec.last().Shortages)
	}
	snap, _ := e.State().Building("smelter")
	if !snap.EnergyShortage {
		t.Fatalf("shortage flag not published")
	}
}

func TestMinerStopsWhenMovedOffField(t *testing.T) {
	e := newTestEngine(t, nil)
	l := minerLayout()
	mustApply(t, e, l)
	e.StepOnce()

	l.Placements[1].Position = geom.Vec2{X: 1000, Y: 1000}
	mustApply(t, e, l)
	e.StepOnce()
	e.StepOnce()
	if got := invOf(t, e, "store"); got[catalogs.IronOre] != 2 {
		t.Fatalf("store=%v, want production to stop after the move", got)
	}
	ids := e.Nearby(geom.Vec2{X: 1020, Y: 1020}, 10)
	if len(ids) != 1 || ids[0] != "miner" {
		t.Fatalf("nearby=%v, want miner at its new position", ids)
	}
}

func TestMinerGating(t *testing.T) {
	cases := []struct {
		name      string
		miner     counts
		conns     []graph.Connection
		wantMiner counts
		wantStore counts
		shortage  bool
	}{
		{
			name:      "powered",
			conns:     []graph.Connection{input("miner", "store"), energy("plant", "miner")},
			wantStore: counts{catalogs.IronOre: 2},
		},
		{
			name:      "unpowered",
			conns:     []graph.Connection{input("miner", "store")},
			wantStore: counts{},
			shortage:  true,
		},
		{
			name:      "no outgoing connection",
			conns:     []graph.Connection{energy("plant", "miner")},
			wantStore: counts{},
		},
		{
			// The hold splitter has no outputs, so it never pulls.
			name:      "full inventory",
			miner:     counts{catalogs.IronOre: 10},
			conns:     []graph.Connection{input("miner", "hold"), energy("plant", "miner")},
			wantMiner: counts{catalogs.IronOre: 10},
			wantStore: counts{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, nil)
			mustApply(t, e, Layout{
				Placements: []Placement{
					place("plant", catalogs.TypeCoalPowerPlant, 200, 0, nil),
					place("miner", catalogs.TypeIronMiner, 0, 0, tc.miner),
					place("store", catalogs.TypeStorage, 100, 0, nil),
					place("hold", catalogs.TypeSplitter, 100, 100, nil),
				},
				Connections:    tc.conns,
				ResourceFields: []ResourceField{field(catalogs.IronOre, 0, 0, 100, 100)},
			})
			e.StepOnce()

			m, _ := e.Building("miner")
			if m.EnergyShortage != tc.shortage {
				t.Fatalf("energy shortage=%v, want %v", m.EnergyShortage, tc.shortage)
			}
			if got := invOf(t, e, "miner"); !sameCounts(got, tc.wantMiner) {
				t.Fatalf("miner=%v, want %v", got, tc.wantMiner)
			}
			if got := invOf(t, e, "store"); !sameCounts(got, tc.wantStore) {
				t.Fatalf("store=%v, want %v", got, tc.wantStore)
			}
			if m.Inv.Total() > m.Inv.Capacity() {
				t.Fatalf("miner holds %d > capacity %d", m.Inv.Total(), m.Inv.Capacity())
			}
		})
	}
}

func TestFactoryKeepsStagedInputs(t *testing.T) {
	e := newTestEngine(t, nil)
	mustApply(t, e, Layout{
		Placements: []Placement{
			place("smelter", catalogs.TypeSmelter, 0, 0, counts{catalogs.IronOre: 2, catalogs.IronPlate: 1}),
		},
	})
	b, _ := e.Building("smelter")

	if got := b.PullResource(catalogs.IronOre, 2); got != 0 {
		t.Fatalf("pulled %d staged iron-ore, want 0", got)
	}
	if k, got := b.PullAnyResource(5); k != catalogs.IronPlate || got != 1 {
		t.Fatalf("PullAnyResource=(%s,%d), want (iron-plate,1)", k, got)
	}
	if k, got := b.PullAnyResource(5); got != 0 {
		t.Fatalf("PullAnyResource=(%s,%d) with only staged inputs left", k, got)
	}
	if got := b.PullResource(catalogs.IronPlate, 1); got != 0 {
		t.Fatalf("pulled %d iron-plate from an empty output", got)
	}
	if got := invOf(t, e, "smelter"); !sameCounts(got, counts{catalogs.IronOre: 2}) {
		t.Fatalf("smelter=%v, want iron-ore:2 left", got)
	}
}

func TestApplyLayoutAssignsIDsAndReplacesRetypedBuildings(t *testing.T) {
	e, rec := newRecordedEngine(t)
	resolved, errs := e.ApplyLayout(Layout{
		Placements: []Placement{
			{Type: catalogs.TypeStorage, Position: geom.Vec2{X: 0, Y: 0}},
			place("keep", catalogs.TypeStorage, 100, 0, counts{catalogs.Stone: 3}),
		},
	})
	if len(errs) > 0 {
		t.Fatalf("errs=%v", errs)
	}
	newID := resolved.Placements[0].ID
	if !strings.HasPrefix(newID, "b_") {
		t.Fatalf("assigned id=%q", newID)
	}
	if _, ok := e.Building(newID); !ok {
		t.Fatalf("assigned id not registered")
	}

	_, errs = e.ApplyLayout(Layout{
		Placements: []Placement{place("keep", catalogs.TypeSplitter, 100, 0, nil)},
	})
	if len(errs) > 0 {
		t.Fatalf("errs=%v", errs)
	}
	b, _ := e.Building("keep")
	if b.Type != catalogs.TypeSplitter || b.Inv.Total() != 0 {
		t.Fatalf("keep=%s %v, want a fresh splitter", b.Type, b.Inv.Snapshot())
	}
	if _, ok := e.Building(newID); ok {
		t.Fatalf("building missing from the layout was not removed")
	}
	want := []string{"register", "register", "unregister", "register"}
	if got := rec.actions(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("audit=%v, want %v", got, want)
	}
}

func TestSaveRoundTripContinuesIdentically(t *testing.T) {
	a := newTestEngine(t, nil)
	l := minerLayout()
	l.Placements = append(l.Placements,
		place("split", catalogs.TypeSplitter, 300, 0, nil),
		place("left", catalogs.TypeStorage, 400, 0, nil),
	)
	l.Connections = append(l.Connections,
		input("store", "split"),
		fromPort("split", 0, "left"),
	)
	l.Viewport = &Viewport{X: 10, Y: 20, Zoom: 2}
	mustApply(t, a, l)
	for i := 0; i < 3; i++ {
		a.StepOnce()
	}

	path := filepath.Join(t.TempDir(), "save.zst")
	if err := snapshot.WriteSave(path, a.ExportSave("s1")); err != nil {
		t.Fatalf("WriteSave: %v", err)
	}
	save, err := snapshot.ReadSave(path)
	if err != nil {
		t.Fatalf("ReadSave: %v", err)
	}
	if save.Header.SaveID != "s1" || save.Header.Tick != 3 {
		t.Fatalf("header=%+v", save.Header)
	}

	b := newTestEngine(t, nil)
	if err := b.Restore(save); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if a.StateDigest() != b.StateDigest() {
		t.Fatalf("restored digest differs")
	}
	if b.viewport != *l.Viewport {
		t.Fatalf("viewport=%+v", b.viewport)
	}
	for i := 0; i < 5; i++ {
		ta, da := a.StepOnce()
		tb, db := b.StepOnce()
		if ta != tb || da != db {
			t.Fatalf("tick %d diverged after restore", ta)
		}
	}

	c := newTestEngine(t, nil)
	tick, digest, err := c.ImportSave(save)
	if err != nil {
		t.Fatalf("ImportSave: %v", err)
	}
	if tick != 4 {
		t.Fatalf("ImportSave tick=%d, want 4", tick)
	}
	if digest == "" || c.CurrentTick() != 4 {
		t.Fatalf("ImportSave did not step")
	}
}

func TestImportSaveRejectsUnknownVersion(t *testing.T) {
	e := newTestEngine(t, nil)
	mustApply(t, e, minerLayout())
	save := e.ExportSave("")
	if save.Header.SaveID == "" {
		t.Fatalf("export did not assign a save id")
	}
	save.Header.Version = 99
	if _, _, err := e.ImportSave(save); err == nil {
		t.Fatalf("expected version error")
	}
	if e.CurrentTick() != 0 {
		t.Fatalf("rejected import must not tick")
	}
	if _, ok := e.Building("miner"); !ok {
		t.Fatalf("rejected import must not clear the map")
	}
}

func TestRestoreReportsBadEntriesAndLoadsTheRest(t *testing.T) {
	e := newTestEngine(t, nil)
	save := snapshot.SaveV1{
		Header: snapshot.Header{Version: snapshot.Version, SaveID: "partial", Tick: 7},
		Buildings: []snapshot.BuildingV1{
			{ID: "s", Type: string(catalogs.TypeStorage), Inventory: map[string]int{"stone": 4, "unobtainium": 1}},
			{ID: "t", Type: "teleporter"},
		},
		Connections: []snapshot.ConnectionV1{{Source: "s", Target: "s", TargetPort: "input", SourcePort: "output-99"}},
	}
	err := e.Restore(save)
	if err == nil {
		t.Fatalf("expected joined errors")
	}
	for _, want := range []string{"unobtainium", "teleporter", "output-99"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
	if got := invOf(t, e, "s"); !sameCounts(got, counts{catalogs.Stone: 4}) {
		t.Fatalf("s=%v", got)
	}
	if e.CurrentTick() != 7 || e.State().TickCount() != 7 {
		t.Fatalf("tick not restored")
	}
}

func TestReplayFromTickLog(t *testing.T) {
	a, rec := newRecordedEngine(t)
	l := minerLayout()
	mustApply(t, a, l)
	for i := 0; i < 3; i++ {
		a.StepOnce()
	}
	l.Placements = append(l.Placements, place("smelter", catalogs.TypeSmelter, 300, 0, nil))
	l.Connections = append(l.Connections, input("store", "smelter"), energy("plant", "smelter"))
	mustApply(t, a, l)
	for i := 0; i < 4; i++ {
		a.StepOnce()
	}

	if len(rec.logged) != 7 || rec.logged[0].Layout == nil || rec.logged[1].Layout != nil || rec.logged[3].Layout == nil {
		t.Fatalf("unexpected tick log shape")
	}
	b := newTestEngine(t, nil)
	for _, entry := range rec.logged {
		if entry.Layout != nil {
			b.ApplyLayout(*entry.Layout)
		}
		tick, digest := b.StepOnce()
		if tick != entry.Tick || digest != entry.Digest {
			t.Fatalf("replay diverged at tick %d", entry.Tick)
		}
	}
}

func TestPanickingPhaseDoesNotAbortTick(t *testing.T) {
	saved := behaviors[catalogs.SpecialtyStorage]
	behaviors[catalogs.SpecialtyStorage] = behavior{pull: func(*Building, *tickEnv) { panic("boom") }}
	t.Cleanup(func() { behaviors[catalogs.SpecialtyStorage] = saved })

	e := newTestEngine(t, nil)
	mustApply(t, e, minerLayout())
	e.StepOnce()
	if got := invOf(t, e, "miner"); got[catalogs.IronOre] != 2 {
		t.Fatalf("miner=%v, want production despite the panicking storage", got)
	}
	if e.CurrentTick() != 1 {
		t.Fatalf("tick=%d", e.CurrentTick())
	}
}

func TestSnapshotSinkReceivesPeriodicSaves(t *testing.T) {
	sink := make(chan snapshot.SaveV1, 1)
	tun := tuning.Defaults()
	tun.SnapshotEveryTicks = 2
	e, err := NewEngine(Config{Tuning: tun, SnapshotSink: sink})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	mustApply(t, e, minerLayout())
	e.StepOnce()
	select {
	case <-sink:
		t.Fatalf("save emitted off schedule")
	default:
	}
	e.StepOnce()
	e.StepOnce()
	e.StepOnce() // sink full, dropped
	s := <-sink
	if s.Header.Tick != 2 || len(s.Buildings) != 3 {
		t.Fatalf("save header=%+v buildings=%d", s.Header, len(s.Buildings))
	}
}

func TestRunAppliesSubmittedLayoutAtTickBoundary(t *testing.T) {
	tun := tuning.Defaults()
	tun.TickRateHz = 50
	tun.StartingResources = map[string]int{"coal": 100}
	e, err := NewEngine(Config{Tuning: tun})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	e.SubmitLayout(Layout{Placements: []Placement{place("early", catalogs.TypeStorage, 0, 0, nil)}})
	e.SubmitLayout(minerLayout())

	deadline := time.Now().Add(3 * time.Second)
	for {
		if b, ok := e.State().Building("store"); ok && b.Inventory[catalogs.IronOre] > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("layout never took effect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	e.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := e.State().Building("early"); ok {
		t.Fatalf("superseded layout was applied")
	}
}
