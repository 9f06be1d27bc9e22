package log

import (
	"path/filepath"
	"testing"

	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory"
	"factorycraft.ai/internal/sim/factory/geom"
	"factorycraft.ai/internal/sim/factory/graph"
)

func TestTickLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	layout := &factory.Layout{
		Placements: []factory.Placement{{
			ID:        "m1",
			Type:      catalogs.TypeIronMiner,
			Position:  geom.Vec2{X: 1, Y: 2},
			Inventory: map[catalogs.ResourceKind]int{catalogs.IronOre: 3},
		}},
		Connections: []graph.Connection{{
			Source:     "s1",
			Target:     "m1",
			TargetPort: graph.PortInput,
			SourcePort: graph.SourcePort{Indexed: true, Index: 1},
		}},
		GlobalInventory: map[catalogs.ResourceKind]int{catalogs.Coal: 9},
	}
	for tick := uint64(1); tick <= 3; tick++ {
		e := factory.TickLogEntry{Tick: tick, Digest: "d", Buildings: 1}
		if tick == 1 {
			e.Layout = layout
		}
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, "events"), "events")
	if err != nil || len(files) != 1 {
		t.Fatalf("ListFiles: %v %v", files, err)
	}
	var got []factory.TickLogEntry
	if err := ReadTicks(files[0], func(e factory.TickLogEntry) bool {
		got = append(got, e)
		return true
	}); err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if len(got) != 3 || got[2].Tick != 3 {
		t.Fatalf("entries=%+v", got)
	}
	if got[0].Layout == nil || got[1].Layout != nil {
		t.Fatalf("layout not carried on the first entry only")
	}
	p := got[0].Layout.Placements[0]
	if p.Inventory[catalogs.IronOre] != 3 || got[0].Layout.GlobalInventory[catalogs.Coal] != 9 {
		t.Fatalf("layout contents lost: %+v", got[0].Layout)
	}
	if sp := got[0].Layout.Connections[0].SourcePort; !sp.Indexed || sp.Index != 1 {
		t.Fatalf("source port=%+v", sp)
	}
}

func TestReadTicksStopsEarly(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for tick := uint64(1); tick <= 5; tick++ {
		_ = l.WriteTick(factory.TickLogEntry{Tick: tick})
	}
	_ = l.Close()
	files, _ := ListFiles(filepath.Join(dir, "events"), "events")
	n := 0
	if err := ReadTicks(files[0], func(e factory.TickLogEntry) bool {
		n++
		return e.Tick < 2
	}); err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if n != 2 {
		t.Fatalf("visited %d entries, want 2", n)
	}
}

func TestAuditLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	_ = l.WriteAudit(factory.AuditEntry{Tick: 4, Action: "register", BuildingID: "b1", Type: catalogs.TypeStorage})
	_ = l.WriteAudit(factory.AuditEntry{Tick: 5, Action: "construction_failed", BuildingID: "b2", Reason: "unknown"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	files, err := ListFiles(filepath.Join(dir, "audit"), "audit")
	if err != nil || len(files) != 1 {
		t.Fatalf("ListFiles: %v %v", files, err)
	}
	var actions []string
	if err := ReadAudit(files[0], func(a factory.AuditEntry) bool {
		actions = append(actions, a.Action)
		return true
	}); err != nil {
		t.Fatalf("ReadAudit: %v", err)
	}
	if len(actions) != 2 || actions[1] != "construction_failed" {
		t.Fatalf("actions=%v", actions)
	}
}

func TestListFilesIgnoresOtherPrefixes(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "events")
	_ = w.Write(map[string]int{"a": 1})
	_ = w.Close()
	a := NewJSONLZstdWriter(dir, "audit")
	_ = a.Write(map[string]int{"b": 2})
	_ = a.Close()

	files, err := ListFiles(dir, "events")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0])[:7] != "events-" {
		t.Fatalf("files=%v", files)
	}
}
