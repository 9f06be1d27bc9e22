package state

import (
	"testing"

	"factorycraft.ai/internal/sim/catalogs"
)

func TestStore_NotificationsAndCopies(t *testing.T) {
	s := NewStore()
	var got []Change
	unsub := s.Subscribe(func(c Change) { got = append(got, c) })

	s.AddBuilding(BuildingSnapshot{ID: "m1", Type: catalogs.TypeIronMiner, Inventory: map[catalogs.ResourceKind]int{}})
	s.BatchUpdate(3, []BuildingSnapshot{
		{ID: "m1", Inventory: map[catalogs.ResourceKind]int{catalogs.IronOre: 2}},
		{ID: "ghost", Inventory: map[catalogs.ResourceKind]int{catalogs.Coal: 1}},
	})
	s.UpdateBuilding(4, BuildingSnapshot{ID: "m1", Inventory: map[catalogs.ResourceKind]int{catalogs.IronOre: 4}, EnergyShortage: true})
	if !s.RemoveBuilding("m1") || s.RemoveBuilding("m1") {
		t.Fatalf("RemoveBuilding bookkeeping wrong")
	}

	want := []ChangeType{BuildingCreated, BatchUpdate, InventoryUpdated, BuildingDestroyed}
	if len(got) != len(want) {
		t.Fatalf("changes=%d, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.Type != want[i] {
			t.Fatalf("change[%d]=%s, want %s", i, c.Type, want[i])
		}
	}
	if len(got[1].Batch) != 1 || got[1].Batch[0].Inventory[catalogs.IronOre] != 2 || got[1].Tick != 3 {
		t.Fatalf("batch=%+v", got[1])
	}
	if got[2].Changes == nil || !got[2].Changes.EnergyShortage {
		t.Fatalf("update=%+v", got[2])
	}
	if s.TickCount() != 4 || s.Len() != 0 {
		t.Fatalf("tick=%d len=%d", s.TickCount(), s.Len())
	}

	unsub()
	s.AddBuilding(BuildingSnapshot{ID: "x"})
	if len(got) != 4 {
		t.Fatalf("listener called after unsubscribe")
	}
}

func TestStore_SnapshotIsDeepCopy(t *testing.T) {
	s := NewStore()
	s.AddBuilding(BuildingSnapshot{
		ID:        "sp",
		Inventory: map[catalogs.ResourceKind]int{catalogs.Stone: 2},
		Ports:     []map[catalogs.ResourceKind]int{{catalogs.Stone: 1}},
	})
	v := s.Snapshot()
	v.Buildings["sp"].Inventory[catalogs.Stone] = 99
	v.Buildings["sp"].Ports[0][catalogs.Stone] = 99

	b, ok := s.Building("sp")
	if !ok || b.Inventory[catalogs.Stone] != 2 || b.Ports[0][catalogs.Stone] != 1 {
		t.Fatalf("store mutated through snapshot: %+v", b)
	}
	if ids := v.IDs(); len(ids) != 1 || ids[0] != "sp" {
		t.Fatalf("ids=%v", ids)
	}
}

func TestSameContents(t *testing.T) {
	a := BuildingSnapshot{ID: "a", Inventory: map[catalogs.ResourceKind]int{catalogs.Coal: 1}}
	b := a.Clone()
	if !a.SameContents(b) {
		t.Fatalf("clone differs")
	}
	b.Inventory[catalogs.Coal] = 2
	if a.SameContents(b) {
		t.Fatalf("inventory change missed")
	}
	c := a.Clone()
	c.EnergyShortage = true
	if a.SameContents(c) {
		t.Fatalf("shortage change missed")
	}
}
