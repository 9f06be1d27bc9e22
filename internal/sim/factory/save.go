package factory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"factorycraft.ai/internal/persistence/snapshot"
	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory/geom"
	"factorycraft.ai/internal/sim/factory/graph"
)

// ExportSave captures the engine at the current tick. An empty saveID gets a fresh uuid.
func (e *Engine) ExportSave(saveID string) snapshot.SaveV1 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exportLocked(saveID)
}

func (e *Engine) exportLocked(saveID string) snapshot.SaveV1 {
	if saveID == "" {
		saveID = uuid.NewString()
	}
	s := snapshot.SaveV1{
		Header: snapshot.Header{
			Version:       snapshot.Version,
			SaveID:        saveID,
			Tick:          e.proc.CurrentTick(),
			CatalogDigest: e.cats.Buildings.Digest,
			SavedAtUnix:   time.Now().Unix(),
		},
		TickRate:        e.tun.TickRateHz,
		GlobalInventory: kindsToNames(e.global.Snapshot()),
		StorageCapacity: e.global.Capacity(),
		Viewport:        snapshot.ViewportV1{X: e.viewport.X, Y: e.viewport.Y, Zoom: e.viewport.Zoom},
	}
	for _, b := range e.reg.All() {
		bv := snapshot.BuildingV1{
			ID:             b.ID,
			Type:           string(b.Type),
			Pos:            [2]float64{b.Position.X, b.Position.Y},
			Inventory:      kindsToNames(b.Inv.Snapshot()),
			EnergyShortage: b.EnergyShortage,
		}
		for _, m := range b.Inv.PortSnapshot() {
			bv.Ports = append(bv.Ports, kindsToNames(m))
		}
		s.Buildings = append(s.Buildings, bv)
	}
	for _, c := range e.conns {
		s.Connections = append(s.Connections, snapshot.ConnectionV1{
			Source:     c.Source,
			Target:     c.Target,
			TargetPort: string(c.TargetPort),
			SourcePort: c.SourcePort.String(),
		})
	}
	for _, f := range e.fields {
		s.ResourceFields = append(s.ResourceFields, snapshot.ResourceFieldV1{
			ID:        f.ID,
			Kind:      f.Kind.String(),
			Rect:      [4]float64{f.Rect.X, f.Rect.Y, f.Rect.Width, f.Rect.Height},
			Intensity: f.Intensity,
		})
	}
	return s
}

// Restore replaces the engine contents with save without ticking. Buildings
// that cannot be constructed are skipped and reported in the returned error;
// the rest of the save is still loaded.
func (e *Engine) Restore(save snapshot.SaveV1) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restoreLocked(save)
}

// ImportSave restores save and runs one tick straight away so production
// continues from the loaded state.
func (e *Engine) ImportSave(save snapshot.SaveV1) (tick uint64, digest string, err error) {
	if err := checkVersion(save); err != nil {
		return 0, "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	err = e.restoreLocked(save)
	tick, digest = e.stepLocked(context.Background())
	return tick, digest, err
}

func checkVersion(save snapshot.SaveV1) error {
	if save.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported save version %d", save.Header.Version)
	}
	return nil
}

func (e *Engine) restoreLocked(save snapshot.SaveV1) error {
	if err := checkVersion(save); err != nil {
		return err
	}
	if save.Header.CatalogDigest != "" && save.Header.CatalogDigest != e.cats.Buildings.Digest {
		e.logger.Printf("save %s was written with catalog %s, running %s", save.Header.SaveID, save.Header.CatalogDigest, e.cats.Buildings.Digest)
	}

	ids := make([]string, 0, e.reg.Count())
	for _, b := range e.reg.All() {
		ids = append(ids, b.ID)
	}
	for _, id := range ids {
		e.reg.Unregister(id)
	}
	e.proc.reset(save.Header.Tick)
	e.state.SetTick(save.Header.Tick)
	e.appliedLayout = nil

	var errs []error
	capacity := save.StorageCapacity
	if capacity <= 0 {
		capacity = e.tun.StorageCapacity
	}
	global, err := namesToKinds(save.GlobalInventory)
	if err != nil {
		errs = append(errs, fmt.Errorf("global inventory: %w", err))
	}
	e.global.Replace(capacity, global)

	for _, bv := range save.Buildings {
		inv, err := namesToKinds(bv.Inventory)
		if err != nil {
			errs = append(errs, fmt.Errorf("building %s: %w", bv.ID, err))
		}
		p := Placement{
			ID:        bv.ID,
			Type:      catalogs.BuildingType(bv.Type),
			Position:  geom.Vec2{X: bv.Pos[0], Y: bv.Pos[1]},
			Inventory: inv,
		}
		for _, m := range bv.Ports {
			ports, err := namesToKinds(m)
			if err != nil {
				errs = append(errs, fmt.Errorf("building %s ports: %w", bv.ID, err))
			}
			p.Ports = append(p.Ports, ports)
		}
		if err := e.register(p); err != nil {
			errs = append(errs, err)
			continue
		}
		if b, ok := e.reg.Get(p.ID); ok {
			b.EnergyShortage = bv.EnergyShortage
		}
	}

	e.conns = e.conns[:0:0]
	for _, cv := range save.Connections {
		sp, err := graph.ParseSourcePort(cv.SourcePort)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.conns = append(e.conns, graph.Connection{
			Source:     cv.Source,
			Target:     cv.Target,
			TargetPort: graph.TargetPort(cv.TargetPort),
			SourcePort: sp,
		})
	}
	e.fields = e.fields[:0:0]
	for _, fv := range save.ResourceFields {
		k, ok := catalogs.ParseKind(fv.Kind)
		if !ok {
			errs = append(errs, fmt.Errorf("field %s: unknown kind %q", fv.ID, fv.Kind))
			continue
		}
		e.fields = append(e.fields, ResourceField{
			ID:        fv.ID,
			Kind:      k,
			Rect:      geom.Rect{X: fv.Rect[0], Y: fv.Rect[1], Width: fv.Rect[2], Height: fv.Rect[3]},
			Intensity: fv.Intensity,
		})
	}
	e.viewport = Viewport{X: save.Viewport.X, Y: save.Viewport.Y, Zoom: save.Viewport.Zoom}
	e.audit(AuditEntry{Action: "restore", Reason: save.Header.SaveID})
	return errors.Join(errs...)
}

func kindsToNames(m map[catalogs.ResourceKind]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, n := range m {
		if n > 0 {
			out[k.String()] = n
		}
	}
	return out
}

// namesToKinds converts what it can and reports unknown names.
func namesToKinds(m map[string]int) (map[catalogs.ResourceKind]int, error) {
	out := make(map[catalogs.ResourceKind]int, len(m))
	var bad []string
	for name, n := range m {
		k, ok := catalogs.ParseKind(name)
		if !ok {
			bad = append(bad, name)
			continue
		}
		out[k] = n
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return out, fmt.Errorf("unknown resource kinds %v", bad)
	}
	return out, nil
}
