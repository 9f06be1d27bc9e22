package factory

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"factorycraft.ai/internal/persistence/snapshot"
	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory/geom"
	"factorycraft.ai/internal/sim/factory/graph"
	"factorycraft.ai/internal/sim/factory/state"
	"factorycraft.ai/internal/sim/tuning"
)

// Layout is the full presentation-layer picture applied at a tick boundary.
type Layout struct {
	Placements     []Placement        `json:"placements"`
	Connections    []graph.Connection `json:"connections"`
	ResourceFields []ResourceField    `json:"resource_fields"`
	// GlobalInventory replaces the global stock when non-nil.
	GlobalInventory map[catalogs.ResourceKind]int `json:"global_inventory,omitempty"`
	StorageCapacity int                           `json:"storage_capacity,omitempty"`
	Viewport        *Viewport                     `json:"viewport,omitempty"`
}

type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

type TickLogEntry struct {
	Tick        uint64  `json:"tick"`
	Digest      string  `json:"digest"`
	Buildings   int     `json:"buildings"`
	Connections int     `json:"connections"`
	Dangling    int     `json:"dangling,omitempty"`
	Shortages   int     `json:"shortages,omitempty"`
	Rebuilt     bool    `json:"rebuilt,omitempty"`
	Layout      *Layout `json:"layout,omitempty"`
}

type AuditEntry struct {
	Tick       uint64                `json:"tick"`
	Action     string                `json:"action"`
	BuildingID string                `json:"building_id,omitempty"`
	Type       catalogs.BuildingType `json:"type,omitempty"`
	Reason     string                `json:"reason,omitempty"`
}

type TickLogger interface {
	WriteTick(TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(AuditEntry) error
}

// Observer receives per-tick measurements, e.g. for metrics export.
type Observer interface {
	ObserveTick(TickResult)
	ConstructionFailed()
}

type Config struct {
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs
	Logger   *log.Logger

	Observer    Observer
	TickLogger  TickLogger
	AuditLogger AuditLogger
	// SnapshotSink receives a save every Tuning.SnapshotEveryTicks ticks; full sinks drop it.
	SnapshotSink chan<- snapshot.SaveV1
}

// Engine is the hosting context: it owns the registry, tick processor, game
// state and the presentation inputs, and serializes access to them.
type Engine struct {
	tun    tuning.Tuning
	cats   *catalogs.Catalogs
	logger *log.Logger

	obs          Observer
	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SaveV1

	mu       sync.Mutex
	state    *state.Store
	reg      *Registry
	proc     *TickProcessor
	global   *GlobalStock
	conns    []graph.Connection
	fields   []ResourceField
	viewport Viewport
	// appliedLayout is recorded with the next tick log entry.
	appliedLayout *Layout

	layouts  chan Layout
	stop     chan struct{}
	stopOnce sync.Once
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	if cfg.Catalogs == nil {
		cfg.Catalogs = catalogs.Defaults()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	e := &Engine{
		tun:          cfg.Tuning,
		cats:         cfg.Catalogs,
		logger:       cfg.Logger,
		obs:          cfg.Observer,
		tickLogger:   cfg.TickLogger,
		auditLogger:  cfg.AuditLogger,
		snapshotSink: cfg.SnapshotSink,
		state:        state.NewStore(),
		global:       NewGlobalStock(cfg.Tuning.StorageCapacity, cfg.Tuning.StartingStock()),
		viewport:     Viewport{Zoom: 1},
		layouts:      make(chan Layout, 1),
		stop:         make(chan struct{}),
	}
	fp := geom.Footprint{Width: cfg.Tuning.BuildingWidth, Height: cfg.Tuning.BuildingHeight}
	e.reg = NewRegistry(e.cats, fp, cfg.Tuning.SpatialCellSize, e.state)
	e.proc = NewTickProcessor(e.reg, cfg.Tuning.Optimization, e.logger)
	return e, nil
}

func (e *Engine) State() *state.Store { return e.state }

func (e *Engine) Catalogs() *catalogs.Catalogs { return e.cats }

func (e *Engine) Global() *GlobalStock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.global
}

func (e *Engine) TickRateHz() int { return e.tun.TickRateHz }

func (e *Engine) CurrentTick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proc.CurrentTick()
}

// Run drives ticks at the configured rate until ctx is done or Stop is called.
// Layouts submitted in between are applied at the next tick boundary.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.tun.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending *Layout
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case l := <-e.layouts:
			pending = &l
		case <-ticker.C:
			if pending != nil {
				e.ApplyLayout(*pending)
				pending = nil
			}
			e.step(ctx)
		}
	}
}

func (e *Engine) Stop() { e.stopOnce.Do(func() { close(e.stop) }) }

// SubmitLayout queues l for the next tick; only the latest layout is kept.
func (e *Engine) SubmitLayout(l Layout) {
	select {
	case e.layouts <- l:
		return
	default:
	}
	select {
	case <-e.layouts:
		e.logger.Printf("layout superseded before tick boundary")
	default:
	}
	select {
	case e.layouts <- l:
	default:
	}
}

// StepOnce advances one tick synchronously and returns the tick and its state digest.
func (e *Engine) StepOnce() (tick uint64, digest string) {
	return e.step(context.Background())
}

func (e *Engine) step(ctx context.Context) (uint64, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stepLocked(ctx)
}

func (e *Engine) stepLocked(ctx context.Context) (uint64, string) {
	res := e.proc.Tick(ctx, TickInput{Connections: e.conns, Fields: e.fields, Global: e.global})
	digest := e.digestLocked(res.Tick)

	if e.obs != nil {
		e.obs.ObserveTick(res)
	}
	if e.tickLogger != nil {
		entry := TickLogEntry{
			Tick:        res.Tick,
			Digest:      digest,
			Buildings:   res.Buildings,
			Connections: len(e.conns),
			Dangling:    res.Dangling,
			Shortages:   res.Shortages,
			Rebuilt:     res.Rebuilt,
			Layout:      e.appliedLayout,
		}
		if err := e.tickLogger.WriteTick(entry); err != nil {
			e.logger.Printf("tick %d: tick log: %v", res.Tick, err)
		}
	}
	e.appliedLayout = nil

	if e.snapshotSink != nil && e.tun.SnapshotEveryTicks > 0 && res.Tick%uint64(e.tun.SnapshotEveryTicks) == 0 {
		select {
		case e.snapshotSink <- e.exportLocked(""):
		default:
			e.logger.Printf("tick %d: snapshot sink full, dropped", res.Tick)
		}
	}
	return res.Tick, digest
}

// ApplyLayout syncs the registry with l: new ids are registered, missing ids
// unregistered, moved buildings repositioned. Placements without an id get a
// fresh uuid. The returned layout carries the assigned ids; construction
// failures are logged, counted and returned without aborting the sync.
func (e *Engine) ApplyLayout(l Layout) (Layout, []error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLayoutLocked(l)
}

func (e *Engine) applyLayoutLocked(l Layout) (Layout, []error) {
	resolved := l
	resolved.Placements = make([]Placement, len(l.Placements))
	present := make(map[string]bool, len(l.Placements))
	for i, p := range l.Placements {
		if p.ID == "" {
			p.ID = NewBuildingID()
		}
		resolved.Placements[i] = p
		present[p.ID] = true
	}

	var gone []string
	for _, b := range e.reg.All() {
		if !present[b.ID] {
			gone = append(gone, b.ID)
		}
	}
	for _, id := range gone {
		e.reg.Unregister(id)
		e.audit(AuditEntry{Action: "unregister", BuildingID: id})
	}

	var errs []error
	for _, p := range resolved.Placements {
		if b, ok := e.reg.Get(p.ID); ok {
			if b.Type == p.Type {
				e.reg.Move(p.ID, p.Position)
				continue
			}
			e.reg.Unregister(p.ID)
		}
		if err := e.register(p); err != nil {
			errs = append(errs, err)
		}
	}

	e.conns = append([]graph.Connection(nil), resolved.Connections...)
	e.fields = append([]ResourceField(nil), resolved.ResourceFields...)
	if resolved.GlobalInventory != nil {
		capacity := resolved.StorageCapacity
		if capacity <= 0 {
			capacity = e.global.Capacity()
		}
		e.global.Replace(capacity, resolved.GlobalInventory)
	}
	if resolved.Viewport != nil {
		e.viewport = *resolved.Viewport
	}
	logged := resolved
	e.appliedLayout = &logged
	return resolved, errs
}

func (e *Engine) register(p Placement) error {
	b, err := e.reg.Register(p)
	if err != nil {
		e.logger.Printf("tick %d: %v", e.proc.CurrentTick(), err)
		if e.obs != nil {
			e.obs.ConstructionFailed()
		}
		e.audit(AuditEntry{Action: "construction_failed", BuildingID: p.ID, Type: p.Type, Reason: err.Error()})
		return err
	}
	e.audit(AuditEntry{Action: "register", BuildingID: b.ID, Type: b.Type})
	return nil
}

func (e *Engine) audit(a AuditEntry) {
	if e.auditLogger == nil {
		return
	}
	a.Tick = e.proc.CurrentTick()
	if err := e.auditLogger.WriteAudit(a); err != nil {
		e.logger.Printf("audit: %v", err)
	}
}

// Register places a single building outside of a full layout sync.
func (e *Engine) Register(p Placement) (*Building, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.ID == "" {
		p.ID = NewBuildingID()
	}
	if err := e.register(p); err != nil {
		return nil, err
	}
	b, _ := e.reg.Get(p.ID)
	return b, nil
}

func (e *Engine) Unregister(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.reg.Unregister(id) {
		return false
	}
	e.audit(AuditEntry{Action: "unregister", BuildingID: id})
	return true
}

// SetConnections replaces the connection graph used from the next tick on.
func (e *Engine) SetConnections(conns []graph.Connection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns = append([]graph.Connection(nil), conns...)
}

func (e *Engine) SetResourceFields(fields []ResourceField) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields = append([]ResourceField(nil), fields...)
}

// Building returns the live building for id. Callers must not mutate it
// while the engine is running.
func (e *Engine) Building(id string) (*Building, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.Get(id)
}

// Nearby lists building ids whose centre lies within radius of p.
func (e *Engine) Nearby(p geom.Vec2, radius float64) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.Nearby(p, radius)
}

// Tracks reports whether any engine structure still refers to the building.
func (e *Engine) Tracks(id string, index int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.Tracks(id, index)
}

func NewBuildingID() string { return "b_" + uuid.NewString() }
