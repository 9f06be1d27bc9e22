package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

var ErrUnknownBuildingType = errors.New("unknown building type")

type Catalogs struct {
	Buildings BuildingCatalog
}

type BuildingCatalog struct {
	ByType map[BuildingType]*BuildingDef
	Types  []BuildingType
	Digest string
}

type Stack struct {
	Kind  ResourceKind `json:"kind"`
	Count int          `json:"count"`
}

type BuildingDef struct {
	Type        BuildingType `json:"type"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Specialty   Specialty    `json:"specialty"`

	Inputs  []Stack `json:"inputs,omitempty"`
	Outputs []Stack `json:"outputs,omitempty"`

	// AcceptsAny marks an input port that takes any material kind;
	// AnyQuantity is how much of it is pulled/consumed per tick.
	AcceptsAny  bool `json:"accepts_any,omitempty"`
	AnyQuantity int  `json:"any_quantity,omitempty"`
	// OutputPorts holds the per-port forward quantity for utilities (output-0, output-1, ...).
	OutputPorts []int `json:"output_ports,omitempty"`

	Capacity          int     `json:"capacity"`
	EnergyConsumption int     `json:"energy_consumption,omitempty"`
	Cost              []Stack `json:"cost,omitempty"`
}

// CanOutput reports whether other buildings may pull kind from this one.
func (d *BuildingDef) CanOutput(kind ResourceKind) bool {
	if d == nil || !kind.Valid() {
		return false
	}
	switch d.Specialty {
	case SpecialtyStorage, SpecialtyUtility:
		return kind.Material()
	}
	for _, s := range d.Outputs {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// PrimaryOutput is the first declared output (a miner's single resource).
func (d *BuildingDef) PrimaryOutput() (ResourceKind, int) {
	if d == nil || len(d.Outputs) == 0 {
		return KindNone, 0
	}
	return d.Outputs[0].Kind, d.Outputs[0].Count
}

// AnyAmount is the per-tick quantity of an accepts-any port, at least 1.
func (d *BuildingDef) AnyAmount() int {
	if d == nil || d.AnyQuantity <= 0 {
		return 1
	}
	return d.AnyQuantity
}

func (c *Catalogs) Building(t BuildingType) (*BuildingDef, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBuildingType, t)
	}
	d, ok := c.Buildings.ByType[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBuildingType, t)
	}
	return d, nil
}

// Load reads a buildings.json catalog. An empty path yields Defaults().
func Load(path string) (*Catalogs, error) {
	if path == "" {
		return Defaults(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	if err := validateBuildingsJSON(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	var doc struct {
		Buildings []BuildingDef `json:"buildings"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	c, err := build(doc.Buildings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	c.Buildings.Digest = sha256Hex(raw)
	return c, nil
}

func build(defs []BuildingDef) (*Catalogs, error) {
	out := &Catalogs{Buildings: BuildingCatalog{ByType: make(map[BuildingType]*BuildingDef, len(defs))}}
	for i := range defs {
		d := defs[i]
		if d.Type == "" {
			return nil, fmt.Errorf("building %d: empty type", i)
		}
		if _, dup := out.Buildings.ByType[d.Type]; dup {
			return nil, fmt.Errorf("building %s: duplicate type", d.Type)
		}
		if err := checkDef(&d); err != nil {
			return nil, fmt.Errorf("building %s: %w", d.Type, err)
		}
		out.Buildings.ByType[d.Type] = &d
		out.Buildings.Types = append(out.Buildings.Types, d.Type)
	}
	sort.Slice(out.Buildings.Types, func(i, j int) bool { return out.Buildings.Types[i] < out.Buildings.Types[j] })
	return out, nil
}

func checkDef(d *BuildingDef) error {
	if !d.Specialty.Valid() {
		return fmt.Errorf("invalid specialty %q", d.Specialty)
	}
	if d.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive")
	}
	if d.EnergyConsumption < 0 {
		return fmt.Errorf("energy consumption cannot be negative")
	}
	for _, s := range append(append([]Stack{}, d.Inputs...), d.Outputs...) {
		if !s.Kind.Valid() || s.Count <= 0 {
			return fmt.Errorf("bad stack %s x%d", s.Kind, s.Count)
		}
	}
	switch d.Specialty {
	case SpecialtyMiner:
		if len(d.Outputs) != 1 || !d.Outputs[0].Kind.Material() {
			return fmt.Errorf("miner needs exactly one material output")
		}
	case SpecialtyPowerPlant:
		if !d.CanOutput(Energy) {
			return fmt.Errorf("power plant must output energy")
		}
	case SpecialtyUtility:
		if !d.AcceptsAny || len(d.OutputPorts) == 0 {
			return fmt.Errorf("utility needs an accepts-any input and output ports")
		}
		if len(d.OutputPorts) > 64 {
			return fmt.Errorf("too many output ports")
		}
	case SpecialtyStorage:
		if !d.AcceptsAny {
			return fmt.Errorf("storage needs an accepts-any input")
		}
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
