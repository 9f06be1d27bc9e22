package catalogs

import "fmt"

// ResourceKind is the closed set of resources that can sit in an inventory.
type ResourceKind uint8

const (
	KindNone ResourceKind = iota
	IronOre
	Coal
	Stone
	CopperOre
	IronPlate
	CopperPlate
	SteelPlate
	IronGear
	SteelGear
	Energy

	numKinds
)

// NumKinds sizes per-kind arrays (index 0 is KindNone and always empty).
const NumKinds = int(numKinds)

var kindNames = [numKinds]string{
	KindNone:    "",
	IronOre:     "iron-ore",
	Coal:        "coal",
	Stone:       "stone",
	CopperOre:   "copper-ore",
	IronPlate:   "iron-plate",
	CopperPlate: "copper-plate",
	SteelPlate:  "steel-plate",
	IronGear:    "iron-gear",
	SteelGear:   "steel-gear",
	Energy:      "energy",
}

// PriorityOrder is the fixed order used by pull-any and by inventory snapshots.
var PriorityOrder = []ResourceKind{
	IronOre, Coal, Stone, CopperOre,
	IronPlate, CopperPlate, SteelPlate,
	IronGear, SteelGear,
	Energy,
}

func (k ResourceKind) Valid() bool { return k > KindNone && k < numKinds }

func (k ResourceKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Material reports whether the kind moves over material ports.
func (k ResourceKind) Material() bool { return k.Valid() && k != Energy }

func ParseKind(s string) (ResourceKind, bool) {
	for i, name := range kindNames {
		if i == 0 {
			continue
		}
		if name == s {
			return ResourceKind(i), true
		}
	}
	return KindNone, false
}

func (k ResourceKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid resource kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *ResourceKind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown resource kind %q", string(b))
	}
	*k = v
	return nil
}

// Specialty selects the phase behaviour of a building.
type Specialty string

const (
	SpecialtyMiner      Specialty = "miner"
	SpecialtyFactory    Specialty = "factory"
	SpecialtyUtility    Specialty = "utility"
	SpecialtyStorage    Specialty = "storage"
	SpecialtyPowerPlant Specialty = "power-plant"
)

func (s Specialty) Valid() bool {
	switch s {
	case SpecialtyMiner, SpecialtyFactory, SpecialtyUtility, SpecialtyStorage, SpecialtyPowerPlant:
		return true
	}
	return false
}

// BuildingType names an entry of the building catalog.
type BuildingType string

const (
	TypeIronMiner      BuildingType = "iron-miner"
	TypeCopperMiner    BuildingType = "copper-miner"
	TypeStoneMiner     BuildingType = "stone-miner"
	TypeCoalMiner      BuildingType = "coal-miner"
	TypeSmelter        BuildingType = "smelter"
	TypeCopperSmelter  BuildingType = "copper-smelter"
	TypeSteelFurnace   BuildingType = "steel-furnace"
	TypeAssembler      BuildingType = "assembler"
	TypeSteelAssembler BuildingType = "steel-assembler"
	TypeSplitter       BuildingType = "splitter"
	TypeStorage        BuildingType = "storage"
	TypeCoalPowerPlant BuildingType = "coal-power-plant"
)
