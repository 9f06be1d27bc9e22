package catalogs

import "encoding/json"

// DefaultStorageCapacity matches the global storage capacity of a fresh game.
const DefaultStorageCapacity = 1000

func defaultDefs() []BuildingDef {
	miner := func(t BuildingType, name string, k ResourceKind, amount, energy int) BuildingDef {
		return BuildingDef{
			Type:              t,
			Name:              name,
			Description:       "Extracts " + k.String() + " from resource fields",
			Specialty:         SpecialtyMiner,
			Outputs:           []Stack{{Kind: k, Count: amount}},
			Capacity:          10,
			EnergyConsumption: energy,
			Cost:              []Stack{{Kind: Stone, Count: 10}},
		}
	}
	factory := func(t BuildingType, name string, in []Stack, out Stack, energy int, cost []Stack) BuildingDef {
		return BuildingDef{
			Type:              t,
			Name:              name,
			Specialty:         SpecialtyFactory,
			Inputs:            in,
			Outputs:           []Stack{out},
			Capacity:          10,
			EnergyConsumption: energy,
			Cost:              cost,
		}
	}
	return []BuildingDef{
		miner(TypeIronMiner, "Iron Miner", IronOre, 2, 1),
		miner(TypeCopperMiner, "Copper Miner", CopperOre, 2, 1),
		miner(TypeStoneMiner, "Stone Miner", Stone, 2, 1),
		miner(TypeCoalMiner, "Coal Miner", Coal, 1, 0),
		factory(TypeSmelter, "Iron Smelter",
			[]Stack{{Kind: IronOre, Count: 2}}, Stack{Kind: IronPlate, Count: 1}, 2,
			[]Stack{{Kind: Stone, Count: 20}}),
		factory(TypeCopperSmelter, "Copper Smelter",
			[]Stack{{Kind: CopperOre, Count: 2}}, Stack{Kind: CopperPlate, Count: 1}, 2,
			[]Stack{{Kind: Stone, Count: 20}}),
		factory(TypeSteelFurnace, "Steel Furnace",
			[]Stack{{Kind: IronPlate, Count: 2}, {Kind: Coal, Count: 1}}, Stack{Kind: SteelPlate, Count: 1}, 3,
			[]Stack{{Kind: Stone, Count: 30}, {Kind: IronPlate, Count: 10}}),
		factory(TypeAssembler, "Iron Gear Assembler",
			[]Stack{{Kind: IronPlate, Count: 2}}, Stack{Kind: IronGear, Count: 1}, 2,
			[]Stack{{Kind: IronPlate, Count: 10}}),
		factory(TypeSteelAssembler, "Steel Gear Assembler",
			[]Stack{{Kind: SteelPlate, Count: 2}}, Stack{Kind: SteelGear, Count: 1}, 3,
			[]Stack{{Kind: SteelPlate, Count: 10}}),
		{
			Type:        TypeSplitter,
			Name:        "Item Splitter",
			Description: "Splits incoming items into two outputs",
			Specialty:   SpecialtyUtility,
			AcceptsAny:  true,
			AnyQuantity: 2,
			OutputPorts: []int{1, 1},
			Capacity:    10,
			Cost:        []Stack{{Kind: IronPlate, Count: 5}, {Kind: CopperOre, Count: 5}},
		},
		{
			Type:        TypeStorage,
			Name:        "Storage",
			Description: "Stores items for later use",
			Specialty:   SpecialtyStorage,
			AcceptsAny:  true,
			AnyQuantity: 2,
			Capacity:    DefaultStorageCapacity,
			Cost:        []Stack{{Kind: Stone, Count: 10}},
		},
		{
			Type:        TypeCoalPowerPlant,
			Name:        "Coal Power Plant",
			Description: "Burns coal to generate energy",
			Specialty:   SpecialtyPowerPlant,
			Inputs:      []Stack{{Kind: Coal, Count: 1}},
			Outputs:     []Stack{{Kind: Energy, Count: 5}},
			Capacity:    10,
			Cost:        []Stack{{Kind: Stone, Count: 20}},
		},
	}
}

// Defaults returns the compiled-in building table.
func Defaults() *Catalogs {
	defs := defaultDefs()
	c, err := build(defs)
	if err != nil {
		panic("catalogs: bad default table: " + err.Error())
	}
	raw, _ := json.Marshal(struct {
		Buildings []BuildingDef `json:"buildings"`
	}{defs})
	c.Buildings.Digest = sha256Hex(raw)
	return c
}
