package factory

import "factorycraft.ai/internal/sim/catalogs"

// tickEnv carries the read-only tick inputs a phase may consult.
type tickEnv struct {
	fields fieldSet
	global *GlobalStock
}

type phaseFunc func(*Building, *tickEnv)

// behavior is the strategy set of one specialty; nil entries are no-ops.
type behavior struct {
	produce phaseFunc
	pull    phaseFunc
	consume phaseFunc
}

var behaviors = map[catalogs.Specialty]behavior{
	catalogs.SpecialtyMiner:      {produce: minerProduce},
	catalogs.SpecialtyFactory:    {pull: factoryPull, consume: factoryConsume},
	catalogs.SpecialtyUtility:    {pull: utilityPull, consume: utilityConsume},
	catalogs.SpecialtyStorage:    {pull: storagePull},
	catalogs.SpecialtyPowerPlant: {pull: plantPull, consume: plantConsume},
}

// drawEnergy pulls the building's energy need from its energy suppliers.
// Energy that was drawn stays spent even when the total falls short.
func drawEnergy(b *Building) bool {
	need := b.Def.EnergyConsumption
	if need <= 0 {
		return true
	}
	got := 0
	for _, s := range b.energySuppliers {
		got += s.b.pullPort(s.port, catalogs.Energy, need-got)
		if got >= need {
			return true
		}
	}
	b.EnergyShortage = true
	return false
}

// minerHasEnergy is the sequential half of the miner produce phase.
func minerHasEnergy(b *Building) bool { return drawEnergy(b) }

// minerProduce only touches the miner's own inventory, so miners may run concurrently.
func minerProduce(b *Building, env *tickEnv) {
	kind, amount := b.Def.PrimaryOutput()
	if !env.fields.covers(kind, b.Center) {
		return
	}
	if !b.view.HasOutput || b.Inv.Full() {
		return
	}
	b.Inv.Add(kind, amount)
}

// pullInputs tops up each declared input from suppliers, keeping partial amounts.
func pullInputs(b *Building) {
	for _, in := range b.Def.Inputs {
		want := in.Count - b.Inv.Get(in.Kind)
		for _, s := range b.suppliers {
			if want <= 0 {
				break
			}
			n := want
			if free := b.Inv.Free(); n > free {
				n = free
			}
			if n <= 0 {
				return
			}
			got := s.b.pullPort(s.port, in.Kind, n)
			b.Inv.Add(in.Kind, got)
			want -= got
		}
	}
}

func hasInputs(b *Building) bool {
	for _, in := range b.Def.Inputs {
		if !b.Inv.HasAtLeast(in.Kind, in.Count) {
			return false
		}
	}
	return true
}

func convert(b *Building) {
	for _, in := range b.Def.Inputs {
		b.Inv.Remove(in.Kind, in.Count)
	}
	for _, out := range b.Def.Outputs {
		b.Inv.Add(out.Kind, out.Count)
	}
}

func factoryPull(b *Building, _ *tickEnv) {
	if !b.view.HasInput || b.Inv.Full() || len(b.suppliers) == 0 {
		return
	}
	pullInputs(b)
}

func factoryConsume(b *Building, _ *tickEnv) {
	if !b.view.HasOutput {
		return
	}
	if !drawEnergy(b) {
		return
	}
	if hasInputs(b) {
		convert(b)
	}
}

// forwardsAnywhere reports whether one of the utility's declared output ports
// is connected. Edges from ports the catalog does not define lead nowhere.
func forwardsAnywhere(b *Building) bool {
	for p := range b.Def.OutputPorts {
		if b.view.OutputConnected(p) {
			return true
		}
	}
	return false
}

// utilityPull takes one batch from the first supplier that has anything.
// A utility with nowhere to forward to does not pull.
func utilityPull(b *Building, _ *tickEnv) {
	if !b.view.HasInput || !forwardsAnywhere(b) || b.Inv.Full() {
		return
	}
	n := b.Def.AnyAmount()
	if free := b.Inv.Free(); n > free {
		n = free
	}
	for _, s := range b.suppliers {
		if k, got := s.b.pullAnyPort(s.port, n); got > 0 {
			b.Inv.Add(k, got)
			return
		}
	}
}

// utilityConsume forwards staged stock by reserving it for connected output
// ports; downstream buildings then pull it from their port.
func utilityConsume(b *Building, _ *tickEnv) {
	ports := b.Def.OutputPorts
	if !forwardsAnywhere(b) {
		for p := range ports {
			b.Inv.Release(p)
		}
		return
	}
	capacity := 0
	for p, q := range ports {
		if b.view.OutputConnected(p) {
			capacity += q
		} else {
			b.Inv.Release(p)
		}
	}
	amount := b.Def.AnyAmount()
	kind := catalogs.KindNone
	for _, k := range catalogs.PriorityOrder {
		if k.Material() && b.Inv.Unreserved(k) >= amount {
			kind = k
			break
		}
	}
	if kind == catalogs.KindNone {
		return
	}
	move := amount
	if capacity < move {
		move = capacity
	}
	for p, q := range ports {
		if move <= 0 {
			break
		}
		if !b.view.OutputConnected(p) {
			continue
		}
		if q > move {
			q = move
		}
		move -= b.Inv.Reserve(p, kind, q)
	}
}

// storagePull drains each supplier in turn until it is empty or storage is full.
func storagePull(b *Building, _ *tickEnv) {
	if !b.view.HasInput {
		return
	}
	for _, s := range b.suppliers {
		for {
			n := b.Def.AnyAmount()
			if free := b.Inv.Free(); n > free {
				n = free
			}
			if n <= 0 {
				return
			}
			k, got := s.b.pullAnyPort(s.port, n)
			if got == 0 {
				break
			}
			b.Inv.Add(k, got)
		}
	}
}

func plantPull(b *Building, env *tickEnv) {
	if b.Inv.Full() {
		return
	}
	pullInputs(b)
	if env.global == nil {
		return
	}
	for _, in := range b.Def.Inputs {
		want := in.Count - b.Inv.Get(in.Kind)
		if free := b.Inv.Free(); want > free {
			want = free
		}
		if want <= 0 {
			continue
		}
		b.Inv.Add(in.Kind, env.global.Take(in.Kind, want))
	}
}

func plantConsume(b *Building, _ *tickEnv) {
	if !b.view.HasOutput {
		return
	}
	if hasInputs(b) {
		convert(b)
	}
}
