package graph

// Entry is the cached adjacency of one building.
type Entry struct {
	Inputs       []Link // material suppliers, in connection order
	EnergyInputs []Link
	Outputs      []Link // Index is the downstream building, Port the local source slot
}

// ConnectionCache maps building indices to their adjacency. It is rebuilt
// wholesale and never patched while a tick reads it.
type ConnectionCache struct {
	entries []Entry
	hash    string
	builds  uint64
}

func (c *ConnectionCache) Rebuild(conns []Connection, n int, r Resolver) {
	entries := make([]Entry, n)
	for _, conn := range conns {
		s, t, ok := resolve(conn, r)
		if !ok || s >= n || t >= n {
			continue
		}
		slot := conn.SourcePort.Slot()
		in := Link{Index: s, Port: slot}
		if conn.TargetPort == PortEnergy {
			entries[t].EnergyInputs = append(entries[t].EnergyInputs, in)
		} else {
			entries[t].Inputs = append(entries[t].Inputs, in)
		}
		entries[s].Outputs = append(entries[s].Outputs, Link{Index: t, Port: slot})
	}
	c.entries = entries
	c.hash = Hash(conns)
	c.builds++
}

// Hash is the graph hash at the last rebuild, or "" after Invalidate.
func (c *ConnectionCache) Hash() string { return c.hash }

// Builds counts rebuilds since creation.
func (c *ConnectionCache) Builds() uint64 { return c.builds }

func (c *ConnectionCache) Invalidate() { c.hash = "" }

func (c *ConnectionCache) Len() int { return len(c.entries) }

func (c *ConnectionCache) Get(i int) Entry {
	if i < 0 || i >= len(c.entries) {
		return Entry{}
	}
	return c.entries[i]
}

// Remove drops building i and every link pointing at it.
func (c *ConnectionCache) Remove(i int) {
	c.entries = removeFromEntries(c.entries, i)
}

// Contains reports whether index i appears anywhere in the cache.
func (c *ConnectionCache) Contains(i int) bool {
	for j, e := range c.entries {
		if j == i && (len(e.Inputs) > 0 || len(e.EnergyInputs) > 0 || len(e.Outputs) > 0) {
			return true
		}
		if hasIndex(e.Inputs, i) || hasIndex(e.EnergyInputs, i) || hasIndex(e.Outputs, i) {
			return true
		}
	}
	return false
}

func removeFromEntries(entries []Entry, i int) []Entry {
	out := make([]Entry, len(entries))
	for j, e := range entries {
		if j == i {
			continue
		}
		out[j] = Entry{
			Inputs:       without(e.Inputs, i),
			EnergyInputs: without(e.EnergyInputs, i),
			Outputs:      without(e.Outputs, i),
		}
	}
	return out
}

func without(links []Link, i int) []Link {
	if !hasIndex(links, i) {
		return links
	}
	out := make([]Link, 0, len(links)-1)
	for _, l := range links {
		if l.Index != i {
			out = append(out, l)
		}
	}
	return out
}

func hasIndex(links []Link, i int) bool {
	for _, l := range links {
		if l.Index == i {
			return true
		}
	}
	return false
}

// SupplierCache holds the upstream links each building pulls from this tick.
type SupplierCache struct {
	material [][]Link
	energy   [][]Link
}

// Rebuild derives fresh supplier lists from the connection cache.
func (s *SupplierCache) Rebuild(cc *ConnectionCache) {
	n := cc.Len()
	material := make([][]Link, n)
	energy := make([][]Link, n)
	for i := 0; i < n; i++ {
		e := cc.Get(i)
		material[i] = append([]Link(nil), e.Inputs...)
		energy[i] = append([]Link(nil), e.EnergyInputs...)
	}
	s.material, s.energy = material, energy
}

func (s *SupplierCache) Suppliers(i int) (material, energy []Link) {
	if i >= 0 && i < len(s.material) {
		material = s.material[i]
	}
	if i >= 0 && i < len(s.energy) {
		energy = s.energy[i]
	}
	return material, energy
}

func (s *SupplierCache) Remove(i int) {
	s.material = removeFromLists(s.material, i)
	s.energy = removeFromLists(s.energy, i)
}

func (s *SupplierCache) Contains(i int) bool {
	for _, lists := range [][][]Link{s.material, s.energy} {
		for j, l := range lists {
			if (j == i && len(l) > 0) || hasIndex(l, i) {
				return true
			}
		}
	}
	return false
}

func (s *SupplierCache) Clear() { s.material, s.energy = nil, nil }

func removeFromLists(lists [][]Link, i int) [][]Link {
	out := make([][]Link, len(lists))
	for j, l := range lists {
		if j == i {
			continue
		}
		out[j] = without(l, i)
	}
	return out
}

// ScanSuppliers walks the raw connection list for one target. It yields the
// same lists, in the same order, as a rebuilt SupplierCache.
func ScanSuppliers(conns []Connection, target int, r Resolver) (material, energy []Link) {
	for _, c := range conns {
		s, t, ok := resolve(c, r)
		if !ok || t != target {
			continue
		}
		l := Link{Index: s, Port: c.SourcePort.Slot()}
		if c.TargetPort == PortEnergy {
			energy = append(energy, l)
		} else {
			material = append(material, l)
		}
	}
	return material, energy
}
