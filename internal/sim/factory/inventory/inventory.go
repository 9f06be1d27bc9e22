// Package inventory holds the capacity-bounded resource container owned by a
// single building. Every operation clamps and reports; none fails.
package inventory

import "factorycraft.ai/internal/sim/catalogs"

type counts [catalogs.NumKinds]int

type Inventory struct {
	capacity int
	total    int
	amounts  counts

	// reserved[port][kind] is stock earmarked for a downstream output port.
	// Invariant: sum over ports of reserved[*][k] <= amounts[k].
	reserved []counts
}

func New(capacity int) *Inventory {
	if capacity < 0 {
		capacity = 0
	}
	return &Inventory{capacity: capacity}
}

func (inv *Inventory) Capacity() int { return inv.capacity }
func (inv *Inventory) Total() int    { return inv.total }
func (inv *Inventory) Free() int     { return inv.capacity - inv.total }
func (inv *Inventory) Full() bool    { return inv.total >= inv.capacity }

func (inv *Inventory) Get(k catalogs.ResourceKind) int {
	if !k.Valid() {
		return 0
	}
	return inv.amounts[k]
}

func (inv *Inventory) HasAtLeast(k catalogs.ResourceKind, n int) bool {
	return inv.Get(k) >= n
}

// Add stores up to n units of k and returns the amount actually stored.
func (inv *Inventory) Add(k catalogs.ResourceKind, n int) int {
	if !k.Valid() || n <= 0 {
		return 0
	}
	if free := inv.Free(); n > free {
		n = free
	}
	if n <= 0 {
		return 0
	}
	inv.amounts[k] += n
	inv.total += n
	return n
}

// Remove takes up to n units of k and returns the amount actually removed.
// Reservations shrink from the highest port down if the stock falls below them.
func (inv *Inventory) Remove(k catalogs.ResourceKind, n int) int {
	if !k.Valid() || n <= 0 {
		return 0
	}
	if have := inv.amounts[k]; n > have {
		n = have
	}
	if n == 0 {
		return 0
	}
	inv.amounts[k] -= n
	inv.total -= n

	excess := inv.reservedTotal(k) - inv.amounts[k]
	for p := len(inv.reserved) - 1; p >= 0 && excess > 0; p-- {
		cut := inv.reserved[p][k]
		if cut > excess {
			cut = excess
		}
		inv.reserved[p][k] -= cut
		excess -= cut
	}
	return n
}

// Unreserved is the stock of k not earmarked for any port.
func (inv *Inventory) Unreserved(k catalogs.ResourceKind) int {
	if !k.Valid() {
		return 0
	}
	return inv.amounts[k] - inv.reservedTotal(k)
}

func (inv *Inventory) reservedTotal(k catalogs.ResourceKind) int {
	sum := 0
	for p := range inv.reserved {
		sum += inv.reserved[p][k]
	}
	return sum
}

// Reserve earmarks up to n unreserved units of k for port and returns the amount reserved.
func (inv *Inventory) Reserve(port int, k catalogs.ResourceKind, n int) int {
	if port < 0 || !k.Valid() || n <= 0 {
		return 0
	}
	if free := inv.Unreserved(k); n > free {
		n = free
	}
	if n <= 0 {
		return 0
	}
	for len(inv.reserved) <= port {
		inv.reserved = append(inv.reserved, counts{})
	}
	inv.reserved[port][k] += n
	return n
}

func (inv *Inventory) Reserved(port int, k catalogs.ResourceKind) int {
	if port < 0 || port >= len(inv.reserved) || !k.Valid() {
		return 0
	}
	return inv.reserved[port][k]
}

// TakeReserved removes up to n units of k from port's reservation.
func (inv *Inventory) TakeReserved(port int, k catalogs.ResourceKind, n int) int {
	if n <= 0 {
		return 0
	}
	if have := inv.Reserved(port, k); n > have {
		n = have
	}
	if n <= 0 {
		return 0
	}
	inv.reserved[port][k] -= n
	inv.amounts[k] -= n
	inv.total -= n
	return n
}

// Release returns everything reserved for port to the unreserved pool.
func (inv *Inventory) Release(port int) {
	if port < 0 || port >= len(inv.reserved) {
		return
	}
	inv.reserved[port] = counts{}
}

// Ports is the number of ports that have ever held a reservation.
func (inv *Inventory) Ports() int { return len(inv.reserved) }

// Snapshot returns the non-zero amounts.
func (inv *Inventory) Snapshot() map[catalogs.ResourceKind]int {
	out := make(map[catalogs.ResourceKind]int)
	for _, k := range catalogs.PriorityOrder {
		if n := inv.amounts[k]; n > 0 {
			out[k] = n
		}
	}
	return out
}

// PortSnapshot returns the non-zero reservations per port, or nil when there are none.
func (inv *Inventory) PortSnapshot() []map[catalogs.ResourceKind]int {
	nonEmpty := false
	out := make([]map[catalogs.ResourceKind]int, len(inv.reserved))
	for p := range inv.reserved {
		out[p] = map[catalogs.ResourceKind]int{}
		for _, k := range catalogs.PriorityOrder {
			if n := inv.reserved[p][k]; n > 0 {
				out[p][k] = n
				nonEmpty = true
			}
		}
	}
	if !nonEmpty {
		return nil
	}
	return out
}

// Load fills the inventory from a snapshot, clamped to capacity in priority order.
func (inv *Inventory) Load(amounts map[catalogs.ResourceKind]int) {
	for _, k := range catalogs.PriorityOrder {
		inv.Add(k, amounts[k])
	}
}

// Equal compares amounts and reservations.
func (inv *Inventory) Equal(o *Inventory) bool {
	if inv.capacity != o.capacity || inv.total != o.total || inv.amounts != o.amounts {
		return false
	}
	n := len(inv.reserved)
	if len(o.reserved) > n {
		n = len(o.reserved)
	}
	var zero counts
	for p := 0; p < n; p++ {
		a, b := zero, zero
		if p < len(inv.reserved) {
			a = inv.reserved[p]
		}
		if p < len(o.reserved) {
			b = o.reserved[p]
		}
		if a != b {
			return false
		}
	}
	return true
}
