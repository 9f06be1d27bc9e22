package factory

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"factorycraft.ai/internal/sim/catalogs"
)

// StateDigest hashes everything a tick can change: building inventories,
// port reservations, shortage flags and the global stock.
func (e *Engine) StateDigest() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.digestLocked(e.proc.CurrentTick())
}

func (e *Engine) digestLocked(tick uint64) string {
	h := sha256.New()
	var tmp [8]byte
	writeU64(h, &tmp, tick)

	all := e.reg.All()
	ids := make([]string, 0, len(all))
	for _, b := range all {
		ids = append(ids, b.ID)
	}
	sort.Strings(ids)
	writeU64(h, &tmp, uint64(len(ids)))
	for _, id := range ids {
		b, _ := e.reg.Get(id)
		h.Write([]byte(id))
		h.Write([]byte{0})
		h.Write([]byte(b.Type))
		h.Write([]byte{0, boolByte(b.EnergyShortage)})
		writeCounts(h, &tmp, b.Inv.Snapshot())
		ports := b.Inv.PortSnapshot()
		writeU64(h, &tmp, uint64(len(ports)))
		for _, p := range ports {
			writeCounts(h, &tmp, p)
		}
	}
	writeCounts(h, &tmp, e.global.Snapshot())
	return hex.EncodeToString(h.Sum(nil))
}

// writeCounts emits non-zero counts in priority order.
func writeCounts(h hash.Hash, tmp *[8]byte, m map[catalogs.ResourceKind]int) {
	for _, k := range catalogs.PriorityOrder {
		if n := m[k]; n != 0 {
			h.Write([]byte{byte(k)})
			writeU64(h, tmp, uint64(n))
		}
	}
	h.Write([]byte{0})
}

func writeU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
