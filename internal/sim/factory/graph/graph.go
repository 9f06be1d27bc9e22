// Package graph holds the directed connection graph between buildings and the
// index-based views derived from it.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TargetPort is the input side of a connection.
type TargetPort string

const (
	PortInput  TargetPort = "input"
	PortEnergy TargetPort = "energy"
)

func (p TargetPort) Valid() bool { return p == PortInput || p == PortEnergy }

// SourcePort is either the single "output" port or an indexed "output-N" port.
type SourcePort struct {
	Indexed bool
	Index   int
}

// MaxPorts bounds indexed output ports.
const MaxPorts = 64

func (p SourcePort) Slot() int {
	if !p.Indexed {
		return 0
	}
	return p.Index
}

func (p SourcePort) String() string {
	if !p.Indexed {
		return "output"
	}
	return "output-" + strconv.Itoa(p.Index)
}

func ParseSourcePort(s string) (SourcePort, error) {
	if s == "" || s == "output" {
		return SourcePort{}, nil
	}
	rest, ok := strings.CutPrefix(s, "output-")
	if !ok {
		return SourcePort{}, fmt.Errorf("bad source port %q", s)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 || n >= MaxPorts {
		return SourcePort{}, fmt.Errorf("bad source port %q", s)
	}
	return SourcePort{Indexed: true, Index: n}, nil
}

func (p SourcePort) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *SourcePort) UnmarshalText(b []byte) error {
	v, err := ParseSourcePort(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

type Connection struct {
	Source     string     `json:"source"`
	Target     string     `json:"target"`
	TargetPort TargetPort `json:"target_port"`
	SourcePort SourcePort `json:"source_port"`
}

// key length-prefixes the ids so that no two edges share a key whatever
// characters the ids contain.
func (c Connection) key() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(len(c.Source)))
	sb.WriteByte(':')
	sb.WriteString(c.Source)
	sb.WriteString(strconv.Itoa(len(c.Target)))
	sb.WriteByte(':')
	sb.WriteString(c.Target)
	sb.WriteByte('/')
	sb.WriteString(string(c.TargetPort))
	sb.WriteByte('/')
	sb.WriteString(c.SourcePort.String())
	return sb.String()
}

// Hash identifies a connection set independent of its order.
func Hash(conns []Connection) string {
	keys := make([]string, len(conns))
	for i, c := range conns {
		keys[i] = c.key()
	}
	sort.Strings(keys)
	sum := sha256.Sum256([]byte(strings.Join(keys, "|")))
	return hex.EncodeToString(sum[:])
}

// Resolver maps a building id to its arena index.
type Resolver func(id string) (int, bool)

// Link is one end of a resolved connection: the building index and the source port slot.
type Link struct {
	Index int
	Port  int
}

// resolve returns the endpoints of c, or ok=false for dangling edges, self loops and unknown ports.
func resolve(c Connection, r Resolver) (src, dst int, ok bool) {
	if !c.TargetPort.Valid() {
		return 0, 0, false
	}
	src, ok = r(c.Source)
	if !ok {
		return 0, 0, false
	}
	dst, ok = r(c.Target)
	if !ok || src == dst {
		return 0, 0, false
	}
	return src, dst, true
}

// View is a building's local connection view for one tick.
type View struct {
	HasInput       bool
	HasOutput      bool
	HasEnergyInput bool
	outPorts       uint64
}

func (v View) OutputConnected(port int) bool {
	if port < 0 || port >= MaxPorts {
		return false
	}
	return v.outPorts&(1<<uint(port)) != 0
}

type Views struct {
	ByIndex []View
	// Skipped counts edges that name a missing building, loop onto their source or use an unknown port.
	Skipped int
}

func BuildViews(conns []Connection, n int, r Resolver) Views {
	out := Views{ByIndex: make([]View, n)}
	for _, c := range conns {
		s, t, ok := resolve(c, r)
		if !ok || s >= n || t >= n {
			out.Skipped++
			continue
		}
		sv := &out.ByIndex[s]
		sv.HasOutput = true
		if slot := c.SourcePort.Slot(); slot < MaxPorts {
			sv.outPorts |= 1 << uint(slot)
		}
		if c.TargetPort == PortEnergy {
			out.ByIndex[t].HasEnergyInput = true
		} else {
			out.ByIndex[t].HasInput = true
		}
	}
	return out
}
