package graph

import (
	"encoding/json"
	"reflect"
	"testing"
)

func resolverFor(ids ...string) Resolver {
	m := map[string]int{}
	for i, id := range ids {
		m[id] = i
	}
	return func(id string) (int, bool) {
		i, ok := m[id]
		return i, ok
	}
}

func TestHash_OrderIndependent(t *testing.T) {
	a := []Connection{
		{Source: "m", Target: "s", TargetPort: PortInput},
		{Source: "p", Target: "m", TargetPort: PortEnergy},
	}
	b := []Connection{a[1], a[0]}
	if Hash(a) != Hash(b) {
		t.Fatalf("hash depends on order")
	}
	c := []Connection{a[0], {Source: "p", Target: "m", TargetPort: PortInput}}
	if Hash(a) == Hash(c) {
		t.Fatalf("hash ignores target port")
	}
	d := []Connection{{Source: "m", Target: "s", TargetPort: PortInput, SourcePort: SourcePort{Indexed: true, Index: 1}}, a[1]}
	if Hash(a) == Hash(d) {
		t.Fatalf("hash ignores indexed source port")
	}
	if Hash(nil) != Hash([]Connection{}) {
		t.Fatalf("empty hashes differ")
	}
}

func TestHash_DashedIDsDoNotCollide(t *testing.T) {
	cases := [][2][]Connection{
		{
			{{Source: "a-b", Target: "c", TargetPort: PortInput}},
			{{Source: "a", Target: "b-c", TargetPort: PortInput}},
		},
		{
			{{Source: "b_1-2", Target: "x", TargetPort: PortEnergy}},
			{{Source: "b_1", Target: "2-x", TargetPort: PortEnergy}},
		},
		{
			{{Source: "a", Target: "b|c", TargetPort: PortInput}, {Source: "d", Target: "e", TargetPort: PortInput}},
			{{Source: "a", Target: "b", TargetPort: PortInput}, {Source: "c|d", Target: "e", TargetPort: PortInput}},
		},
	}
	for i, c := range cases {
		if Hash(c[0]) == Hash(c[1]) {
			t.Fatalf("case %d: %+v and %+v share a hash", i, c[0], c[1])
		}
	}
}

func TestSourcePort_Text(t *testing.T) {
	for _, s := range []string{"output", "output-0", "output-7"} {
		p, err := ParseSourcePort(s)
		if err != nil {
			t.Fatalf("ParseSourcePort(%q): %v", s, err)
		}
		if p.String() != s {
			t.Fatalf("String=%q, want %q", p.String(), s)
		}
	}
	if p, _ := ParseSourcePort(""); p.Indexed {
		t.Fatalf("empty port should be the single output")
	}
	for _, s := range []string{"out", "output-", "output-x", "output-64", "output--1"} {
		if _, err := ParseSourcePort(s); err == nil {
			t.Fatalf("ParseSourcePort(%q) accepted", s)
		}
	}

	var c Connection
	if err := json.Unmarshal([]byte(`{"source":"a","target":"b","target_port":"input","source_port":"output-1"}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !c.SourcePort.Indexed || c.SourcePort.Slot() != 1 {
		t.Fatalf("source port=%+v", c.SourcePort)
	}
}

func TestBuildViews_SkipsDanglingAndLoops(t *testing.T) {
	r := resolverFor("a", "b", "c")
	conns := []Connection{
		{Source: "a", Target: "b", TargetPort: PortInput, SourcePort: SourcePort{Indexed: true, Index: 1}},
		{Source: "c", Target: "b", TargetPort: PortEnergy},
		{Source: "a", Target: "ghost", TargetPort: PortInput},
		{Source: "b", Target: "b", TargetPort: PortInput},
		{Source: "a", Target: "c", TargetPort: "fuel"},
	}
	v := BuildViews(conns, 3, r)
	if v.Skipped != 3 {
		t.Fatalf("skipped=%d, want 3", v.Skipped)
	}
	a, b, c := v.ByIndex[0], v.ByIndex[1], v.ByIndex[2]
	if !a.HasOutput || a.HasInput || !a.OutputConnected(1) || a.OutputConnected(0) {
		t.Fatalf("a=%+v", a)
	}
	if !b.HasInput || !b.HasEnergyInput || b.HasOutput {
		t.Fatalf("b=%+v", b)
	}
	if !c.HasOutput || c.HasInput {
		t.Fatalf("c=%+v", c)
	}
}

func TestCaches_RebuildAndRemove(t *testing.T) {
	r := resolverFor("miner", "plant", "storage", "smelter")
	conns := []Connection{
		{Source: "miner", Target: "storage", TargetPort: PortInput},
		{Source: "plant", Target: "miner", TargetPort: PortEnergy},
		{Source: "storage", Target: "smelter", TargetPort: PortInput},
		{Source: "plant", Target: "smelter", TargetPort: PortEnergy},
		{Source: "miner", Target: "smelter", TargetPort: PortInput},
	}
	var cc ConnectionCache
	cc.Rebuild(conns, 4, r)
	if cc.Hash() != Hash(conns) || cc.Builds() != 1 {
		t.Fatalf("hash/builds not recorded")
	}

	var sc SupplierCache
	sc.Rebuild(&cc)
	mat, en := sc.Suppliers(3)
	if want := []Link{{Index: 2}, {Index: 0}}; !reflect.DeepEqual(mat, want) {
		t.Fatalf("smelter suppliers=%v, want %v", mat, want)
	}
	if want := []Link{{Index: 1}}; !reflect.DeepEqual(en, want) {
		t.Fatalf("smelter energy=%v, want %v", en, want)
	}

	// The slow path agrees with the cache.
	for i := 0; i < 4; i++ {
		m1, e1 := sc.Suppliers(i)
		m2, e2 := ScanSuppliers(conns, i, r)
		if len(m1) != len(m2) || len(e1) != len(e2) || (len(m1) > 0 && !reflect.DeepEqual(m1, m2)) || (len(e1) > 0 && !reflect.DeepEqual(e1, e2)) {
			t.Fatalf("building %d: cache=%v/%v scan=%v/%v", i, m1, e1, m2, e2)
		}
	}

	cc.Remove(0)
	sc.Remove(0)
	if cc.Contains(0) || sc.Contains(0) {
		t.Fatalf("removed index still referenced")
	}
	if mat, _ := sc.Suppliers(3); len(mat) != 1 || mat[0].Index != 2 {
		t.Fatalf("smelter suppliers after remove=%v", mat)
	}
	if !cc.Contains(1) {
		t.Fatalf("unrelated index lost")
	}

	cc.Invalidate()
	if cc.Hash() != "" {
		t.Fatalf("invalidate kept hash")
	}
}
