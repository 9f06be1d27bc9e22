// Package spatial is a grid-bucketed point index for proximity queries over an
// unbounded plane.
package spatial

import (
	"math"
	"sort"

	"factorycraft.ai/internal/sim/factory/geom"
)

type cell struct{ X, Y int }

type entry struct {
	pos  geom.Vec2
	cell cell
	seq  uint64
}

type Index[T comparable] struct {
	size  float64
	cells map[cell][]T
	items map[T]entry
	seq   uint64
}

func New[T comparable](cellSize float64) *Index[T] {
	if cellSize <= 0 || math.IsNaN(cellSize) {
		cellSize = 50
	}
	return &Index[T]{
		size:  cellSize,
		cells: map[cell][]T{},
		items: map[T]entry{},
	}
}

func (x *Index[T]) CellSize() float64 { return x.size }

func (x *Index[T]) cellOf(p geom.Vec2) cell {
	return cell{X: int(math.Floor(p.X / x.size)), Y: int(math.Floor(p.Y / x.size))}
}

// Add inserts v at p, moving it if it is already indexed.
func (x *Index[T]) Add(v T, p geom.Vec2) {
	if old, ok := x.items[v]; ok {
		if old.pos == p {
			return
		}
		x.unlink(v, old.cell)
	}
	c := x.cellOf(p)
	x.seq++
	x.items[v] = entry{pos: p, cell: c, seq: x.seq}
	x.cells[c] = append(x.cells[c], v)
}

func (x *Index[T]) Remove(v T) bool {
	e, ok := x.items[v]
	if !ok {
		return false
	}
	x.unlink(v, e.cell)
	delete(x.items, v)
	return true
}

func (x *Index[T]) unlink(v T, c cell) {
	bucket := x.cells[c]
	for i, w := range bucket {
		if w == v {
			bucket = append(bucket[:i:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(x.cells, c)
		return
	}
	x.cells[c] = bucket
}

func (x *Index[T]) Contains(v T) bool {
	_, ok := x.items[v]
	return ok
}

func (x *Index[T]) Len() int { return len(x.items) }

func (x *Index[T]) Clear() {
	x.cells = map[cell][]T{}
	x.items = map[T]entry{}
}

// Nearby returns the values within radius of p (inclusive), in insertion order.
func (x *Index[T]) Nearby(p geom.Vec2, radius float64) []T {
	if radius < 0 {
		return nil
	}
	lo := x.cellOf(geom.Vec2{X: p.X - radius, Y: p.Y - radius})
	hi := x.cellOf(geom.Vec2{X: p.X + radius, Y: p.Y + radius})
	r2 := radius * radius

	type hit struct {
		v   T
		seq uint64
	}
	var hits []hit
	for cy := lo.Y; cy <= hi.Y; cy++ {
		for cx := lo.X; cx <= hi.X; cx++ {
			for _, v := range x.cells[cell{X: cx, Y: cy}] {
				e := x.items[v]
				dx, dy := e.pos.X-p.X, e.pos.Y-p.Y
				if dx*dx+dy*dy <= r2 {
					hits = append(hits, hit{v: v, seq: e.seq})
				}
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
	out := make([]T, len(hits))
	for i, h := range hits {
		out[i] = h.v
	}
	return out
}
