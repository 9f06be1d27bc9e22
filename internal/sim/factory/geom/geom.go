package geom

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains is edge-inclusive.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.X && p.X <= r.X+r.Width &&
		p.Y >= r.Y && p.Y <= r.Y+r.Height
}

func (r Rect) Overlaps(o Rect) bool {
	return !(r.X+r.Width <= o.X || o.X+o.Width <= r.X ||
		r.Y+r.Height <= o.Y || o.Y+o.Height <= r.Y)
}

// Footprint is the size of every building; positions are top-left corners.
type Footprint struct {
	Width  float64
	Height float64
}

func (f Footprint) Center(topLeft Vec2) Vec2 {
	return Vec2{X: topLeft.X + f.Width/2, Y: topLeft.Y + f.Height/2}
}

func (f Footprint) Rect(topLeft Vec2) Rect {
	return Rect{X: topLeft.X, Y: topLeft.Y, Width: f.Width, Height: f.Height}
}
