package factory

import (
	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory/geom"
)

// ResourceField is a read-only region that lets miners of its kind produce.
type ResourceField struct {
	ID        string                `json:"id"`
	Kind      catalogs.ResourceKind `json:"kind"`
	Rect      geom.Rect             `json:"rect"`
	Intensity float64               `json:"intensity"`
}

type fieldSet []ResourceField

// covers reports whether p lies inside any field of kind.
func (fs fieldSet) covers(kind catalogs.ResourceKind, p geom.Vec2) bool {
	for _, f := range fs {
		if f.Kind == kind && f.Rect.Contains(p) {
			return true
		}
	}
	return false
}
