package factory

import (
	"errors"
	"fmt"

	"factorycraft.ai/internal/sim/catalogs"
)

var (
	ErrEmptyID     = errors.New("empty building id")
	ErrDuplicateID = errors.New("duplicate building id")
)

// ConstructionError reports a placement that could not become a building.
// The building is left out of the tick; the run continues.
type ConstructionError struct {
	ID   string
	Type catalogs.BuildingType
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("construct %s (%s): %v", e.ID, e.Type, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }
