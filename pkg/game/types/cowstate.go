package types

type CowState struct {
	// Name is the player-assigned cow name
	Name string `json:"name"`
	// Position is where the cow stands in the pasture
	Position Position `json:"position"`
	// Hunger ranges from 0 (full) to 100 (starving)
	Hunger float64 `json:"hunger"`
	// Happiness ranges from 0 to 100 and scales milk yield
	Happiness float64 `json:"happiness"`
	// MilkReadyAt is the epoch-ms time at which the cow can next be milked
	MilkReadyAt int64 `json:"milkReadyAt"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (c *CowState) Copy() *CowState {
	newState := *c
	return &newState
}

type StationState struct {
	// Kind identifies the station type (churn, press, ...)
	Kind string `json:"kind"`
	// Recipe is the recipe in progress, empty when idle
	Recipe string `json:"recipe"`
	// StartedAt is the epoch-ms time crafting began, 0 when idle
	StartedAt int64 `json:"startedAt"`
	// ReadyAt is the epoch-ms time the craft completes, 0 when idle
	ReadyAt int64 `json:"readyAt"`
}

func (s *StationState) Copy() *StationState {
	newState := *s
	return &newState
}
