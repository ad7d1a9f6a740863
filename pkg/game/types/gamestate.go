package types

// SavedGameState is the durable subset of the live game state. Transient
// runtime fields (active tool, drag state, pause flag) never appear here.
// Storage owns the instance it is handed; callers must pass a copy and
// must copy what they read back.
type SavedGameState struct {
	// Cows maps cow IDs to cow states
	Cows map[uint32]*CowState `json:"cows"`
	// Inventory maps item names to counts
	Inventory map[string]int64 `json:"inventory"`
	// Stations maps station IDs to crafting station states
	Stations map[uint32]*StationState `json:"stations"`
	// Coins is the player's currency balance
	Coins int64 `json:"coins"`
	// UnlockedRecipes lists recipe names available to the player
	UnlockedRecipes []string `json:"unlockedRecipes"`
	// PlayTimeMillis is accumulated play time
	PlayTimeMillis int64 `json:"playTimeMillis"`
	// Stats tracks lifetime progression counters
	Stats Stats `json:"stats"`
}

func NewSavedGameState() *SavedGameState {
	return &SavedGameState{
		Cows:      make(map[uint32]*CowState),
		Inventory: make(map[string]int64),
		Stations:  make(map[uint32]*StationState),
	}
}

func (s *SavedGameState) Copy() *SavedGameState {
	newState := &SavedGameState{
		Cows:           make(map[uint32]*CowState, len(s.Cows)),
		Inventory:      make(map[string]int64, len(s.Inventory)),
		Stations:       make(map[uint32]*StationState, len(s.Stations)),
		Coins:          s.Coins,
		PlayTimeMillis: s.PlayTimeMillis,
		Stats:          s.Stats,
	}
	for id, cow := range s.Cows {
		newState.Cows[id] = cow.Copy()
	}
	for item, count := range s.Inventory {
		newState.Inventory[item] = count
	}
	for id, station := range s.Stations {
		newState.Stations[id] = station.Copy()
	}
	if s.UnlockedRecipes != nil {
		newState.UnlockedRecipes = make([]string, len(s.UnlockedRecipes))
		copy(newState.UnlockedRecipes, s.UnlockedRecipes)
	}
	return newState
}

// Stats tracks lifetime counters used for progression milestones.
type Stats struct {
	MilkCollected int64 `json:"milkCollected"`
	ItemsCrafted  int64 `json:"itemsCrafted"`
	CowsAcquired  int64 `json:"cowsAcquired"`
	ItemsSold     int64 `json:"itemsSold"`
}
