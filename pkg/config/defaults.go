package config

// Defaults returns the default configuration tree. The tree is the schema
// authority for override paths: only numeric leaves reachable here can be
// overridden. Callers must treat the returned tree as read-only; Manager
// clones it before use.
func Defaults() map[string]any {
	return map[string]any{
		"COW": map[string]any{
			"WALK_SPEED":            40.0,
			"MILK_INTERVAL_SECONDS": 90.0,
			"HUNGER_PER_MINUTE":     1.5,
			"HAPPINESS_PER_PET":     5.0,
			"MAX_COUNT":             12.0,
			"PRICE":                 120.0,
		},
		"CRAFTING": map[string]any{
			"CHEESE": map[string]any{
				"DURATION_SECONDS": 30.0,
				"MILK_COST":        2.0,
			},
			"BUTTER": map[string]any{
				"DURATION_SECONDS": 20.0,
				"MILK_COST":        1.0,
			},
			"STATION_SLOTS": 3.0,
		},
		"ECONOMY": map[string]any{
			"MILK_PRICE":     4.0,
			"CHEESE_PRICE":   12.0,
			"BUTTER_PRICE":   7.0,
			"STARTING_COINS": 50.0,
		},
		"SAVE": map[string]any{
			"AUTOSAVE_INTERVAL_SECONDS": 30.0,
			"MIN_SAVE_INTERVAL_SECONDS": 5.0,
		},
	}
}
