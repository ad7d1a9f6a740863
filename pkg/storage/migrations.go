package storage

import (
	"fmt"

	"github.com/hollowfen/pasture/pkg/log"
)

// Migration upgrades a game state tree from one schema version to the
// next. Apply must be a pure transform of the tree it is given.
type Migration struct {
	FromVersion int
	ToVersion   int
	Apply       func(state map[string]any) (map[string]any, error)
}

// DefaultMigrations returns the registered save migrations in order.
func DefaultMigrations() []Migration {
	return []Migration{
		{
			// v1 kept milk and cheese as top-level counters; v2
			// folds them into the inventory map.
			FromVersion: 1,
			ToVersion:   2,
			Apply: func(state map[string]any) (map[string]any, error) {
				inventory, ok := state["inventory"].(map[string]any)
				if !ok {
					inventory = make(map[string]any)
					state["inventory"] = inventory
				}
				for _, item := range []string{"milk", "cheese"} {
					if count, ok := state[item]; ok {
						inventory[item] = count
						delete(state, item)
					}
				}
				return state, nil
			},
		},
		{
			// v2 tracked lastMilkedAt per cow; v3 stores the derived
			// milkReadyAt instead and adds the stats block.
			FromVersion: 2,
			ToVersion:   3,
			Apply: func(state map[string]any) (map[string]any, error) {
				const milkIntervalMillis = 90_000
				cows, _ := state["cows"].(map[string]any)
				for _, value := range cows {
					cow, ok := value.(map[string]any)
					if !ok {
						continue
					}
					if lastMilkedAt, ok := cow["lastMilkedAt"].(float64); ok {
						cow["milkReadyAt"] = lastMilkedAt + milkIntervalMillis
						delete(cow, "lastMilkedAt")
					}
				}
				if _, ok := state["stats"]; !ok {
					state["stats"] = map[string]any{
						"cowsAcquired": float64(len(cows)),
					}
				}
				return state, nil
			},
		},
	}
}

// runMigrations upgrades env in place until it reaches targetVersion.
// A missing migration stops the loop with the data migrated as far as it
// got: partially-migrated data beats corrupted data. Returns whether any
// migration ran.
func runMigrations(migrations []Migration, env *rawEnvelope, targetVersion int) (bool, error) {
	migrated := false
	for env.Version < targetVersion {
		next, ok := findMigration(migrations, env.Version)
		if !ok {
			log.Warn("No migration registered for save version %d; keeping data at version %d", env.Version, env.Version)
			return migrated, nil
		}
		newState, err := next.Apply(env.GameState)
		if err != nil {
			return migrated, fmt.Errorf("migration %d -> %d failed: %v", next.FromVersion, next.ToVersion, err)
		}
		env.GameState = newState
		env.Version = next.ToVersion
		migrated = true
		log.Info("Migrated save from version %d to %d", next.FromVersion, next.ToVersion)
	}
	return migrated, nil
}

func findMigration(migrations []Migration, fromVersion int) (Migration, bool) {
	for _, m := range migrations {
		if m.FromVersion == fromVersion {
			return m, true
		}
	}
	return Migration{}, false
}
