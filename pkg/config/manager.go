package config

import (
	"fmt"
	"sync"

	"github.com/hollowfen/pasture/pkg/log"
)

// Manager owns an immutable defaults snapshot and the current override
// set. The snapshot is cloned once at construction and never mutated, so
// it stays a trustworthy comparison baseline for diffs.
type Manager struct {
	lock      sync.RWMutex
	defaults  map[string]any
	paths     map[string]float64
	overrides OverrideMap
}

func NewManager(defaults map[string]any) *Manager {
	snapshot := CloneTree(defaults)
	return &Manager{
		defaults:  snapshot,
		paths:     ExtractNumericPaths(snapshot),
		overrides: make(OverrideMap),
	}
}

// Effective returns a fresh tree of defaults with the current overrides
// applied. Callers own the returned tree.
func (m *Manager) Effective() map[string]any {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return ApplyOverrides(m.defaults, m.overrides)
}

// Value returns the effective value at path.
func (m *Manager) Value(path string) (float64, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	defaultValue, ok := m.paths[path]
	if !ok {
		return 0, fmt.Errorf("unknown config path: %s", path)
	}
	if override, ok := m.overrides[path]; ok {
		return override, nil
	}
	return defaultValue, nil
}

// SetValue overrides the value at path. Setting a path back to its
// default removes the override so the persisted map stays sparse.
func (m *Manager) SetValue(path string, value float64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	defaultValue, ok := m.paths[path]
	if !ok {
		return fmt.Errorf("unknown config path: %s", path)
	}
	if value == defaultValue {
		delete(m.overrides, path)
		return nil
	}
	m.overrides[path] = value
	return nil
}

// ResetValue removes the override at path, if any.
func (m *Manager) ResetValue(path string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.paths[path]; !ok {
		return fmt.Errorf("unknown config path: %s", path)
	}
	delete(m.overrides, path)
	return nil
}

// ResetAll removes every override.
func (m *Manager) ResetAll() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.overrides = make(OverrideMap)
}

// Overrides returns a copy of the current override set.
func (m *Manager) Overrides() OverrideMap {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.overrides.Copy()
}

// Restore replaces the override set with overrides loaded from a save,
// dropping any path the current schema no longer recognizes. It returns
// the dropped paths.
func (m *Manager) Restore(overrides OverrideMap) []string {
	m.lock.Lock()
	defer m.lock.Unlock()

	invalid := ValidateOverrides(overrides, m.defaults)
	dropped := make(map[string]bool, len(invalid))
	for _, path := range invalid {
		log.Warn("Dropping config override for unknown path %s", path)
		dropped[path] = true
	}

	m.overrides = make(OverrideMap, len(overrides))
	for path, value := range overrides {
		if dropped[path] {
			continue
		}
		m.overrides[path] = value
	}
	return invalid
}
