package config

import (
	"sort"
	"strings"
)

// OverrideMap maps dot-notation configuration paths to values that differ
// from the defaults. Only paths that resolve to a numeric leaf in the
// defaults tree are valid.
type OverrideMap map[string]float64

func (m OverrideMap) Copy() OverrideMap {
	newMap := make(OverrideMap, len(m))
	for path, value := range m {
		newMap[path] = value
	}
	return newMap
}

// ExtractNumericPaths flattens a nested tree into "A.B.C"-style paths,
// recursing into nested maps only, collecting numeric leaves.
func ExtractNumericPaths(tree map[string]any) map[string]float64 {
	paths := make(map[string]float64)
	extractNumericPaths(tree, "", paths)
	return paths
}

func extractNumericPaths(tree map[string]any, prefix string, paths map[string]float64) {
	for key, value := range tree {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			extractNumericPaths(v, path, paths)
		default:
			if n, ok := toNumber(value); ok {
				paths[path] = n
			}
		}
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// DiffAgainstDefaults returns the overrides needed to reproduce live from
// defaults. Paths absent from the defaults tree are ignored: defaults are
// the schema authority.
func DiffAgainstDefaults(live, defaults map[string]any) OverrideMap {
	livePaths := ExtractNumericPaths(live)
	defaultPaths := ExtractNumericPaths(defaults)

	overrides := make(OverrideMap)
	for path, defaultValue := range defaultPaths {
		liveValue, ok := livePaths[path]
		if !ok {
			continue
		}
		if liveValue != defaultValue {
			overrides[path] = liveValue
		}
	}
	return overrides
}

// ApplyOverrides deep-clones defaults and writes each override onto its
// path, creating intermediate maps as needed. The defaults argument is
// never mutated.
func ApplyOverrides(defaults map[string]any, overrides OverrideMap) map[string]any {
	tree := CloneTree(defaults)
	for path, value := range overrides {
		setPath(tree, path, value)
	}
	return tree
}

// ValidateOverrides reports override paths that do not resolve to a
// numeric leaf in the defaults tree, so callers can drop them.
func ValidateOverrides(overrides OverrideMap, defaults map[string]any) []string {
	defaultPaths := ExtractNumericPaths(defaults)
	var invalid []string
	for path := range overrides {
		if _, ok := defaultPaths[path]; !ok {
			invalid = append(invalid, path)
		}
	}
	sort.Strings(invalid)
	return invalid
}

// CloneTree deep-copies a configuration tree.
func CloneTree(tree map[string]any) map[string]any {
	newTree := make(map[string]any, len(tree))
	for key, value := range tree {
		if nested, ok := value.(map[string]any); ok {
			newTree[key] = CloneTree(nested)
			continue
		}
		newTree[key] = value
	}
	return newTree
}

func setPath(tree map[string]any, path string, value float64) {
	parts := strings.Split(path, ".")
	node := tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[part] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = value
}
