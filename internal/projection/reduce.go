package projection

import (
	"fmt"
	"sort"
	"strings"
)

// reduceRanges deduplicates every path's values case-insensitively on
// their string-coerced form, preserving order of first appearance.
func reduceRanges(canonical map[string][]interface{}) map[string][]interface{} {
	out := make(map[string][]interface{}, len(canonical))
	for path, values := range canonical {
		out[path] = dedupeRange(values)
	}
	return out
}

func dedupeRange(values []interface{}) []interface{} {
	seen := make(map[string]bool, len(values))
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(fmt.Sprint(v))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// lineageIndex accumulates path -> value (string-coerced) -> set<sourceId>
// while records are folded; buildLineageView converts it to the stable,
// sorted form the LineageProjection document stores.
type lineageIndex map[string]map[string]map[string]bool

func (idx lineageIndex) add(path string, value interface{}, sourceId string) {
	key := fmt.Sprint(value)
	byValue, ok := idx[path]
	if !ok {
		byValue = make(map[string]map[string]bool)
		idx[path] = byValue
	}
	sources, ok := byValue[key]
	if !ok {
		sources = make(map[string]bool)
		byValue[key] = sources
	}
	sources[sourceId] = true
}

func (idx lineageIndex) view() map[string]map[string][]string {
	out := make(map[string]map[string][]string, len(idx))
	for path, byValue := range idx {
		out[path] = make(map[string][]string, len(byValue))
		for value, sources := range byValue {
			list := make([]string, 0, len(sources))
			for s := range sources {
				list = append(list, s)
			}
			sort.Strings(list)
			out[path][value] = list
		}
	}
	return out
}
