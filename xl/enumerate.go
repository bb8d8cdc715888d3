package xl

import (
	"slices"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
)

// Enumerate walks m in ascending key order, so that iterating a Go map does
// not make rendered output non-deterministic.
func Enumerate[M ~map[K]V, K constraints.Ordered, V any](m M, callback func(k K, v V)) {
	keys := maps.Keys(m)
	slices.Sort(keys)
	for _, k := range keys {
		callback(k, m[k])
	}
}

// SortedKeys returns m's keys in ascending order. Content-type writes and
// `#each` over an object context (in the engine and the rewrite pass) use it.
func SortedKeys[M ~map[K]V, K constraints.Ordered, V any](m M) []K {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
