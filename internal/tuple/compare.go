package tuple

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash"
)

// CompareField orders two field values of the same dynamic type. Supported
// types mirror what a schema-conformant row in this engine carries:
// integers, strings and byte slices. When a has one of these types, a b of
// a different type compares as that type's zero value; when a has any
// other type, both values are compared by their formatted representation.
// That is enough for a reference/test index implementation — a production index
// layer would own a real key_def comparator (spec.md §6, out of scope
// here).
func CompareField(a, b interface{}) int {
	switch av := a.(type) {
	case int:
		bv, _ := b.(int)
		return compareOrdered(av, bv)
	case int64:
		bv, _ := b.(int64)
		return compareOrdered(av, bv)
	case uint64:
		bv, _ := b.(uint64)
		return compareOrdered(av, bv)
	case string:
		bv, _ := b.(string)
		return compareOrdered(av, bv)
	case []byte:
		bv, _ := b.([]byte)
		return bytes.Compare(av, bv)
	default:
		as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
		return compareOrdered(as, bs)
	}
}

func compareOrdered[T int | int64 | uint64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// CompareParts compares two tuples over the field positions in parts, in
// order, short-circuiting at the first non-zero comparison. This is the
// primitive every ordered index's `tuple_compare` (spec.md §6) reduces to.
func CompareParts(a, b *Tuple, parts []int) int {
	for _, p := range parts {
		if c := CompareField(a.Field(p), b.Field(p)); c != 0 {
			return c
		}
	}
	return 0
}

// KeyString renders the field values at parts as a canonical string,
// suitable for hashing or as a hash-index bucket key. It is deliberately
// simple (fmt-based) since the point-hole hash table (spec.md §3 "Point-
// hole tracker") only needs a stable, collision-resistant-enough key, not
// a binary wire format.
func KeyString(t *Tuple, parts []int) string {
	var b bytes.Buffer
	for _, p := range parts {
		fmt.Fprintf(&b, "%v\x00", t.Field(p))
	}
	return b.String()
}

// HashKey hashes a canonical key string with xxhash, the bucketing
// function for the engine's hash indexes and for the point-hole table's
// (index identity, key bytes) composite key (spec.md §3 "Point-hole
// tracker", §4.3). Using a real hash function here (rather than the
// string itself as a map key) mirrors how FeatureBaseDB buckets its
// in-memory indexes.
func HashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}
