// Package hashkey computes a structural identity key for an argument
// tuple, used by the dispatcher's deduplication step.
package hashkey

import (
	"fmt"
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
)

var seed = maphash.MakeSeed()

// Key is a 128-bit structural hash of an argument tuple, represented as
// two independent 64-bit halves the way pkg/hash.KeyToHash pairs a
// process-seeded hash with a stable one for a single scalar key. The key
// is computed from each argument's "%#v" text, so equal argument tuples
// (by reflect.DeepEqual) produce equal Keys only when that text holds no
// pointer address: two distinct pointers to equal values give different
// Keys, and are not deduplicated, wherever "%#v" prints them as
// addresses (for example a *int argument, or a pointer field inside a
// struct argument).
// Unequal tuples produce equal Keys only on collision, which callers must
// break with a DeepEqual tie-check before treating two tuples as
// duplicates.
type Key struct {
	Fast   uint64
	Stable uint64
}

// Of returns the structural Key for args. Args must be encodable by
// fmt's "%#v" verb; this holds for the argument types a coalescing
// callback sees in practice (comparable scalars, strings, and structs
// without function or channel fields).
func Of(args []any) Key {
	enc := canonicalize(args)
	return Key{
		Fast:   maphash.Bytes(seed, enc),
		Stable: xxhash.Sum64(enc),
	}
}

func canonicalize(args []any) []byte {
	buf := make([]byte, 0, 32*len(args))
	for i, a := range args {
		if i > 0 {
			buf = append(buf, '\x1f')
		}
		buf = appendRepr(buf, a)
	}
	return buf
}

func appendRepr(buf []byte, v any) []byte {
	return append(buf, fmt.Sprintf("%T:%#v", v, v)...)
}
