package coalesce

import (
	"context"
	"time"
)

// batch is a set of tuples closed together by the Batcher and handed to
// one Dispatcher invocation. uniqueArgs/indexMap implement the dedup
// contract of spec.md §3: when the config snapshot captured at batch
// creation has RemoveDuplicates set, structurally equal argument tuples
// collapse to a single entry in uniqueArgs, and indexMap[i] points every
// member back at its argument tuple's position there.
type batch[R any] struct {
	members    []*tuple[R]
	uniqueArgs [][]any
	indexMap   []int
	createdAt  time.Time
	cfg        *Config[R]
	ctx        context.Context // coordinator lifetime; cancelled on Close
}

// buildUniqueArgs populates uniqueArgs and indexMap from members,
// applying structural-equality dedup when cfg.RemoveDuplicates is set.
// First occurrence wins and records its position in insertion order, so
// uniqueArgs preserves submission order among the distinct argument
// tuples.
func (b *batch[R]) buildUniqueArgs() {
	b.indexMap = make([]int, len(b.members))

	if !b.cfg.RemoveDuplicates {
		b.uniqueArgs = make([][]any, len(b.members))
		for i, m := range b.members {
			b.uniqueArgs[i] = m.args
			b.indexMap[i] = i
		}
		return
	}

	// seen maps a structural-identity key to every uniqueArgs position
	// sharing it, not just the latest one — a 128-bit hashkey collision
	// between two distinct argument tuples must not shadow a later tuple
	// that structurally matches an earlier, non-adjacent chain member.
	seen := make(map[hashkeyKey][]int, len(b.members))
	b.uniqueArgs = make([][]any, 0, len(b.members))
	for i, m := range b.members {
		key := hashkeyKey{fast: m.identity.Fast, stable: m.identity.Stable}

		matched := -1
		for _, pos := range seen[key] {
			if argsEqual(b.uniqueArgs[pos], m.args) {
				matched = pos
				break
			}
		}
		if matched >= 0 {
			b.indexMap[i] = matched
			continue
		}

		pos := len(b.uniqueArgs)
		b.uniqueArgs = append(b.uniqueArgs, m.args)
		seen[key] = append(seen[key], pos)
		b.indexMap[i] = pos
	}
}

// hashkeyKey is a comparable mirror of hashkey.Key so it can be used as
// a Go map key directly.
type hashkeyKey struct {
	fast   uint64
	stable uint64
}
