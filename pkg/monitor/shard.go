package monitor

import (
	"fmt"
	"hash/fnv"

	rendezvous "github.com/dgryski/go-rendezvous"
)

// ShardAssigner stably assigns targets to one of a small set of named
// fan-out worker shards within a single region's tick. Rendezvous (HRW)
// hashing is used instead of key%N so that resizing max_concurrent (and
// therefore the shard count) between ticks only reshuffles the targets
// that land on the changed shard, not the whole page — the same property
// the teacher's ecosystem peer uses consistent hashing for when cluster
// membership changes.
type ShardAssigner struct {
	r      *rendezvous.Rendezvous
	shards []string
}

// NewShardAssigner builds an assigner over n numbered shards ("shard-0" .. "shard-(n-1)").
func NewShardAssigner(n int) *ShardAssigner {
	if n < 1 {
		n = 1
	}
	shards := make([]string, n)
	for i := range shards {
		shards[i] = fmt.Sprintf("shard-%d", i)
	}
	return &ShardAssigner{
		r:      rendezvous.New(shards, hashString),
		shards: shards,
	}
}

// ShardFor returns the shard name a given target id is assigned to.
func (a *ShardAssigner) ShardFor(targetID string) string {
	return a.r.Lookup(targetID)
}

// ShardIndex returns the numeric index of the shard a target id is
// assigned to, for indexing directly into a slice of worker channels.
func (a *ShardAssigner) ShardIndex(targetID string) int {
	name := a.ShardFor(targetID)
	for i, s := range a.shards {
		if s == name {
			return i
		}
	}
	return 0
}

// Partition buckets target ids into their assigned shards, preserving the
// relative order within each shard.
func (a *ShardAssigner) Partition(targetIDs []string) [][]string {
	buckets := make([][]string, len(a.shards))
	for _, id := range targetIDs {
		idx := a.ShardIndex(id)
		buckets[idx] = append(buckets[idx], id)
	}
	return buckets
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
