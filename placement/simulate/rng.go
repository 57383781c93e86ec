package simulate

import (
	"hash/fnv"
	"math/rand"
)

// Subsystem names for RNG isolation.
const (
	subsystemService = "service"
)

func subsystemArrival(user string) string { return "arrival/" + user }
func subsystemRoute(site string) string   { return "route/" + site }

// partitionedRNG hands out one deterministically seeded source per
// subsystem, so adding a user or a site never perturbs the random streams
// of the others. Not thread-safe.
type partitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

func newPartitionedRNG(seed int64) *partitionedRNG {
	return &partitionedRNG{seed: seed, subsystems: make(map[string]*rand.Rand)}
}

// forSubsystem returns the cached source of name, seeded with
// seed XOR fnv1a64(name).
func (p *partitionedRNG) forSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.seed ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
