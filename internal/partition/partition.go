// Package partition splits a session's players into balanced groups.
//
// Groups are at least MinGroupSize strong, sizes differ by at most one, and
// players pinned to the same label always land in the same group. The only
// source of nondeterminism is the caller's *rand.Rand, which decides which of
// several equivalent players fills a slot.
package partition

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/playperu/groupquest/internal/groupquest"
)

// MinGroupSize is the smallest group the game can be played with.
const MinGroupSize = 3

type Options struct {
	// MaxGroupSize caps every group. Zero means unbounded.
	MaxGroupSize int
}

type candidate struct {
	groups    int
	deviation int
	distance  int
}

// Partition assigns every player to exactly one group and returns the groups
// in ordinal order. pins maps a player id to a cluster label; pins for ids
// not present in players are ignored.
func Partition(players []string, targetSize int, pins map[string]string, rng *rand.Rand, opts Options) ([][]string, error) {
	if targetSize < MinGroupSize {
		return nil, fmt.Errorf("%w: target size must be at least %d", groupquest.ErrInvalidInput, MinGroupSize)
	}
	if opts.MaxGroupSize > 0 && targetSize > opts.MaxGroupSize {
		return nil, fmt.Errorf("%w: target size must be at most %d", groupquest.ErrInvalidInput, opts.MaxGroupSize)
	}
	n := len(players)
	if n < MinGroupSize {
		return nil, fmt.Errorf("%w: need at least %d players, have %d", groupquest.ErrInfeasible, MinGroupSize, n)
	}
	if rng == nil {
		rng = NewRand()
	}

	clusters, free, err := splitPinned(players, pins)
	if err != nil {
		return nil, err
	}

	cands := candidates(n, targetSize, clusters, opts)
	if len(cands) == 0 {
		return nil, infeasible(n, clusters, opts)
	}

	for _, c := range cands {
		groups, ok := place(n, c.groups, clusters, free, rng)
		if !ok {
			continue
		}
		if err := reconcile(players, groups); err != nil {
			return nil, err
		}
		return groups, nil
	}
	return nil, fmt.Errorf("%w: pinned clusters cannot be packed into groups of %d players", groupquest.ErrInfeasible, targetSize)
}

// splitPinned separates pinned players into clusters (in order of first
// appearance) from the free players.
func splitPinned(players []string, pins map[string]string) ([][]string, []string, error) {
	seen := make(map[string]bool, len(players))
	index := map[string]int{}
	var clusters [][]string
	var free []string

	for _, p := range players {
		if p == "" {
			return nil, nil, fmt.Errorf("%w: empty player id", groupquest.ErrInvalidInput)
		}
		if seen[p] {
			return nil, nil, fmt.Errorf("%w: duplicate player %q", groupquest.ErrInvalidInput, p)
		}
		seen[p] = true

		label := strings.TrimSpace(pins[p])
		if label == "" {
			free = append(free, p)
			continue
		}
		i, ok := index[label]
		if !ok {
			i = len(clusters)
			index[label] = i
			clusters = append(clusters, nil)
		}
		clusters[i] = append(clusters[i], p)
	}
	return clusters, free, nil
}

// candidates lists every feasible group count, best first.
func candidates(n, targetSize int, clusters [][]string, opts Options) []candidate {
	largest := 0
	for _, c := range clusters {
		largest = max(largest, len(c))
	}
	ideal := int(math.Round(float64(n) / float64(targetSize)))

	var out []candidate
	for g := max(1, len(clusters)); g <= n/MinGroupSize; g++ {
		lo, hi := n/g, (n+g-1)/g
		if lo < MinGroupSize {
			break
		}
		if opts.MaxGroupSize > 0 && hi > opts.MaxGroupSize {
			continue
		}
		if largest > hi {
			continue
		}
		r := n % g
		out = append(out, candidate{
			groups:    g,
			deviation: r*abs(lo+1-targetSize) + (g-r)*abs(lo-targetSize),
			distance:  abs(g - ideal),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.deviation != b.deviation {
			return a.deviation < b.deviation
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.groups < b.groups
	})
	return out
}

func infeasible(n int, clusters [][]string, opts Options) error {
	largest := 0
	for _, c := range clusters {
		largest = max(largest, len(c))
	}
	maxGroups := n / MinGroupSize
	switch {
	case len(clusters) > maxGroups:
		return fmt.Errorf("%w: %d pinned clusters need %d groups but %d players allow at most %d",
			groupquest.ErrInfeasible, len(clusters), len(clusters), n, maxGroups)
	case opts.MaxGroupSize > 0 && largest > opts.MaxGroupSize:
		return fmt.Errorf("%w: pinned cluster of %d exceeds the maximum group size of %d",
			groupquest.ErrInfeasible, largest, opts.MaxGroupSize)
	case opts.MaxGroupSize > 0 && (n+opts.MaxGroupSize-1)/opts.MaxGroupSize > maxGroups:
		return fmt.Errorf("%w: %d players cannot be split into groups of %d to %d",
			groupquest.ErrInfeasible, n, MinGroupSize, opts.MaxGroupSize)
	default:
		return fmt.Errorf("%w: pinned cluster of %d does not fit any achievable group size for %d players",
			groupquest.ErrInfeasible, largest, n)
	}
}

// place builds g slots by even split, packs clusters first-fit and fills the
// remaining room with free players.
func place(n, g int, clusters [][]string, free []string, rng *rand.Rand) ([][]string, bool) {
	sizes := make([]int, g)
	for i := range sizes {
		sizes[i] = n / g
		if i < n%g {
			sizes[i]++
		}
	}

	order := make([][]string, len(clusters))
	copy(order, clusters)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	sort.SliceStable(order, func(i, j int) bool { return len(order[i]) > len(order[j]) })

	groups := make([][]string, g)
	for _, c := range order {
		placed := false
		for i := range groups {
			if len(groups[i])+len(c) <= sizes[i] {
				groups[i] = append(groups[i], c...)
				placed = true
				break
			}
		}
		if !placed {
			return nil, false
		}
	}

	pool := make([]string, len(free))
	copy(pool, free)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	next := 0
	for i := range groups {
		for len(groups[i]) < sizes[i] && next < len(pool) {
			groups[i] = append(groups[i], pool[next])
			next++
		}
	}
	if next != len(pool) {
		return nil, false
	}

	for _, grp := range groups {
		rng.Shuffle(len(grp), func(i, j int) { grp[i], grp[j] = grp[j], grp[i] })
	}
	return groups, true
}

// reconcile checks that every player appears exactly once and that no group
// is undersized.
func reconcile(players []string, groups [][]string) error {
	count := make(map[string]int, len(players))
	total := 0
	for i, grp := range groups {
		if len(grp) < MinGroupSize {
			return fmt.Errorf("partition: group %d has %d members", i+1, len(grp))
		}
		for _, p := range grp {
			count[p]++
			total++
		}
	}
	if total != len(players) {
		return fmt.Errorf("partition: assigned %d of %d players", total, len(players))
	}
	for _, p := range players {
		if count[p] != 1 {
			return fmt.Errorf("partition: player %q assigned %d times", p, count[p])
		}
	}
	return nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
