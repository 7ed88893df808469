// Package playlist picks the videos shown in a session.
package playlist

import (
	"math/rand/v2"
	"time"
)

type Item struct {
	ID       string
	Duration time.Duration
}

// Random shuffles items and greedily keeps every video that still fits in
// target+slack. Videos that do not fit are skipped, not a stopping point.
func Random(items []Item, target, slack time.Duration, rng *rand.Rand) []string {
	pool := append([]Item(nil), items...)
	if rng == nil {
		rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	} else {
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}

	var (
		out   []string
		total time.Duration
	)
	for _, it := range pool {
		if total+it.Duration <= target+slack {
			out = append(out, it.ID)
			total += it.Duration
		}
	}
	return out
}

// Duration sums the durations of the given ids.
func Duration(items []Item, ids []string) time.Duration {
	byID := make(map[string]time.Duration, len(items))
	for _, it := range items {
		byID[it.ID] = it.Duration
	}
	var total time.Duration
	for _, id := range ids {
		total += byID[id]
	}
	return total
}
