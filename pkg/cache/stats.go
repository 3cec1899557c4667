package cache

import "sync/atomic"

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	InMemory  int     `json:"in_memory"`
	HitRatio  float64 `json:"hit_ratio"`
}

type statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

func (s *statistics) snapshot(entries, inMemory int) Stats {
	st := Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Sets:      s.sets.Load(),
		Evictions: s.evictions.Load(),
		Entries:   entries,
		InMemory:  inMemory,
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRatio = float64(st.Hits) / float64(total)
	}
	return st
}
