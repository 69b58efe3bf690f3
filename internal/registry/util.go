package registry

import (
	"sort"
	"time"
)

func now() time.Time {
	return time.Now().UTC()
}

func sortByID(ps []TrackedProcess) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
