package app

import (
	"context"
	"strings"
)

// ListParams narrows the tracked-process listing.
type ListParams struct {
	Labels []string
}

// List reports tracked processes that are still running, each with a fresh
// resource sample.
func (a *App) List(ctx context.Context, params ListParams) ([]Process, error) {
	want := make(map[string]struct{}, len(params.Labels))
	for _, l := range params.Labels {
		if clean := strings.TrimSpace(l); clean != "" {
			want[clean] = struct{}{}
		}
	}

	infos := a.mgr.Tracked(ctx)
	procs := make([]Process, 0, len(infos))
	for _, info := range infos {
		if len(want) > 0 {
			if _, ok := want[info.Label]; !ok {
				continue
			}
		}
		procs = append(procs, procFromInfo(info))
	}
	return procs, nil
}
