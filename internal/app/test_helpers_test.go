package app

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"battproc/internal/config"
	"battproc/internal/manager"
	"battproc/internal/sampler"
	"battproc/internal/terminate"
)

// fakeTerminator serves name sweeps from an in-memory process table.
type fakeTerminator struct {
	mu    sync.Mutex
	procs map[int]string
	kills []int
}

func newFakeTerminator(procs map[int]string) *fakeTerminator {
	return &fakeTerminator{procs: procs}
}

func (f *fakeTerminator) Name() string { return "fake" }

func (f *fakeTerminator) Interrupt(ctx context.Context, pid int) error {
	return f.Kill(ctx, pid)
}

func (f *fakeTerminator) Kill(_ context.Context, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills = append(f.kills, pid)
	delete(f.procs, pid)
	return nil
}

func (f *fakeTerminator) Descendants(context.Context, int) []int { return nil }

func (f *fakeTerminator) KillRemnants(context.Context, int, []int) error { return nil }

func (f *fakeTerminator) Alive(_ context.Context, pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.procs[pid]
	return ok
}

func (f *fakeTerminator) Find(_ context.Context, m terminate.Matcher) ([]terminate.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []terminate.Match
	for pid, name := range f.procs {
		if _, ok := m.Match(name); ok {
			out = append(out, terminate.Match{PID: pid, Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

func (f *fakeTerminator) killed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.kills...)
	sort.Ints(out)
	return out
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.GracePeriod = 200 * time.Millisecond
	cfg.KillTimeout = time.Second
	cfg.SampleInterval = 50 * time.Millisecond
	cfg.Workloads = map[string]config.Workload{
		"browser": {Label: "browser", Command: []string{"sleep", "30"}, Patterns: []string{"msedge.exe", "chrome*"}},
		"office":  {Label: "office", Patterns: []string{"winword.exe"}},
	}
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, term terminate.Terminator) *App {
	t.Helper()
	opts := manager.Options{
		GracePeriod:  cfg.GracePeriod,
		KillTimeout:  cfg.KillTimeout,
		PollInterval: 10 * time.Millisecond,
		Terminator:   term,
		Sampler:      sampler.New(time.Second),
	}
	mgr := manager.New(opts)
	a, err := New(Options{Config: &cfg, Manager: mgr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		mgr.CleanupAllTracked(context.Background(), true)
	})
	return a
}
