package manager

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battproc/internal/registry"
	"battproc/internal/sampler"
	"battproc/internal/terminate"
)

type fakeProc struct {
	name            string
	alive           bool
	ignoreInterrupt bool
	unkillable      bool
}

type fakeTerminator struct {
	mu         sync.Mutex
	procs      map[int]*fakeProc
	interrupts []int
	kills      []int
	findErr    error
	finds      int
	// appearAfter makes pending procs visible once Find has run that many times.
	appearAfter int
	pending     map[int]*fakeProc
	trees       map[int][]int
	remnants    map[int][]int
}

func newFakeTerminator() *fakeTerminator {
	return &fakeTerminator{procs: make(map[int]*fakeProc), pending: make(map[int]*fakeProc)}
}

func (f *fakeTerminator) add(pid int, p *fakeProc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.alive = true
	f.procs[pid] = p
}

func (f *fakeTerminator) Name() string { return "fake" }

func (f *fakeTerminator) Interrupt(_ context.Context, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts = append(f.interrupts, pid)
	if p := f.procs[pid]; p != nil && !p.ignoreInterrupt {
		p.alive = false
	}
	return nil
}

func (f *fakeTerminator) Kill(_ context.Context, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills = append(f.kills, pid)
	if p := f.procs[pid]; p != nil && !p.unkillable {
		p.alive = false
	}
	return nil
}

func (f *fakeTerminator) Descendants(_ context.Context, pid int) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.trees[pid]...)
}

func (f *fakeTerminator) KillRemnants(_ context.Context, pid int, tree []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remnants == nil {
		f.remnants = make(map[int][]int)
	}
	f.remnants[pid] = append([]int(nil), tree...)
	for _, child := range tree {
		if p := f.procs[child]; p != nil && !p.unkillable {
			p.alive = false
		}
	}
	return nil
}

func (f *fakeTerminator) Alive(_ context.Context, pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.procs[pid]
	return p != nil && p.alive
}

func (f *fakeTerminator) Find(_ context.Context, m terminate.Matcher) ([]terminate.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.finds++
	if f.finds >= f.appearAfter {
		for pid, p := range f.pending {
			p.alive = true
			f.procs[pid] = p
			delete(f.pending, pid)
		}
	}
	var out []terminate.Match
	for pid, p := range f.procs {
		if !p.alive {
			continue
		}
		if _, ok := m.Match(p.name); ok {
			out = append(out, terminate.Match{PID: pid, Name: p.name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

type nopSampler struct{}

func (nopSampler) Sample(context.Context, int) (sampler.Sample, bool) { return sampler.Sample{}, false }
func (nopSampler) Forget(int)                                         {}

func newFakeManager(term *fakeTerminator) *Manager {
	return New(Options{
		GracePeriod:  150 * time.Millisecond,
		KillTimeout:  150 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		Terminator:   term,
		Sampler:      nopSampler{},
	})
}

func TestNewAppliesDefaults(t *testing.T) {
	m := New(Options{Terminator: newFakeTerminator(), Sampler: nopSampler{}})
	assert.Equal(t, 5*time.Second, m.grace)
	assert.Equal(t, 3*time.Second, m.killTimeout)
	assert.True(t, m.escalate)
	assert.Equal(t, 4, m.parallelism)
	assert.Equal(t, "fake", m.Strategy())
	assert.Equal(t, 0, m.Len())
}

func TestLaunchEmptyCommand(t *testing.T) {
	m := newFakeManager(newFakeTerminator())
	_, err := m.LaunchAndTrack(context.Background(), nil, "browser")
	require.Error(t, err)

	var lerr *LaunchError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "browser", lerr.Label)
	assert.True(t, errdefs.IsInvalidArgument(err))
	assert.Equal(t, 0, m.Len())
}

func TestLaunchMissingExecutable(t *testing.T) {
	m := newFakeManager(newFakeTerminator())
	cmd := []string{"battproc-definitely-not-installed", "--flag"}
	_, err := m.LaunchAndTrack(context.Background(), cmd, "word-doc-1")
	require.Error(t, err)

	var lerr *LaunchError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "word-doc-1", lerr.Label)
	assert.Equal(t, cmd, lerr.Command)
	assert.True(t, errdefs.IsNotFound(err), "expected not-found class, got %v", err)
	assert.Equal(t, 0, m.Len())
}

func TestLaunchRejectsBadLabel(t *testing.T) {
	m := newFakeManager(newFakeTerminator())
	_, err := m.LaunchAndTrack(context.Background(), []string{"sleep", "1"}, "tab\x07")
	require.Error(t, err)
	assert.True(t, errdefs.IsInvalidArgument(err))
	assert.Equal(t, 0, m.Len())
}

func TestTerminateUntrackedIsNoop(t *testing.T) {
	term := newFakeTerminator()
	m := newFakeManager(term)

	res := m.Terminate(context.Background(), ByID(4242), true)
	assert.Equal(t, 0, res.Terminated)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Events)

	res = m.Terminate(context.Background(), ByLabel("browser"), false)
	assert.Equal(t, 0, res.Terminated)
	assert.Empty(t, term.kills)
	assert.Empty(t, term.interrupts)
}

func TestCleanupEmptyRegistry(t *testing.T) {
	m := newFakeManager(newFakeTerminator())
	res := m.CleanupAllTracked(context.Background(), false)
	assert.Equal(t, 0, res.Terminated)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 0, m.Len())
}

func TestSampleUntrackedUnavailable(t *testing.T) {
	m := newFakeManager(newFakeTerminator())
	_, ok := m.Sample(context.Background(), 99999)
	assert.False(t, ok)
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "id=12", ByID(12).String())
	assert.Equal(t, "label=browser", ByLabel("browser").String())
}

func TestSweepMatchesOnlyPatterns(t *testing.T) {
	term := newFakeTerminator()
	term.add(100, &fakeProc{name: "msedge.exe"})
	term.add(101, &fakeProc{name: "msedge.exe"})
	term.add(200, &fakeProc{name: "winword.exe"})
	term.add(300, &fakeProc{name: "explorer.exe"})
	term.add(301, &fakeProc{name: "msedgewebview2.exe"})
	m := newFakeManager(term)

	res := m.TerminateByName(context.Background(), []string{"msedge.exe", "WINWORD.EXE"}, true)
	assert.Equal(t, 3, res.Terminated)
	assert.Empty(t, res.Warnings)
	assert.ElementsMatch(t, []int{100, 101, 200}, term.kills)
	assert.Empty(t, term.interrupts)
	assert.True(t, term.Alive(context.Background(), 300))
	assert.True(t, term.Alive(context.Background(), 301))
	for _, ev := range res.Events {
		assert.Equal(t, PhaseForced, ev.Phase)
	}
}

func TestSweepGracefulThenEscalates(t *testing.T) {
	term := newFakeTerminator()
	term.add(10, &fakeProc{name: "vlc"})
	term.add(11, &fakeProc{name: "vlc", ignoreInterrupt: true})
	m := newFakeManager(term)

	res := m.TerminateByName(context.Background(), []string{"vlc"}, false)
	assert.Equal(t, 2, res.Terminated)
	assert.Empty(t, res.Warnings)
	assert.ElementsMatch(t, []int{10, 11}, term.interrupts)
	assert.Equal(t, []int{11}, term.kills)

	phases := map[int]Phase{}
	for _, ev := range res.Events {
		phases[ev.ID] = ev.Phase
	}
	assert.Equal(t, PhaseGraceful, phases[10])
	assert.Equal(t, PhaseEscalated, phases[11])
}

func TestSweepReportsSurvivors(t *testing.T) {
	term := newFakeTerminator()
	term.add(7, &fakeProc{name: "excel.exe", ignoreInterrupt: true, unkillable: true})
	m := newFakeManager(term)

	res := m.TerminateByName(context.Background(), []string{"excel.exe"}, false)
	assert.Equal(t, 0, res.Terminated)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 7, res.Warnings[0].ID)
	assert.Equal(t, "excel.exe", res.Warnings[0].Name)
	require.Len(t, res.Events, 1)
	assert.Equal(t, PhaseUnconfirmed, res.Events[0].Phase)
}

func TestSweepEmptyPatternSetIsNoop(t *testing.T) {
	term := newFakeTerminator()
	term.add(1000, &fakeProc{name: "chrome"})
	m := newFakeManager(term)

	res := m.TerminateByName(context.Background(), nil, true)
	assert.Equal(t, 0, res.Terminated)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, term.kills)
	assert.True(t, term.Alive(context.Background(), 1000))
}

func TestSweepInvalidPatternWarns(t *testing.T) {
	term := newFakeTerminator()
	m := newFakeManager(term)
	res := m.TerminateByName(context.Background(), []string{"/usr/bin/chrome"}, true)
	assert.Equal(t, 0, res.Terminated)
	require.Len(t, res.Warnings, 1)
	assert.Empty(t, term.kills)
}

func TestSweepEnumerationFailureWarns(t *testing.T) {
	term := newFakeTerminator()
	term.findErr = errors.New("proc unavailable")
	m := newFakeManager(term)
	res := m.TerminateByName(context.Background(), []string{"chrome"}, true)
	require.Len(t, res.Warnings, 1)
	assert.ErrorContains(t, res.Warnings[0], "proc unavailable")
}

func TestMatchingDryRun(t *testing.T) {
	term := newFakeTerminator()
	term.add(5, &fakeProc{name: "firefox"})
	term.add(6, &fakeProc{name: "bash"})
	m := newFakeManager(term)

	matches, err := m.Matching(context.Background(), []string{"firefox*"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 5, matches[0].PID)
	assert.Empty(t, term.kills)

	_, err = m.Matching(context.Background(), []string{""})
	require.Error(t, err)
}

func TestWaitForProcessStart(t *testing.T) {
	term := newFakeTerminator()
	term.appearAfter = 2
	term.pending[77] = &fakeProc{name: "vlc.exe"}
	m := newFakeManager(term)

	assert.True(t, m.WaitForProcessStart(context.Background(), []string{"vlc"}, 3*time.Second))
	assert.False(t, m.WaitForProcessStart(context.Background(), []string{"winword"}, 600*time.Millisecond))
	assert.False(t, m.WaitForProcessStart(context.Background(), nil, time.Second))
}

func TestGracefulTerminateReapsCollectedTree(t *testing.T) {
	term := newFakeTerminator()
	term.add(500, &fakeProc{name: "sh"})
	term.add(501, &fakeProc{name: "sleep", ignoreInterrupt: true})
	term.trees = map[int][]int{500: {501}}
	m := newFakeManager(term)
	_, err := m.reg.Add(registry.TrackedProcess{ID: 500, Label: "office"})
	require.NoError(t, err)

	res := m.Terminate(context.Background(), ByID(500), false)
	assert.Equal(t, 1, res.Terminated)
	require.Len(t, res.Events, 1)
	assert.Equal(t, PhaseGraceful, res.Events[0].Phase)
	assert.Equal(t, []int{501}, term.remnants[500])
	assert.False(t, term.Alive(context.Background(), 501))
	assert.Empty(t, term.kills)
}

func TestEscalatedTerminateReapsCollectedTree(t *testing.T) {
	term := newFakeTerminator()
	term.add(600, &fakeProc{name: "sh", ignoreInterrupt: true})
	term.add(601, &fakeProc{name: "sleep", ignoreInterrupt: true})
	term.trees = map[int][]int{600: {601}}
	m := newFakeManager(term)
	_, err := m.reg.Add(registry.TrackedProcess{ID: 600, Label: "video"})
	require.NoError(t, err)

	res := m.CleanupAllTracked(context.Background(), false)
	assert.Equal(t, 1, res.Terminated)
	require.Len(t, res.Events, 1)
	assert.Equal(t, PhaseEscalated, res.Events[0].Phase)
	assert.Equal(t, []int{601}, term.remnants[600])
	assert.False(t, term.Alive(context.Background(), 601))
}

func TestForcedTerminateSkipsRemnantPass(t *testing.T) {
	term := newFakeTerminator()
	term.add(700, &fakeProc{name: "sh"})
	term.trees = map[int][]int{700: {701}}
	m := newFakeManager(term)
	_, err := m.reg.Add(registry.TrackedProcess{ID: 700, Label: "browser"})
	require.NoError(t, err)

	res := m.Terminate(context.Background(), ByID(700), true)
	assert.Equal(t, 1, res.Terminated)
	assert.Equal(t, []int{700}, term.kills)
	assert.Empty(t, term.remnants)
}
