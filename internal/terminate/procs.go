package terminate

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

const maxAncestry = 64

// find enumerates live processes and applies m. Processes that vanish or deny
// access while being inspected are skipped.
func find(ctx context.Context, m Matcher) ([]Match, error) {
	if m.Empty() {
		return nil, nil
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	protected := selfAndAncestors(ctx)

	var out []Match
	for _, p := range procs {
		pid := int(p.Pid)
		if _, skip := protected[pid]; skip || pid <= 1 {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		if _, ok := m.Match(name); !ok {
			continue
		}
		if isZombie(ctx, p) {
			continue
		}
		cmdline, _ := p.CmdlineWithContext(ctx)
		out = append(out, Match{PID: pid, Name: name, Cmdline: cmdline})
	}
	slices.SortFunc(out, func(a, b Match) int { return a.PID - b.PID })
	return out, nil
}

// alive is the OS absence check shared by both strategies.
func alive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !exists {
		return false
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return !errors.Is(err, process.ErrorProcessNotRunning)
	}
	return !isZombie(ctx, p)
}

func isZombie(ctx context.Context, p *process.Process) bool {
	status, err := p.StatusWithContext(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(status, process.Zombie)
}

// descendants returns every transitive child of pid, deepest first.
func descendants(ctx context.Context, pid int) []int {
	root, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil
	}
	var out []int
	seen := map[int32]struct{}{root.Pid: {}}
	var walk func(p *process.Process)
	walk = func(p *process.Process) {
		children, err := p.ChildrenWithContext(ctx)
		if err != nil {
			return
		}
		for _, child := range children {
			if _, ok := seen[child.Pid]; ok {
				continue
			}
			seen[child.Pid] = struct{}{}
			walk(child)
			out = append(out, int(child.Pid))
		}
	}
	walk(root)
	return out
}

func selfAndAncestors(ctx context.Context) map[int]struct{} {
	self := os.Getpid()
	out := map[int]struct{}{self: {}}
	pid := int32(self)
	for i := 0; i < maxAncestry; i++ {
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			break
		}
		ppid, err := p.PpidWithContext(ctx)
		if err != nil || ppid <= 0 || ppid == pid {
			break
		}
		out[int(ppid)] = struct{}{}
		pid = ppid
	}
	return out
}

// String prefers the full command line for logs.
func (m Match) String() string {
	if strings.TrimSpace(m.Cmdline) != "" {
		return m.Cmdline
	}
	return m.Name
}
