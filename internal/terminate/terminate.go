package terminate

import (
	"context"
	"os/exec"
)

// Terminator is the per-OS capability used by the process manager.
type Terminator interface {
	// Name identifies the strategy in logs.
	Name() string
	// Interrupt asks pid (and its group/tree where the OS allows) to exit.
	Interrupt(ctx context.Context, pid int) error
	// Kill forcibly ends pid and its descendants.
	Kill(ctx context.Context, pid int) error
	// Descendants lists the live descendants of pid, deepest first.
	Descendants(ctx context.Context, pid int) []int
	// KillRemnants forcibly ends what is left of a tree whose root pid has
	// already exited: the process group pid led, where the OS has one, and
	// every pid in tree that is still alive. The root itself is not signalled.
	KillRemnants(ctx context.Context, pid int, tree []int) error
	// Alive reports whether pid is still a live process. Zombies are dead.
	Alive(ctx context.Context, pid int) bool
	// Find lists live processes whose executable name matches m. The calling
	// process and its ancestors are never returned.
	Find(ctx context.Context, m Matcher) ([]Match, error)
}

// Match is one OS process selected by name.
type Match struct {
	PID     int
	Name    string
	Cmdline string
}

// Detach configures cmd so that it does not share the caller's process group
// and can be terminated as a unit later on.
func Detach(cmd *exec.Cmd) {
	configureSysProcAttr(cmd)
}
