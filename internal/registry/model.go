package registry

import (
	"strings"
	"time"
)

// TrackedProcess is a process the manager launched and still accounts for.
type TrackedProcess struct {
	ID         int       `json:"id"`
	Label      string    `json:"label"`
	LaunchedAt time.Time `json:"launched_at"`
	Command    []string  `json:"command"`

	// Done is closed once the launching side has reaped the process.
	// A nil channel means exit is never observed through the registry.
	Done <-chan struct{} `json:"-"`
}

// Exited reports whether the process has been reaped. A reaped pid may
// already belong to somebody else, so callers must not signal it.
func (p TrackedProcess) Exited() bool {
	if p.Done == nil {
		return false
	}
	select {
	case <-p.Done:
		return true
	default:
		return false
	}
}

// CommandLine renders the argv for logs.
func (p TrackedProcess) CommandLine() string {
	return strings.Join(p.Command, " ")
}

func (p TrackedProcess) clone() TrackedProcess {
	cp := p
	cp.Command = append([]string(nil), p.Command...)
	return cp
}
