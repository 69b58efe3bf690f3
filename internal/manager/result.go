package manager

// Phase is the step a termination reached: Requested-Graceful,
// Escalated-Forced, then Confirmed-Absent or not.
type Phase string

const (
	// PhaseGraceful: the process left after the graceful request.
	PhaseGraceful Phase = "graceful"
	// PhaseEscalated: the grace period ran out and a forced kill ended it.
	PhaseEscalated Phase = "escalated"
	// PhaseForced: forced kill was requested up front.
	PhaseForced Phase = "forced"
	// PhaseAlreadyGone: nothing was running any more.
	PhaseAlreadyGone Phase = "already_gone"
	// PhaseUnconfirmed: the process could not be confirmed absent.
	PhaseUnconfirmed Phase = "unconfirmed"
	// PhaseRequested: a graceful request was sent and escalation is disabled.
	PhaseRequested Phase = "requested"
)

// Event is one action taken during a termination or sweep.
type Event struct {
	ID    int
	Label string
	Name  string
	Phase Phase
	Err   error
}

// Result aggregates the outcome of a termination call.
type Result struct {
	// Terminated counts OS processes confirmed ended by this call.
	Terminated int
	Events     []Event
	Warnings   []*TerminationWarning
}

func (r *Result) add(ev Event, counted bool) {
	r.Events = append(r.Events, ev)
	if counted {
		r.Terminated++
	}
}

func (r *Result) warn(w *TerminationWarning) {
	r.Warnings = append(r.Warnings, w)
}

func (r *Result) merge(o Result) {
	r.Terminated += o.Terminated
	r.Events = append(r.Events, o.Events...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}
