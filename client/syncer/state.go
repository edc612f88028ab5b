package syncer

import "fmt"

// Kind is the lifecycle stage of an Update.
type Kind int

const (
	Queued Kind = iota
	Pending
	Synced
	Errored
	Superseded // replaced by a later change of the same key before it was sent
)

func (k Kind) String() string {
	switch k {
	case Queued:
		return "queued"
	case Pending:
		return "pending"
	case Synced:
		return "synced"
	case Errored:
		return "errored"
	case Superseded:
		return "superseded"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// State of an Update. Reason is set for Errored only.
type State struct {
	Kind   Kind
	Reason string
}

func (s State) String() string {
	if s.Kind == Errored {
		return s.Kind.String() + ": " + s.Reason
	}
	return s.Kind.String()
}

// Done reports whether the state is terminal.
func (s State) Done() bool {
	return s.Kind == Synced || s.Kind == Errored || s.Kind == Superseded
}

// pending moves a queued update in flight.
func (s State) pending() (State, error) {
	if s.Kind != Queued {
		return s, errTransition(s, Pending)
	}
	return State{Kind: Pending}, nil
}

// superseded drops a queued update in favor of a newer one.
func (s State) superseded() (State, error) {
	if s.Kind != Queued {
		return s, errTransition(s, Superseded)
	}
	return State{Kind: Superseded}, nil
}

func (s State) synced() (State, error) {
	if s.Kind != Pending {
		return s, errTransition(s, Synced)
	}
	return State{Kind: Synced}, nil
}

func (s State) errored(reason string) (State, error) {
	if s.Kind != Pending {
		return s, errTransition(s, Errored)
	}
	return State{Kind: Errored, Reason: reason}, nil
}

func errTransition(from State, to Kind) error {
	return fmt.Errorf("invalid transition %s -> %s", from.Kind, to)
}
