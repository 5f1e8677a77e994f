package sorter

import (
	"fmt"
	"io/fs"
	"time"
)

// State is a step of the per-file state machine.
type State int

const (
	StateDiscovered State = iota
	StateDigested
	StateDuplicateSkipped
	StatePlaced
	StateConflicted
	StateRecorded
	StateUnreadable
)

var stateNames = map[State]string{
	StateDiscovered:       "discovered",
	StateDigested:         "digested",
	StateDuplicateSkipped: "duplicate",
	StatePlaced:           "placed",
	StateConflicted:       "conflicted",
	StateRecorded:         "recorded",
	StateUnreadable:       "unreadable",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateDuplicateSkipped, StateConflicted, StateRecorded, StateUnreadable:
		return true
	}
	return false
}

// transitions lists the allowed next states. Placed -> Conflicted covers a
// ledger conflict after a successful placement.
var transitions = map[State][]State{
	StateDiscovered: {StateDigested, StateUnreadable},
	StateDigested:   {StateDuplicateSkipped, StatePlaced, StateConflicted},
	StatePlaced:     {StateRecorded, StateConflicted},
}

// Candidate is a discovered image file moving through the pipeline.
type Candidate struct {
	Path string
	Info fs.FileInfo

	// Date and DateSource are set once the date has been resolved.
	Date       time.Time
	DateSource string

	// Destination is set once a destination path has been computed.
	Destination string

	digest   Digest
	digested bool
	state    State
}

// NewCandidate creates a candidate in the Discovered state.
func NewCandidate(path string, info fs.FileInfo) *Candidate {
	return &Candidate{Path: path, Info: info}
}

// State returns the candidate's current state.
func (c *Candidate) State() State {
	return c.state
}

// Digest returns the content digest, computing it on first use.
func (c *Candidate) Digest(fsmgr FilesystemManager) (Digest, error) {
	if c.digested {
		return c.digest, nil
	}

	r, err := fsmgr.Open(c.Path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s: %w", c.Path, err)
	}
	defer r.Close()

	d, err := ComputeDigest(r)
	if err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", c.Path, err)
	}

	c.digest = d
	c.digested = true
	return d, nil
}

// advance moves the candidate to next, rejecting transitions the state
// machine does not allow.
func (c *Candidate) advance(next State) error {
	for _, allowed := range transitions[c.state] {
		if allowed == next {
			c.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid transition for %s: %s -> %s", c.Path, c.state, next)
}
