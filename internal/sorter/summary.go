package sorter

// Summary counts candidate outcomes for one run.
type Summary struct {
	Discovered           int // image candidates handed to the pipeline
	Skipped              int // non-image or ignored entries
	Placed               int // placed and recorded
	Duplicates           int
	DestinationConflicts int
	LedgerConflicts      int
	Unreadable           int
}

// Conflicts returns destination and ledger conflicts combined.
func (s Summary) Conflicts() int {
	return s.DestinationConflicts + s.LedgerConflicts
}

func (s *Summary) count(state State, conflict error) {
	switch state {
	case StateRecorded:
		s.Placed++
	case StateDuplicateSkipped:
		s.Duplicates++
	case StateUnreadable:
		s.Unreadable++
	case StateConflicted:
		if conflict == ErrDuplicateConflict {
			s.LedgerConflicts++
		} else {
			s.DestinationConflicts++
		}
	}
}
