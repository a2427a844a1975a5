package session

// State is the lifecycle position of a Session.
type State int

const (
	Locked State = iota
	Unlocking
	Unlocked
	Locking
	// Failed means a save did not complete and memory may disagree with
	// disk. Only Lock is accepted.
	Failed
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	case Locking:
		return "locking"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
