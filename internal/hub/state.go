package hub

// connState is the per-connection routing state. Only the hub goroutine
// reads or writes it.
type connState int

const (
	stateUnjoined connState = iota
	stateJoined
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateUnjoined:
		return "unjoined"
	case stateJoined:
		return "joined"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
