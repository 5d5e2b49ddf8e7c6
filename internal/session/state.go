package session

// State is where a Session is in its lifecycle.
type State int

const (
	Unregistered State = iota
	Registering
	Active
	TamperPending
	Exiting
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registering:
		return "registering"
	case Active:
		return "active"
	case TamperPending:
		return "tamper_pending"
	case Exiting:
		return "exiting"
	default:
		return "unknown"
	}
}
