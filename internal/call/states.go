package call

// State is the lifecycle phase of a direct call. Outgoing calls move
// Idle -> OfferingLocal -> AwaitingAnswer -> Connected -> Disconnecting;
// incoming calls enter at Ringing and move through Connecting. Ended,
// Cancelled and Rejected are terminal from any non-idle phase.
type State int

const (
	StateIdle State = iota
	StateRinging
	StateOfferingLocal
	StateAwaitingAnswer
	StateConnecting
	StateConnected
	StateDisconnecting
	StateEnded
	StateCancelled
	StateRejected
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateRinging:        "ringing",
	StateOfferingLocal:  "offering",
	StateAwaitingAnswer: "awaiting-answer",
	StateConnecting:     "connecting",
	StateConnected:      "connected",
	StateDisconnecting:  "disconnecting",
	StateEnded:          "ended",
	StateCancelled:      "cancelled",
	StateRejected:       "rejected",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Direction distinguishes calls we placed from calls we received.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Outgoing {
		return "outgoing"
	}
	return "incoming"
}
