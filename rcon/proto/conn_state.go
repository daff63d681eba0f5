package proto

type ConnState int

const (
	// Conn is created and has never connected
	Idle ConnState = iota

	// Conn is dialing the remote endpoint
	Connecting

	// Conn is waiting for the digest seed challenge
	AwaitingChallenge

	// Conn sent the login hash and waits for the auth result
	Authenticating

	// Conn is authenticated and accepts commands
	Authenticated

	// Conn is torn down; it may be reused by a fresh Connect
	Closed
)

var stateNames = [...]string{
	Idle:              "Idle",
	Connecting:        "Connecting",
	AwaitingChallenge: "AwaitingChallenge",
	Authenticating:    "Authenticating",
	Authenticated:     "Authenticated",
	Closed:            "Closed",
}

func (s ConnState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Invalid"
	}
	return stateNames[s]
}
