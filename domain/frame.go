package domain

// Frame kinds exchanged over the socket besides ChatEvent kinds.
const (
	KindPing     Kind = "ping"
	KindPong     Kind = "pong"
	KindUserList Kind = "userList"
	KindError    Kind = "error"
)

// Intent is an inbound client frame.
type Intent struct {
	Kind    Kind    `json:"kind"`
	Content *string `json:"content,omitempty"`
}

type RosterFrame struct {
	Kind  Kind          `json:"kind"`
	Users []Participant `json:"users"`
}

func NewRosterFrame(users []Participant) RosterFrame {
	if users == nil {
		users = []Participant{}
	}
	return RosterFrame{Kind: KindUserList, Users: users}
}

type ErrorFrame struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Kind: KindError, Message: message}
}

type PongFrame struct {
	Kind Kind `json:"kind"`
}

func NewPongFrame() PongFrame {
	return PongFrame{Kind: KindPong}
}

// CloseCode mirrors the WebSocket close status sent when a session is refused or torn down.
type CloseCode int

const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	ClosePolicyViolation CloseCode = 1008
)
