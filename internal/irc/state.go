package irc

// State is the lifecycle position of the single IRC connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	// PostAuth follows Connected once user modes and NickServ identification
	// have been sent.
	PostAuth
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case PostAuth:
		return "post-auth"
	default:
		return "unknown"
	}
}

// CanSend reports whether PRIVMSG lines may be written in this state.
func (s State) CanSend() bool {
	return s == Connected || s == PostAuth
}
