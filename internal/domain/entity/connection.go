package entity

// ConnectionState is the connectivity of the Remote Data Channel as last reported
type ConnectionState int

const (
	ConnectionDisconnected ConnectionState = iota
	ConnectionConnected
)

func (s ConnectionState) String() string {
	if s == ConnectionConnected {
		return "connected"
	}
	return "disconnected"
}

// ConnectionStateOf maps the boolean connectivity flag to a state
func ConnectionStateOf(connected bool) ConnectionState {
	if connected {
		return ConnectionConnected
	}
	return ConnectionDisconnected
}
