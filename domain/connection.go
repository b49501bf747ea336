package domain

// ConnectionState is the client-side lifecycle of a session.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
	StateDisconnected ConnectionState = "disconnected"
)
