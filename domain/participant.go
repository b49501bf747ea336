// Package domain contains core concepts of the chat system.
// This file defines the identity a participant joins a channel with.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is the resolved form of an opaque identity token.
type Identity struct {
	Subject     string
	DisplayName string
}
