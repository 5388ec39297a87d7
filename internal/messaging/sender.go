// Package messaging delivers replies to patients and carries inbound
// messages from the channels that poll instead of receiving webhooks.
package messaging

import "context"

// Sender delivers a text reply to a user of one channel.
type Sender interface {
	Send(ctx context.Context, to, text string) error
	Name() string
}

// Inbound is one user message as seen by the dialogue engine.
type Inbound struct {
	Channel     string
	UserID      string
	Text        string
	DisplayName string
	// MessageID is the provider's id, used to drop redeliveries. May be empty.
	MessageID string
}

// DefaultDisplayName is used when the provider gives no profile name.
const DefaultDisplayName = "Paciente"
