package interfaces

import "starcall/pkg/types"

// CommandSender emits typed outbound commands over the session channel.
// Components hold this narrow contract rather than the channel itself so
// command emission can be tested without a live connection.
type CommandSender interface {
	// Send delivers the command if connected, queues it while the channel
	// is reconnecting, and returns an error once the channel is closed.
	Send(cmd types.Command) error
}

// ConsultationOwner is the hand-off target for a consultation adopted
// outside the store's accepted-event path (waitlist invitation accept,
// reconnect reconciliation).
type ConsultationOwner interface {
	// Begin adopts the consultation as the single active session.
	// Idempotent per consultation id.
	Begin(consultation *types.ActiveConsultation) error
}
