package interfaces

import (
	"context"

	"starcall/pkg/types"
)

// Backend is the REST surface of the consultation service as consumed by
// the lifecycle coordinator. Exact paths are an implementation detail of
// internal/api; components depend only on these contracts.
type Backend interface {
	// CheckEligibility runs the pre-flight policy check for one provider
	// and action. The returned result drives a deterministic client-side
	// branch; no state is created by this call.
	CheckEligibility(ctx context.Context, providerID string, action types.Action) (*types.EligibilityResult, error)

	// CreateRequest registers a new pending request with the consultee's
	// intake details and returns the server-assigned record, including
	// its response deadline.
	CreateRequest(ctx context.Context, providerID string, action types.Action, details *types.IntakeDetails) (*types.PendingRequest, error)

	// CancelRequest cancels an outstanding request by id.
	CancelRequest(ctx context.Context, requestID string) error

	// JoinWaitlist registers a notify-when-available entry for an offline
	// provider.
	JoinWaitlist(ctx context.Context, providerID string, action types.Action) error

	// AcceptWaitlistInvitation accepts a server-pushed invitation. The
	// chat and call variants hit different endpoints; both return the
	// consultation the client must adopt.
	AcceptWaitlistInvitation(ctx context.Context, entryID string, action types.Action) (*types.ActiveConsultation, error)

	// RejectWaitlistInvitation declines a server-pushed invitation.
	RejectWaitlistInvitation(ctx context.Context, entryID string) error

	// GetActiveConsultation fetches the authoritative active session, or
	// nil when none exists. Used for reconnect reconciliation and
	// post-recharge refresh; remaining time is always server-computed.
	GetActiveConsultation(ctx context.Context) (*types.ActiveConsultation, error)

	// EndConsultation terminates the active session and returns the order
	// summary that feeds the rating step.
	EndConsultation(ctx context.Context, requestID, consultationID string) (*types.OrderSummary, error)

	// SubmitRating records the user's post-consultation review.
	SubmitRating(ctx context.Context, rating *types.Rating) error

	// GetWaitTime returns the provider's current expected wait in seconds.
	GetWaitTime(ctx context.Context, providerID string) (int, error)
}
