package interfaces

import "starcall/pkg/types"

// Route names the UI surfaces the coordinator can direct the user to.
// Rendering and navigation mechanics are out of scope; the coordinator
// only decides the destination.
type Route string

const (
	RouteHome             Route = "home"
	RouteLogin            Route = "login"
	RouteRecharge         Route = "recharge"
	RouteActiveChat       Route = "active_chat"
	RouteIncomingCall     Route = "incoming_call"
	RouteIntakeForm       Route = "intake_form"
	RouteRating           Route = "rating"
	RouteTopProviders     Route = "top_providers"
	RouteFullScreenInvite Route = "full_screen_invite"
	RouteWaitlistJoined   Route = "waitlist_joined"
)

// Presenter is the coordinator's outlet for user-visible effects: short
// notices, navigation, and the high-priority waitlist invitation surface.
type Presenter interface {
	// Notify shows a short, non-blocking user-visible message.
	Notify(message string)

	// Navigate directs the user to a route. arg carries the route's
	// subject id (consultation id, provider id) when one applies.
	Navigate(route Route, arg string)

	// PresentInvitation raises the full-screen waitlist invitation.
	PresentInvitation(entry *types.WaitlistEntry)

	// DismissInvitation tears the invitation surface down, whether the
	// user acted or the deadline lapsed.
	DismissInvitation()

	// PromptLowBalance shows the non-blocking low-balance prompt for the
	// active consultation.
	PromptLowBalance(secondsLeft int)

	// ShowRechargeButton reveals the prominent in-session recharge
	// affordance.
	ShowRechargeButton()

	// PromptRating opens the rating capture step after a consultation
	// ends.
	PromptRating(summary *types.OrderSummary)
}

// AlertSounder plays the audio alert for high-priority events. Playback
// is an external side effect, fire-and-forget.
type AlertSounder interface {
	Play()
	Stop()
}
