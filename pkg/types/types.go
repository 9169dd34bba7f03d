package types

import (
	"time"
)

// Action is the consultation mode a user may request from a provider.
type Action string

const (
	ActionChat Action = "chat"
	ActionCall Action = "call"
)

// RequestStatus enumerates the lifecycle states of a PendingRequest.
// Transitions: requested -> {accepted, rejected, cancelled, expired} and
// requested -> scheduled -> {accepted, expired}.
type RequestStatus string

const (
	StatusRequested RequestStatus = "requested"
	StatusScheduled RequestStatus = "scheduled"
	StatusAccepted  RequestStatus = "accepted"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
	StatusExpired   RequestStatus = "expired"
)

// Terminal reports whether no further transition may be applied to a
// request in this status. Once terminal, local timer fires and duplicate
// server events against the same request are no-ops.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// UserSession identifies the authenticated principal and the session bound
// to one physical connection. Owned exclusively by the session channel.
type UserSession struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// Provider is the consultation-delivering counterparty.
type Provider struct {
	ID                string  `json:"_id"`
	Name              string  `json:"name"`
	Image             string  `json:"image"`
	IsCertified       bool    `json:"isCertified"`
	IsOnline          bool    `json:"isOnline"`
	CommunicationMode string  `json:"communicationMode,omitempty"` // empty means both chat and call
	ChargePerMinute   float64 `json:"chargeAfterDiscount"`
}

// SupportsAction reports whether the provider offers the given mode.
func (p *Provider) SupportsAction(action Action) bool {
	if p.CommunicationMode == "" {
		return true
	}
	return p.CommunicationMode == string(action)
}

// PendingRequest is one in-flight chat/call solicitation awaiting a
// provider response. Mutated only by a server event naming its id or by
// its own deadline timer, whichever arrives first.
type PendingRequest struct {
	ID               string        `json:"_id"`
	ProviderID       string        `json:"astrologerId"`
	ProviderName     string        `json:"astroName"`
	ProviderImage    string        `json:"astroImage"`
	Action           Action        `json:"action"`
	Status           RequestStatus `json:"status"`
	ResponseDeadline *time.Time    `json:"responseDeadline,omitempty"`
	ScheduledTime    *time.Time    `json:"scheduledTime,omitempty"`
	ChargePerMinute  float64       `json:"astroCharges"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// ActiveDeadline returns the timestamp currently driving the request's
// deadline timer: the response deadline while requested, the scheduled
// time once scheduled. Terminal requests have no active deadline.
func (r *PendingRequest) ActiveDeadline() (time.Time, bool) {
	switch r.Status {
	case StatusRequested:
		if r.ResponseDeadline != nil {
			return *r.ResponseDeadline, true
		}
	case StatusScheduled:
		if r.ScheduledTime != nil {
			return *r.ScheduledTime, true
		}
	}
	return time.Time{}, false
}

// WaitlistState enumerates the lifecycle states of a WaitlistEntry.
type WaitlistState string

const (
	WaitlistJoined   WaitlistState = "joined"
	WaitlistInvited  WaitlistState = "invited"
	WaitlistAccepted WaitlistState = "accepted"
	WaitlistRejected WaitlistState = "rejected"
	WaitlistExpired  WaitlistState = "expired"
)

// Terminal reports whether the entry no longer counts against the
// outstanding-commitment cap.
func (s WaitlistState) Terminal() bool {
	switch s {
	case WaitlistAccepted, WaitlistRejected, WaitlistExpired:
		return true
	default:
		return false
	}
}

// WaitlistEntry is a "notify me when available" registration. It carries
// no deadline of its own until the provider pushes an invitation.
type WaitlistEntry struct {
	ID               string        `json:"_id"`
	ProviderID       string        `json:"astrologerId"`
	ProviderName     string        `json:"astrologerName"`
	ProviderImage    string        `json:"astrologerImage"`
	Action           Action        `json:"action"`
	State            WaitlistState `json:"state"`
	JoinedAt         time.Time     `json:"joinedAt"`
	ResponseDeadline *time.Time    `json:"responseDeadline,omitempty"`
}

// ActiveConsultation is the single in-progress, balance-consuming session.
// At most one exists per user at any time.
type ActiveConsultation struct {
	ID              string    `json:"_id"`
	RequestID       string    `json:"chatRequestId"`
	ProviderID      string    `json:"astrologerId"`
	ProviderName    string    `json:"astrologerName"`
	ProviderImage   string    `json:"astrologerImage"`
	Action          Action    `json:"action"`
	ChargePerMinute float64   `json:"chargePerMinute"`
	TimeRemaining   int       `json:"timeRemaining"` // seconds, always server-computed
	AcceptedAt      time.Time `json:"acceptedAt"`
}

// Deadline converts the server-supplied remaining seconds into an absolute
// timestamp relative to now. The client never invents its own duration.
func (c *ActiveConsultation) Deadline(now time.Time) time.Time {
	return now.Add(time.Duration(c.TimeRemaining) * time.Second)
}

// EligibilityResult is the decision payload returned by the backend's
// check-eligibility endpoint. Field names mirror the wire contract.
type EligibilityResult struct {
	Success              bool   `json:"success"`
	IsOnline             bool   `json:"isOnline"`
	IsFreeAvailable      bool   `json:"isFreeAvailable"`
	FreeChatLimitPerDay  int    `json:"freeChatLimitPerDay"`
	IsProviderFree       bool   `json:"isAstroAvailableForFree"`
	InsufficientBalance  bool   `json:"insufficientBalance"`
	IsAlreadyRequested   bool   `json:"isAlreadyChatRequested"`
	IsMaxWaitlistCrossed bool   `json:"isMaxWaitlistCrossed"`
	HasActiveSession     bool   `json:"isActiveChat"`
	Message              string `json:"message,omitempty"`
}

// IntakeDetails is the consultee profile submitted when creating a
// request. Validated client-side before the create call.
type IntakeDetails struct {
	Name       string    `json:"name" validate:"required,min=1,max=100"`
	Gender     string    `json:"gender" validate:"required,oneof=male female other"`
	BirthDate  time.Time `json:"birthDate" validate:"required"`
	BirthTime  time.Time `json:"birthTime" validate:"required"`
	BirthPlace string    `json:"birthPlace" validate:"required,min=1,max=200"`
}

// OrderSummary is returned when a consultation ends and feeds the rating
// capture step.
type OrderSummary struct {
	OrderID         string  `json:"orderId"`
	ProviderID      string  `json:"astrologerId"`
	ProviderName    string  `json:"astrologerName"`
	DurationSeconds int     `json:"durationSeconds"`
	AmountCharged   float64 `json:"amountCharged"`
}

// Rating is the user's post-consultation review.
type Rating struct {
	OrderID     string `json:"orderId" validate:"required"`
	Stars       int    `json:"stars" validate:"required,min=1,max=5"`
	Description string `json:"description" validate:"max=1000"`
}

// MissedCall is the durable record written when a provider's call could
// not be delivered.
type MissedCall struct {
	ProviderID   string    `json:"astrologerId"`
	ProviderName string    `json:"astrologerName"`
	Timestamp    time.Time `json:"timestamp"`
}

// ChatMessage is one message inside an active consultation.
type ChatMessage struct {
	ID             string    `json:"_id"`
	ConsultationID string    `json:"chatId"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	Attachment     string    `json:"attachment,omitempty"`
	SentAt         time.Time `json:"sentAt"`
}
