// Package eligibility implements the pre-flight policy check run before
// any consultation request is created, and the intake step that creates
// the request once the check passes.
package eligibility

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"starcall/internal/api"
	"starcall/pkg/interfaces"
	"starcall/pkg/types"
)

// DefaultMaxCommitments caps simultaneous non-terminal waitlist entries
// and pending requests combined.
const DefaultMaxCommitments = 10

// Outcome is the terminal branch of an eligibility evaluation.
type Outcome int

const (
	OutcomeProceed Outcome = iota
	OutcomeOpenWaitlist
	OutcomeRecharge
	OutcomeBlock
	OutcomeLogin
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeProceed:
		return "proceed"
	case OutcomeOpenWaitlist:
		return "open_waitlist"
	case OutcomeRecharge:
		return "recharge"
	case OutcomeBlock:
		return "block"
	case OutcomeLogin:
		return "login"
	default:
		return "unknown"
	}
}

// Decision is the result of one evaluation. Every abort branch is
// terminal and side-effect-free beyond its user-visible message.
type Decision struct {
	Outcome Outcome
	Message string
}

// CommitmentCounter exposes the outstanding non-terminal commitments one
// collection holds. The request store and the waitlist coordinator both
// satisfy it; the gate sums them into one authoritative count.
type CommitmentCounter interface {
	OutstandingCount() int
	HasOutstanding(providerID string) bool
}

// ActiveChecker reports whether an active consultation exists.
type ActiveChecker interface {
	Active() (types.ActiveConsultation, bool)
}

// RequestSink receives the pending request created by the intake step.
type RequestSink interface {
	Add(req *types.PendingRequest) error
}

// Config tunes the gate.
type Config struct {
	// MaxCommitments caps pending requests plus waitlist entries
	// combined. Zero selects DefaultMaxCommitments.
	MaxCommitments int
}

func (c *Config) applyDefaults() {
	if c.MaxCommitments <= 0 {
		c.MaxCommitments = DefaultMaxCommitments
	}
}

// Gate is the eligibility gate. One remote check-eligibility call
// followed by deterministic client-side branching.
type Gate struct {
	backend        interfaces.Backend
	presenter      interfaces.Presenter
	requests       CommitmentCounter
	waitlist       CommitmentCounter
	active         ActiveChecker
	sink           RequestSink
	validate       *validator.Validate
	maxCommitments int
	logger         zerolog.Logger
}

// NewGate creates an eligibility gate.
func NewGate(backend interfaces.Backend, presenter interfaces.Presenter,
	requests CommitmentCounter, waitlist CommitmentCounter, active ActiveChecker, sink RequestSink, cfg Config) *Gate {
	cfg.applyDefaults()
	return &Gate{
		backend:        backend,
		presenter:      presenter,
		requests:       requests,
		waitlist:       waitlist,
		active:         active,
		sink:           sink,
		validate:       validator.New(),
		maxCommitments: cfg.MaxCommitments,
		logger:         log.With().Str("component", "eligibility").Logger(),
	}
}

// Evaluate runs the full pre-flight ladder for one provider and action.
// Presentation side effects (notices, navigation) happen here exactly as
// the decision dictates; no request or waitlist state is created on any
// abort branch.
func (g *Gate) Evaluate(ctx context.Context, user *types.UserSession, provider *types.Provider, action types.Action) Decision {
	decision := g.evaluate(ctx, user, provider, action)
	g.logger.Info().Str("provider_id", provider.ID).Str("action", string(action)).
		Str("outcome", decision.Outcome.String()).Msg("eligibility evaluated")
	return decision
}

func (g *Gate) evaluate(ctx context.Context, user *types.UserSession, provider *types.Provider, action types.Action) Decision {
	if user == nil {
		g.presenter.Notify("Please login to continue")
		g.presenter.Navigate(interfaces.RouteLogin, "")
		return Decision{Outcome: OutcomeLogin, Message: "Please login to continue"}
	}

	if !provider.IsCertified {
		msg := fmt.Sprintf("Sorry, %s is not available right now", provider.Name)
		g.presenter.Notify(msg)
		g.presenter.Navigate(interfaces.RouteTopProviders, provider.ID)
		return Decision{Outcome: OutcomeBlock, Message: msg}
	}

	if !provider.SupportsAction(action) {
		msg := fmt.Sprintf("Astrologer is not available to %s.", action)
		g.presenter.Notify(msg)
		return Decision{Outcome: OutcomeBlock, Message: msg}
	}

	result, err := g.backend.CheckEligibility(ctx, provider.ID, action)
	if err != nil || !result.Success {
		g.presenter.Notify("Failed to start chat")
		return Decision{Outcome: OutcomeBlock, Message: "Failed to start chat"}
	}

	if result.IsFreeAvailable {
		if result.FreeChatLimitPerDay <= 0 {
			msg := "Astrologer is not available for free! Please recharge to continue"
			g.presenter.Notify(msg)
			g.presenter.Navigate(interfaces.RouteRecharge, "")
			return Decision{Outcome: OutcomeRecharge, Message: msg}
		}
		if !result.IsProviderFree && result.InsufficientBalance {
			msg := "Astrologer is not available for free! Please recharge to continue"
			g.presenter.Notify(msg)
			return Decision{Outcome: OutcomeBlock, Message: msg}
		}
		if result.IsProviderFree && g.alreadyRequested(provider.ID, result) {
			msg := "You cannot start free chat with astrologer"
			g.presenter.Notify(msg)
			return Decision{Outcome: OutcomeBlock, Message: msg}
		}
	} else {
		if result.InsufficientBalance {
			// A paid request reserves a two-minute minimum.
			msg := fmt.Sprintf("Min. balance for 2 mins i.e. ₹ %.0f is required to proceed.", provider.ChargePerMinute*2)
			g.presenter.Notify(msg)
			g.presenter.Navigate(interfaces.RouteRecharge, "")
			return Decision{Outcome: OutcomeRecharge, Message: msg}
		}
		if g.alreadyRequested(provider.ID, result) {
			msg := "You cannot join waitlist of same astrologer"
			g.presenter.Notify(msg)
			return Decision{Outcome: OutcomeBlock, Message: msg}
		}
		if g.capReached(result) {
			msg := fmt.Sprintf("You can join waitlist of max %d astrologers", g.maxCommitments)
			g.presenter.Notify(msg)
			return Decision{Outcome: OutcomeBlock, Message: msg}
		}
	}

	if _, active := g.active.Active(); active || result.HasActiveSession {
		msg := "You have an active chat, Please end the current chat to start a new one"
		g.presenter.Notify(msg)
		return Decision{Outcome: OutcomeBlock, Message: msg}
	}

	if !result.IsOnline {
		return Decision{Outcome: OutcomeOpenWaitlist}
	}

	g.presenter.Navigate(interfaces.RouteIntakeForm, provider.ID)
	return Decision{Outcome: OutcomeProceed}
}

// CreateRequest is the intake step behind a Proceed decision: validate
// the consultee details, create the request server-side, and admit the
// returned record into the store. Its response deadline is
// server-issued; the client never invents a timeout.
func (g *Gate) CreateRequest(ctx context.Context, provider *types.Provider, action types.Action, details *types.IntakeDetails) (*types.PendingRequest, error) {
	if err := g.validate.Struct(details); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntake, err)
	}

	req, err := g.backend.CreateRequest(ctx, provider.ID, action, details)
	if err != nil {
		g.presenter.Notify(api.UserMessage(err))
		return nil, err
	}

	if err := g.sink.Add(req); err != nil {
		return nil, err
	}

	g.logger.Info().Str("request_id", req.ID).Str("provider_id", provider.ID).Msg("request created")
	g.presenter.Notify(fmt.Sprintf("%s request sent to %s", titleAction(action), provider.Name))
	return req, nil
}

// alreadyRequested unifies the server's duplicate flag with the local
// collections: a non-terminal request or waitlist entry for the provider
// counts either way.
func (g *Gate) alreadyRequested(providerID string, result *types.EligibilityResult) bool {
	return result.IsAlreadyRequested ||
		g.requests.HasOutstanding(providerID) ||
		g.waitlist.HasOutstanding(providerID)
}

// capReached counts non-terminal outstanding commitments across pending
// requests and waitlist entries against the single cap.
func (g *Gate) capReached(result *types.EligibilityResult) bool {
	if result.IsMaxWaitlistCrossed {
		return true
	}
	return g.requests.OutstandingCount()+g.waitlist.OutstandingCount() >= g.maxCommitments
}

func titleAction(action types.Action) string {
	switch action {
	case types.ActionChat:
		return "Chat"
	case types.ActionCall:
		return "Call"
	default:
		return string(action)
	}
}
