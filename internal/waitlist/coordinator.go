// Package waitlist manages notify-when-available registrations for
// offline providers and the server-pushed invitation flow that converts
// one into an active consultation.
package waitlist

import (
	"context"
	"fmt"
	"time"

	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"starcall/internal/api"
	"starcall/internal/timer"
	"starcall/pkg/interfaces"
	"starcall/pkg/types"
)

// Config tunes the coordinator.
type Config struct {
	TickInterval time.Duration
	Now          func() time.Time
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = timer.DefaultInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Coordinator tracks waitlist entries per provider. At most one
// invitation is presented at a time; it carries its own server-issued
// response deadline.
type Coordinator struct {
	mu         sync.Mutex
	entries    map[string]*types.WaitlistEntry // keyed by provider id
	invitation *types.WaitlistEntry
	invTimer   *timer.DeadlineTimer

	cfg       Config
	backend   interfaces.Backend
	sender    interfaces.CommandSender
	presenter interfaces.Presenter
	sounder   interfaces.AlertSounder
	owner     interfaces.ConsultationOwner
	session   types.UserSession
	logger    zerolog.Logger
}

// NewCoordinator creates a waitlist coordinator.
func NewCoordinator(backend interfaces.Backend, sender interfaces.CommandSender, presenter interfaces.Presenter,
	sounder interfaces.AlertSounder, owner interfaces.ConsultationOwner, session types.UserSession, cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		entries:   make(map[string]*types.WaitlistEntry),
		cfg:       cfg,
		backend:   backend,
		sender:    sender,
		presenter: presenter,
		sounder:   sounder,
		owner:     owner,
		session:   session,
		logger:    log.With().Str("component", "waitlist").Logger(),
	}
}

// Join registers the user on an offline provider's waitlist. A failed
// registration surfaces the error and creates no local state.
func (c *Coordinator) Join(ctx context.Context, provider *types.Provider, action types.Action) error {
	if err := c.backend.JoinWaitlist(ctx, provider.ID, action); err != nil {
		c.presenter.Notify(api.UserMessage(err))
		return err
	}

	c.mu.Lock()
	c.entries[provider.ID] = &types.WaitlistEntry{
		ProviderID:    provider.ID,
		ProviderName:  provider.Name,
		ProviderImage: provider.Image,
		Action:        action,
		State:         types.WaitlistJoined,
		JoinedAt:      c.cfg.Now(),
	}
	c.mu.Unlock()

	c.logger.Info().Str("provider_id", provider.ID).Str("action", string(action)).Msg("waitlist joined")
	c.presenter.Navigate(interfaces.RouteWaitlistJoined, provider.ID)
	return nil
}

// Cancel withdraws a waitlist registration: the provider side is told via
// the cancellation command and local timers are cleared. The server is
// authoritative for any server-side consequence.
func (c *Coordinator) Cancel(providerID string) error {
	c.mu.Lock()
	_, exists := c.entries[providerID]
	if exists {
		delete(c.entries, providerID)
		if c.invitation != nil && c.invitation.ProviderID == providerID {
			c.dismissInvitationLocked()
		}
	}
	c.mu.Unlock()

	if !exists {
		return nil
	}
	c.logger.Info().Str("provider_id", providerID).Msg("waitlist entry cancelled")
	return c.sender.Send(types.Command{
		Name: types.CommandChatCancel,
		Data: types.CancelPayload{ProviderID: providerID, UserID: c.session.UserID},
	})
}

// HandleInvitation materializes a server-pushed callback as the
// full-screen, high-priority invitation with its own response deadline,
// and triggers the audio alert.
func (c *Coordinator) HandleInvitation(entry types.WaitlistEntry) {
	if entry.ID == "" || !types.IsValidAction(entry.Action) || entry.ResponseDeadline == nil {
		c.logger.Warn().Str("entry_id", entry.ID).Msg("malformed invitation dropped")
		return
	}

	entry.State = types.WaitlistInvited

	c.mu.Lock()
	// The invitation supersedes the plain joined entry for its provider.
	cp := entry
	c.entries[entry.ProviderID] = &cp
	c.dismissInvitationLocked()
	c.invitation = &cp
	entryID := entry.ID
	c.invTimer = timer.New(*entry.ResponseDeadline, timer.Options{
		Interval: c.cfg.TickInterval,
		Now:      c.cfg.Now,
		OnExpire: func() { c.expireInvitation(entryID) },
	})
	c.invTimer.Start()
	c.mu.Unlock()

	c.logger.Info().Str("entry_id", entry.ID).Str("provider_id", entry.ProviderID).Msg("invitation received")
	c.sounder.Play()
	c.presenter.PresentInvitation(&cp)
	c.presenter.Notify(fmt.Sprintf("New %s request from %s", entry.Action, entry.ProviderName))
}

// Accept accepts the presented invitation and hands the returned
// consultation to the active-session manager.
func (c *Coordinator) Accept(ctx context.Context) error {
	c.sounder.Stop()

	c.mu.Lock()
	invitation := c.invitation
	c.mu.Unlock()
	if invitation == nil {
		return ErrNoInvitation
	}

	consultation, err := c.backend.AcceptWaitlistInvitation(ctx, invitation.ID, invitation.Action)
	if err != nil {
		c.presenter.Notify(api.UserMessage(err))
		return err
	}

	c.mu.Lock()
	if entry, ok := c.entries[invitation.ProviderID]; ok {
		entry.State = types.WaitlistAccepted
	}
	c.dismissInvitationLocked()
	c.mu.Unlock()
	c.presenter.DismissInvitation()

	if err := c.owner.Begin(consultation); err != nil {
		return err
	}

	c.logger.Info().Str("entry_id", invitation.ID).Msg("invitation accepted")
	c.presenter.Notify(fmt.Sprintf("%s request accepted", titleAction(invitation.Action)))
	if invitation.Action == types.ActionChat {
		c.presenter.Navigate(interfaces.RouteActiveChat, consultation.ID)
	}
	return nil
}

// Reject declines the presented invitation.
func (c *Coordinator) Reject(ctx context.Context) error {
	c.sounder.Stop()

	c.mu.Lock()
	invitation := c.invitation
	c.mu.Unlock()
	if invitation == nil {
		return ErrNoInvitation
	}

	if err := c.backend.RejectWaitlistInvitation(ctx, invitation.ID); err != nil {
		c.presenter.Notify(fmt.Sprintf("Failed to reject %s request", invitation.Action))
		return err
	}

	c.mu.Lock()
	if entry, ok := c.entries[invitation.ProviderID]; ok {
		entry.State = types.WaitlistRejected
	}
	c.dismissInvitationLocked()
	c.mu.Unlock()
	c.presenter.DismissInvitation()

	c.logger.Info().Str("entry_id", invitation.ID).Msg("invitation rejected")
	return nil
}

// Invitation returns a copy of the currently presented invitation.
func (c *Coordinator) Invitation() (types.WaitlistEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invitation == nil {
		return types.WaitlistEntry{}, false
	}
	return *c.invitation, true
}

// OutstandingCount reports the non-terminal entries held. Feeds the
// eligibility gate's unified commitment cap.
func (c *Coordinator) OutstandingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, entry := range c.entries {
		if !entry.State.Terminal() {
			n++
		}
	}
	return n
}

// HasOutstanding reports whether a non-terminal entry exists for the
// provider.
func (c *Coordinator) HasOutstanding(providerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[providerID]
	return ok && !entry.State.Terminal()
}

// Clear drops all entries and timers. Called on logout.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.dismissInvitationLocked()
	c.entries = make(map[string]*types.WaitlistEntry)
	c.mu.Unlock()
	c.sounder.Stop()
}

// expireInvitation discards the invitation locally when its response
// deadline lapses with no user action.
func (c *Coordinator) expireInvitation(entryID string) {
	c.mu.Lock()
	if c.invitation == nil || c.invitation.ID != entryID {
		c.mu.Unlock()
		return
	}
	if entry, ok := c.entries[c.invitation.ProviderID]; ok {
		entry.State = types.WaitlistExpired
	}
	c.dismissInvitationLocked()
	c.mu.Unlock()

	c.logger.Info().Str("entry_id", entryID).Msg("invitation expired")
	c.sounder.Stop()
	c.presenter.DismissInvitation()
}

// dismissInvitationLocked tears down the invitation timer and slot.
// Caller holds c.mu.
func (c *Coordinator) dismissInvitationLocked() {
	if c.invTimer != nil {
		c.invTimer.Stop()
		c.invTimer = nil
	}
	c.invitation = nil
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
