// Package consult owns the single active consultation: its remaining-time
// countdown, the low-balance interrupt, mid-session recharge, and the
// termination/rating flow.
package consult

import (
	"context"
	"time"

	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"starcall/internal/api"
	"starcall/internal/timer"
	"starcall/pkg/interfaces"
	"starcall/pkg/types"
)

const (
	defaultPromptBelow = 120 // seconds left before the low-balance prompt
	defaultButtonAt    = 120 // seconds left before the recharge button
)

// Config tunes the manager's countdown behavior.
type Config struct {
	PromptBelow  int           // low-balance prompt threshold, seconds
	ButtonAt     int           // recharge button threshold, seconds
	TickInterval time.Duration // countdown tick cadence
	Now          func() time.Time
}

func (c *Config) applyDefaults() {
	if c.PromptBelow <= 0 {
		c.PromptBelow = defaultPromptBelow
	}
	if c.ButtonAt <= 0 {
		c.ButtonAt = defaultButtonAt
	}
	if c.TickInterval <= 0 {
		c.TickInterval = timer.DefaultInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Manager enforces the single-active-session invariant. All remaining
// time comes from the server; the client only renders and enforces it.
type Manager struct {
	mu     sync.Mutex
	active *types.ActiveConsultation
	tm     *timer.DeadlineTimer

	cfg       Config
	backend   interfaces.Backend
	sender    interfaces.CommandSender
	presenter interfaces.Presenter
	validate  *validator.Validate
	logger    zerolog.Logger
}

var _ interfaces.ConsultationOwner = (*Manager)(nil)

// NewManager creates an active-session manager.
func NewManager(backend interfaces.Backend, sender interfaces.CommandSender, presenter interfaces.Presenter, cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:       cfg,
		backend:   backend,
		sender:    sender,
		presenter: presenter,
		validate:  validator.New(),
		logger:    log.With().Str("component", "consult").Logger(),
	}
}

// Begin adopts a consultation as the single active session and starts its
// countdown from the server-supplied remaining time. Adopting the same
// consultation twice is a no-op; adopting a different one while a session
// is live is rejected.
func (m *Manager) Begin(consultation *types.ActiveConsultation) error {
	if err := consultation.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.active != nil {
		if m.active.ID == consultation.ID {
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		return ErrConsultationInProgress
	}
	cp := *consultation
	m.active = &cp
	m.startTimerLocked(cp.Deadline(m.cfg.Now()))
	m.mu.Unlock()

	m.logger.Info().Str("consultation_id", cp.ID).Str("provider_id", cp.ProviderID).
		Int("time_remaining", cp.TimeRemaining).Msg("consultation started")
	return nil
}

// Active returns a copy of the current consultation, if any.
func (m *Manager) Active() (types.ActiveConsultation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return types.ActiveConsultation{}, false
	}
	return *m.active, true
}

// Remaining reports the seconds left on the live countdown.
func (m *Manager) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tm == nil {
		return 0
	}
	return m.tm.Remaining()
}

// SendMessage emits a chat message into the active consultation.
func (m *Manager) SendMessage(msg *types.ChatMessage) error {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if active == nil {
		return ErrNoActiveConsultation
	}
	msg.ConsultationID = active.ID
	return m.sender.Send(types.Command{Name: types.CommandNewMessage, Data: msg})
}

// RechargeCompleted is invoked after a successful mid-session top-up. It
// notifies the provider side and re-fetches the authoritative session:
// remaining time is recomputed server-side, never extrapolated locally.
// The countdown resumes on the same timer instance, so already-fired
// low-balance latches do not fire again.
func (m *Manager) RechargeCompleted(ctx context.Context) error {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if active == nil {
		return ErrNoActiveConsultation
	}

	if err := m.sender.Send(types.Command{
		Name: types.CommandRechargeDuringChat,
		Data: types.RechargePayload{ProviderID: active.ProviderID},
	}); err != nil {
		m.logger.Warn().Err(err).Msg("recharge notification not sent")
	}

	refreshed, err := m.backend.GetActiveConsultation(ctx)
	if err != nil {
		m.presenter.Notify(api.UserMessage(err))
		return err
	}
	if refreshed == nil {
		return ErrNoActiveConsultation
	}

	m.mu.Lock()
	if m.active == nil || m.active.ID != refreshed.ID {
		m.mu.Unlock()
		return ErrNoActiveConsultation
	}
	m.active.TimeRemaining = refreshed.TimeRemaining
	if m.tm != nil {
		m.tm.Reset(refreshed.Deadline(m.cfg.Now()))
	}
	m.mu.Unlock()

	m.logger.Info().Int("time_remaining", refreshed.TimeRemaining).Msg("countdown resumed after recharge")
	return nil
}

// End terminates the consultation explicitly, transitions to the rating
// capture step, and clears the slot. A second End against an id that is
// no longer held is a no-op.
func (m *Manager) End(ctx context.Context, consultationID string) error {
	m.mu.Lock()
	if m.active == nil || m.active.ID != consultationID {
		m.mu.Unlock()
		return nil
	}
	cp := *m.active
	m.mu.Unlock()

	summary, err := m.backend.EndConsultation(ctx, cp.RequestID, cp.ID)
	if err != nil {
		m.presenter.Notify(api.UserMessage(err))
		return err
	}

	m.clear(consultationID)
	m.presenter.PromptRating(summary)
	m.logger.Info().Str("consultation_id", consultationID).Msg("consultation ended by user")
	return nil
}

// SubmitRating records the post-consultation review.
func (m *Manager) SubmitRating(ctx context.Context, rating *types.Rating) error {
	if err := m.validate.Struct(rating); err != nil {
		return err
	}
	if err := m.backend.SubmitRating(ctx, rating); err != nil {
		m.presenter.Notify(api.UserMessage(err))
		return err
	}
	return nil
}

// Terminate clears the consultation in response to a server-pushed end
// event. Idempotent: an unknown or already-cleared id is a no-op.
func (m *Manager) Terminate(message string) {
	m.mu.Lock()
	had := m.active != nil
	m.clearLocked()
	m.mu.Unlock()

	if !had {
		return
	}
	if message != "" {
		m.presenter.Notify(message)
	}
	m.presenter.Navigate(interfaces.RouteHome, "")
}

// Reconcile adopts the server's authoritative view of the active session.
// Called on every reconnect: while disconnected, local timers keep
// running against potentially stale state.
func (m *Manager) Reconcile(ctx context.Context) error {
	refreshed, err := m.backend.GetActiveConsultation(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	switch {
	case refreshed == nil && m.active != nil:
		// Server says the session is over; trust it.
		m.clearLocked()
		m.mu.Unlock()
		m.presenter.Navigate(interfaces.RouteHome, "")
		m.logger.Info().Msg("stale consultation cleared on reconnect")
		return nil
	case refreshed == nil:
		m.mu.Unlock()
		return nil
	case m.active != nil && m.active.ID == refreshed.ID:
		m.active.TimeRemaining = refreshed.TimeRemaining
		if m.tm != nil {
			m.tm.Reset(refreshed.Deadline(m.cfg.Now()))
		}
		m.mu.Unlock()
		m.logger.Info().Int("time_remaining", refreshed.TimeRemaining).Msg("consultation reconciled")
		return nil
	default:
		// A different (or first) session is live server-side.
		m.clearLocked()
		cp := *refreshed
		m.active = &cp
		m.startTimerLocked(cp.Deadline(m.cfg.Now()))
		m.mu.Unlock()
		m.logger.Info().Str("consultation_id", cp.ID).Msg("consultation resumed on reconnect")
		return nil
	}
}

// Shutdown stops the countdown and drops the slot. Called on logout.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.clearLocked()
	m.mu.Unlock()
}

// expire fires when the countdown reaches zero with no recharge: the
// session is force-ended locally and the user returns to the home
// context. The server settles the order on its own clock.
func (m *Manager) expire() {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return
	}
	id := m.active.ID
	m.clearLocked()
	m.mu.Unlock()

	m.logger.Info().Str("consultation_id", id).Msg("consultation expired: balance exhausted")
	m.presenter.Notify("Chat ended due to insufficient balance")
	m.presenter.Navigate(interfaces.RouteHome, "")
}

func (m *Manager) startTimerLocked(deadline time.Time) {
	if m.tm != nil {
		m.tm.Stop()
	}
	m.tm = timer.New(deadline, timer.Options{
		Interval:    m.cfg.TickInterval,
		Now:         m.cfg.Now,
		PromptBelow: m.cfg.PromptBelow,
		OnPrompt:    m.presenter.PromptLowBalance,
		ButtonAt:    m.cfg.ButtonAt,
		OnButton:    m.presenter.ShowRechargeButton,
		OnExpire:    m.expire,
	})
	m.tm.Start()
}

func (m *Manager) clear(consultationID string) {
	m.mu.Lock()
	if m.active != nil && m.active.ID == consultationID {
		m.clearLocked()
	}
	m.mu.Unlock()
}

func (m *Manager) clearLocked() {
	if m.tm != nil {
		m.tm.Stop()
		m.tm = nil
	}
	m.active = nil
}
