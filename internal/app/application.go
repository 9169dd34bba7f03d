// Package app assembles the consultation client: storage, backend
// client, request store, session channel, waitlist coordinator,
// active-session manager, and the eligibility gate, wired in dependency
// order with the server-event handlers registered on the channel.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"starcall/internal/api"
	"starcall/internal/channel"
	"starcall/internal/config"
	"starcall/internal/consult"
	"starcall/internal/eligibility"
	"starcall/internal/storage"
	"starcall/internal/store"
	"starcall/internal/waitlist"
	"starcall/pkg/interfaces"
	"starcall/pkg/types"
)

// Application coordinates all client components for one authenticated
// user session.
type Application struct {
	config    *config.Config
	session   types.UserSession
	presenter interfaces.Presenter
	sounder   interfaces.AlertSounder

	hints    interfaces.HintStore
	backend  interfaces.Backend
	requests *store.Store
	channel  *channel.Channel
	consults *consult.Manager
	waitlist *waitlist.Coordinator
	gate     *eligibility.Gate
	tokens   *channel.TokenStream

	// OnMessage receives inbound consultation messages. Optional; when
	// nil the message is surfaced as a notice.
	OnMessage func(msg types.ChatMessage)

	// OnAIChunk receives coalesced AI reply fragments. Optional.
	OnAIChunk func(chunk string)

	logger zerolog.Logger
}

// NewApplication builds the component graph for one session. Order:
// HintStore -> Backend -> Store -> Channel -> Consult -> Waitlist -> Gate.
func NewApplication(cfg *config.Config, session types.UserSession, token string,
	presenter interfaces.Presenter, sounder interfaces.AlertSounder) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}

	hints, err := storage.NewHintStore(storage.Config{
		Path:    cfg.Storage.Path,
		Timeout: cfg.Storage.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open hint store: %w", err)
	}

	backend, err := api.NewClient(api.Config{
		BaseURL: cfg.Server.APIBaseURL,
		Token:   token,
		Timeout: cfg.Server.RequestTimeout,
	})
	if err != nil {
		hints.Close()
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	requests := store.New(store.Options{
		TickInterval: cfg.Consultation.TickInterval,
		OnTerminal: func(req types.PendingRequest) {
			// The continuation hint only matters while a request is live.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = hints.Delete(ctx, interfaces.HintLastTimestamp)
		},
	})

	ch, err := channel.New(channel.Config{
		URL:          cfg.Server.SocketURL,
		Session:      session,
		QueueSize:    cfg.Channel.QueueSize,
		WriteTimeout: cfg.Channel.WriteTimeout,
		BaseDelay:    cfg.Channel.BaseDelay,
		MaxDelay:     cfg.Channel.MaxDelay,
	})
	if err != nil {
		hints.Close()
		return nil, fmt.Errorf("failed to create session channel: %w", err)
	}

	consults := consult.NewManager(backend, ch, presenter, consult.Config{
		PromptBelow:  cfg.Consultation.RechargePromptBelow,
		ButtonAt:     cfg.Consultation.RechargeButtonAt,
		TickInterval: cfg.Consultation.TickInterval,
	})

	wl := waitlist.NewCoordinator(backend, ch, presenter, sounder, consults, session, waitlist.Config{
		TickInterval: cfg.Consultation.TickInterval,
	})

	gate := eligibility.NewGate(backend, presenter, requests, wl, consults, requests, eligibility.Config{
		MaxCommitments: cfg.Consultation.MaxCommitments,
	})

	app := &Application{
		config:    cfg,
		session:   session,
		presenter: presenter,
		sounder:   sounder,
		hints:     hints,
		backend:   backend,
		requests:  requests,
		channel:   ch,
		consults:  consults,
		waitlist:  wl,
		gate:      gate,
		logger:    log.With().Str("component", "app").Logger(),
	}

	app.tokens = channel.NewTokenStream(100*time.Millisecond, app.emitAIChunk, app.finishAIStream)
	app.registerHandlers()

	return app, nil
}

// Backend exposes the REST client for surfaces outside the lifecycle
// flows (profile, listings).
func (app *Application) Backend() interfaces.Backend { return app.backend }

// Requests exposes the pending-request store.
func (app *Application) Requests() *store.Store { return app.requests }

// Consultations exposes the active-session manager.
func (app *Application) Consultations() *consult.Manager { return app.consults }

// Waitlist exposes the waitlist coordinator.
func (app *Application) Waitlist() *waitlist.Coordinator { return app.waitlist }

// Gate exposes the eligibility gate.
func (app *Application) Gate() *eligibility.Gate { return app.gate }

// Channel exposes the session channel.
func (app *Application) Channel() *channel.Channel { return app.channel }

// Hints exposes the durable hint store.
func (app *Application) Hints() interfaces.HintStore { return app.hints }

// registerHandlers binds every server event to its component. Handlers
// run on the channel's read goroutine in transport arrival order.
func (app *Application) registerHandlers() {
	app.channel.Handle(types.EventChatRequestAccepted, app.handleRequestAccepted)
	app.channel.Handle(types.EventCallRequestAccepted, app.handleRequestAccepted)
	app.channel.Handle(types.EventChatRequestRejected, app.handleRequestRejected)
	app.channel.Handle(types.EventChatRequestScheduled, app.handleRequestScheduled)
	app.channel.Handle(types.EventChatRequestEnded, app.handleRequestEnded)
	app.channel.Handle(types.EventCallAcceptedByAstro, app.handleCallAccepted)
	app.channel.Handle(types.EventProviderOnline, app.handleProviderOnline)
	app.channel.Handle(types.EventProviderCalling, app.handleProviderCalling)
	app.channel.Handle(types.EventMissedCall, app.handleMissedCall)
	app.channel.Handle(types.EventWaitlistCallback, app.handleWaitlistCallback)
	app.channel.Handle(types.EventNewMessage, app.handleNewMessage)
	app.channel.Handle(types.EventRechargeAck, app.handleRechargeAck)
	app.channel.Handle(types.EventAITokenChunk, app.handleAITokenChunk)
	app.channel.Handle(types.EventAISessionEnd, app.handleAISessionEnd)
	app.channel.OnConnect(app.handleConnect)
}

// Start resumes any interrupted session surfaces, then runs the channel
// until ctx is cancelled or Stop is called.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info().Str("user_id", app.session.UserID).Msg("starting consultation client")
	app.tokens.Start()
	app.resumeDeepLink(ctx)
	return app.channel.Run(ctx)
}

// Stop tears the application down in reverse dependency order.
func (app *Application) Stop() error {
	app.logger.Info().Msg("shutting down consultation client")

	if err := app.channel.Close(); err != nil && err != channel.ErrChannelClosed {
		app.logger.Warn().Err(err).Msg("channel shutdown error")
	}
	app.tokens.Stop()
	app.consults.Shutdown()
	app.requests.Clear()
	app.waitlist.Clear()

	if err := app.hints.Close(); err != nil {
		app.logger.Warn().Err(err).Msg("hint store shutdown error")
		return err
	}
	return nil
}

// Logout announces the logout to the server, then stops. Local caches
// are discarded; server state is authoritative for whatever remains.
func (app *Application) Logout(ctx context.Context) error {
	_ = app.channel.Send(types.Command{Name: types.CommandLogout})
	_ = app.hints.Delete(ctx, interfaces.HintLastTimestamp)
	_ = app.hints.Delete(ctx, interfaces.HintPendingDeepLink)
	return app.Stop()
}

// handleConnect runs after every successful (re)connect, once the
// addUser announcement has been written. The server is asked for the
// authoritative current state rather than replaying missed events. The
// initial connect reconciles too: a consultation left running by a
// previous process must be adopted before any deep link lands in it.
func (app *Application) handleConnect(resumed bool) {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.RequestTimeout)
	defer cancel()
	if err := app.consults.Reconcile(ctx); err != nil {
		app.logger.Warn().Err(err).Bool("resumed", resumed).Msg("state reconciliation failed")
	}
}

// resumeDeepLink replays a navigation intent persisted before the
// previous process exited (notification tapped while the app was dead).
func (app *Application) resumeDeepLink(ctx context.Context) {
	route, ok, err := app.hints.Get(ctx, interfaces.HintPendingDeepLink)
	if err != nil || !ok {
		return
	}
	_ = app.hints.Delete(ctx, interfaces.HintPendingDeepLink)
	app.presenter.Navigate(interfaces.Route(route), "")
}

func (app *Application) handleRequestAccepted(data json.RawMessage) {
	var evt types.RequestAcceptedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		app.logger.Warn().Err(err).Msg("malformed accepted event")
		return
	}

	status := types.StatusAccepted
	app.requests.Upsert(evt.RequestID, store.Patch{Status: &status})

	if evt.Consultation == nil {
		return
	}

	// A record the scheduled-time timer already flipped to accepted is
	// terminal and immune to the patch above; evict it explicitly so it
	// cannot coexist with the active consultation.
	app.requests.Remove(evt.RequestID)

	if err := app.consults.Begin(evt.Consultation); err != nil {
		app.logger.Warn().Err(err).Str("request_id", evt.RequestID).Msg("could not adopt consultation")
		return
	}
	app.presenter.Notify(fmt.Sprintf("%s accepted your request", evt.ProviderName))
	app.presenter.Navigate(interfaces.RouteActiveChat, evt.Consultation.ID)
}

func (app *Application) handleRequestRejected(data json.RawMessage) {
	var evt types.RequestRejectedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		app.logger.Warn().Err(err).Msg("malformed rejected event")
		return
	}
	status := types.StatusRejected
	app.requests.Upsert(evt.RequestID, store.Patch{Status: &status})
	app.presenter.Notify(fmt.Sprintf("%s declined your request", evt.ProviderName))
}

func (app *Application) handleRequestScheduled(data json.RawMessage) {
	var evt types.RequestScheduledEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		app.logger.Warn().Err(err).Msg("malformed scheduled event")
		return
	}
	status := types.StatusScheduled
	scheduled := evt.ScheduledTime
	app.requests.Upsert(evt.RequestID, store.Patch{Status: &status, ScheduledTime: &scheduled})
	app.presenter.Notify(fmt.Sprintf("%s scheduled your request for %s",
		evt.ProviderName, evt.ScheduledTime.Local().Format("3:04 PM")))
}

func (app *Application) handleRequestEnded(data json.RawMessage) {
	var evt types.RequestEndedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		app.logger.Warn().Err(err).Msg("malformed ended event")
		return
	}
	message := evt.Message
	if message == "" {
		message = "Your consultation has ended"
	}
	app.consults.Terminate(message)
}

// handleCallAccepted covers the voice flow: the provider picked up, so
// the user is moved to the incoming-call surface. The consultation
// itself arrives through the accepted event.
func (app *Application) handleCallAccepted(data json.RawMessage) {
	var evt types.ProviderEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		app.logger.Warn().Err(err).Msg("malformed call accepted event")
		return
	}
	app.presenter.Navigate(interfaces.RouteIncomingCall, evt.ProviderID)
}

func (app *Application) handleProviderOnline(data json.RawMessage) {
	var evt types.ProviderEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		app.logger.Warn().Err(err).Msg("malformed provider online event")
		return
	}
	app.presenter.Notify(fmt.Sprintf("%s is online now", evt.ProviderName))
}

func (app *Application) handleProviderCalling(data json.RawMessage) {
	var evt types.ProviderEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		app.logger.Warn().Err(err).Msg("malformed provider calling event")
		return
	}
	app.sounder.Play()
	app.presenter.Navigate(interfaces.RouteIncomingCall, evt.ProviderID)
}

// handleMissedCall records the miss durably so the next launch can offer
// a callback, then tells the user.
func (app *Application) handleMissedCall(data json.RawMessage) {
	var evt types.ProviderEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		app.logger.Warn().Err(err).Msg("malformed missed call event")
		return
	}

	record, err := json.Marshal(types.MissedCall{
		ProviderID:   evt.ProviderID,
		ProviderName: evt.ProviderName,
		Timestamp:    time.Now(),
	})
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := app.hints.Set(ctx, interfaces.HintLastMissedCall, string(record)); err != nil {
			app.logger.Warn().Err(err).Msg("could not persist missed call")
		}
	}

	app.presenter.Notify(fmt.Sprintf("You missed a call from %s", evt.ProviderName))
}

func (app *Application) handleWaitlistCallback(data json.RawMessage) {
	var entry types.WaitlistEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		app.logger.Warn().Err(err).Msg("malformed waitlist callback")
		return
	}
	app.waitlist.HandleInvitation(entry)
}

func (app *Application) handleNewMessage(data json.RawMessage) {
	var msg types.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		app.logger.Warn().Err(err).Msg("malformed message event")
		return
	}
	if app.OnMessage != nil {
		app.OnMessage(msg)
		return
	}
	app.presenter.Notify("New message received")
}

func (app *Application) handleRechargeAck(data json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.RequestTimeout)
	defer cancel()
	if err := app.consults.RechargeCompleted(ctx); err != nil {
		app.logger.Warn().Err(err).Msg("recharge extension failed")
	}
}

func (app *Application) handleAITokenChunk(data json.RawMessage) {
	var evt types.AITokenChunkEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		app.logger.Warn().Err(err).Msg("malformed token chunk")
		return
	}
	app.tokens.Push(evt.Token)
}

func (app *Application) handleAISessionEnd(data json.RawMessage) {
	var evt types.AISessionEndEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		app.logger.Warn().Err(err).Msg("malformed AI session end")
		return
	}
	app.tokens.End(evt)
}

func (app *Application) emitAIChunk(chunk string) {
	if app.OnAIChunk != nil {
		app.OnAIChunk(chunk)
	}
}

func (app *Application) finishAIStream(evt types.AISessionEndEvent) {
	if app.OnMessage != nil {
		app.OnMessage(types.ChatMessage{
			ConsultationID: evt.SessionID,
			Sender:         evt.Message.Role,
			Content:        evt.Message.Content,
		})
	}
}
