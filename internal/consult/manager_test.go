package consult

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starcall/pkg/interfaces"
	"starcall/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

type fakeBackend struct {
	interfaces.Backend

	mu           sync.Mutex
	active       *types.ActiveConsultation
	activeErr    error
	summary      *types.OrderSummary
	endErr       error
	endedRequest string
	ratingErr    error
	rated        *types.Rating
}

func (f *fakeBackend) GetActiveConsultation(ctx context.Context) (*types.ActiveConsultation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	if f.active == nil {
		return nil, nil
	}
	cp := *f.active
	return &cp, nil
}

func (f *fakeBackend) EndConsultation(ctx context.Context, requestID, consultationID string) (*types.OrderSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endErr != nil {
		return nil, f.endErr
	}
	f.endedRequest = requestID
	return f.summary, nil
}

func (f *fakeBackend) SubmitRating(ctx context.Context, rating *types.Rating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ratingErr != nil {
		return f.ratingErr
	}
	f.rated = rating
	return nil
}

func (f *fakeBackend) setActive(c *types.ActiveConsultation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = c
}

type fakeSender struct {
	mu   sync.Mutex
	sent []types.Command
}

func (f *fakeSender) Send(cmd types.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeSender) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, cmd := range f.sent {
		out[i] = cmd.Name
	}
	return out
}

type fakePresenter struct {
	mu      sync.Mutex
	notices []string
	navs    []interfaces.Route
	prompts int
	buttons int
	ratings int
}

func (f *fakePresenter) Notify(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, message)
}

func (f *fakePresenter) Navigate(route interfaces.Route, arg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navs = append(f.navs, route)
}

func (f *fakePresenter) PresentInvitation(entry *types.WaitlistEntry) {}
func (f *fakePresenter) DismissInvitation()                           {}

func (f *fakePresenter) PromptLowBalance(secondsLeft int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts++
}

func (f *fakePresenter) ShowRechargeButton() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttons++
}

func (f *fakePresenter) PromptRating(summary *types.OrderSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratings++
}

func (f *fakePresenter) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts
}

func (f *fakePresenter) buttonCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buttons
}

func (f *fakePresenter) lastNav() interfaces.Route {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.navs) == 0 {
		return ""
	}
	return f.navs[len(f.navs)-1]
}

func (f *fakePresenter) lastNotice() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.notices) == 0 {
		return ""
	}
	return f.notices[len(f.notices)-1]
}

type fixture struct {
	manager   *Manager
	backend   *fakeBackend
	sender    *fakeSender
	presenter *fakePresenter
	clock     *fakeClock
}

func newFixture() *fixture {
	f := &fixture{
		backend:   &fakeBackend{},
		sender:    &fakeSender{},
		presenter: &fakePresenter{},
		clock:     newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
	}
	f.manager = NewManager(f.backend, f.sender, f.presenter, Config{
		TickInterval: 10 * time.Millisecond,
		Now:          f.clock.Now,
	})
	return f
}

func consultation(id string, remaining int) *types.ActiveConsultation {
	return &types.ActiveConsultation{
		ID:            id,
		RequestID:     "r-" + id,
		ProviderID:    "p1",
		ProviderName:  "Meera",
		Action:        types.ActionChat,
		TimeRemaining: remaining,
	}
}

func TestBeginAdoptsSingleSession(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.manager.Begin(consultation("c1", 600)))

	active, ok := f.manager.Active()
	require.True(t, ok)
	assert.Equal(t, "c1", active.ID)
	assert.Equal(t, 600, f.manager.Remaining())
}

func TestBeginSameIDIsIdempotent(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 600)))

	assert.NoError(t, f.manager.Begin(consultation("c1", 600)))
}

func TestBeginSecondSessionRefused(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 600)))

	err := f.manager.Begin(consultation("c2", 300))

	assert.ErrorIs(t, err, ErrConsultationInProgress)
	active, _ := f.manager.Active()
	assert.Equal(t, "c1", active.ID)
}

func TestBeginRejectsInvalidConsultation(t *testing.T) {
	f := newFixture()

	err := f.manager.Begin(&types.ActiveConsultation{ProviderID: "p1"})
	assert.Error(t, err)

	err = f.manager.Begin(&types.ActiveConsultation{ID: "c1", ProviderID: "p1", TimeRemaining: -5})
	assert.ErrorIs(t, err, types.ErrNegativeRemaining)
}

func TestCountdownThresholdsFire(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 600)))

	f.clock.Advance(481 * time.Second) // 119s left

	waitFor(t, func() bool { return f.presenter.promptCount() == 1 }, "low balance prompt")
	waitFor(t, func() bool { return f.presenter.buttonCount() == 1 }, "recharge button")
}

func TestExpiryEndsSessionLocally(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 60)))

	f.clock.Advance(2 * time.Minute)

	waitFor(t, func() bool {
		_, ok := f.manager.Active()
		return !ok
	}, "local expiry")
	assert.Equal(t, "Chat ended due to insufficient balance", f.presenter.lastNotice())
	assert.Equal(t, interfaces.RouteHome, f.presenter.lastNav())
}

func TestSendMessageRequiresActiveSession(t *testing.T) {
	f := newFixture()

	err := f.manager.SendMessage(&types.ChatMessage{Content: "hello"})
	assert.ErrorIs(t, err, ErrNoActiveConsultation)
}

func TestSendMessageStampsConsultationID(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 600)))

	msg := &types.ChatMessage{Content: "hello"}
	require.NoError(t, f.manager.SendMessage(msg))

	assert.Equal(t, "c1", msg.ConsultationID)
	assert.Equal(t, []string{types.CommandNewMessage}, f.sender.names())
}

func TestRechargeExtendsFromServerTime(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 60)))
	f.backend.setActive(consultation("c1", 900))

	require.NoError(t, f.manager.RechargeCompleted(context.Background()))

	// Remaining time is the server's, not a local extrapolation.
	assert.Equal(t, 900, f.manager.Remaining())
	assert.Contains(t, f.sender.names(), types.CommandRechargeDuringChat)
}

func TestRechargeLatchesStayFired(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 60)))

	waitFor(t, func() bool { return f.presenter.promptCount() == 1 }, "prompt before recharge")

	f.backend.setActive(consultation("c1", 600))
	require.NoError(t, f.manager.RechargeCompleted(context.Background()))

	// Drop below the threshold again: the prompt must not repeat within
	// the same session.
	f.clock.Advance(500 * time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.presenter.promptCount())
}

func TestEndPromptsForRating(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 600)))
	f.backend.summary = &types.OrderSummary{OrderID: "o1", ProviderID: "p1"}

	require.NoError(t, f.manager.End(context.Background(), "c1"))

	_, ok := f.manager.Active()
	assert.False(t, ok)
	assert.Equal(t, "r-c1", f.backend.endedRequest)
	assert.Equal(t, 1, f.presenter.ratings)

	// Ending again is a no-op.
	require.NoError(t, f.manager.End(context.Background(), "c1"))
	assert.Equal(t, 1, f.presenter.ratings)
}

func TestEndKeepsSessionOnBackendFailure(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 600)))
	f.backend.endErr = errors.New("boom")

	assert.Error(t, f.manager.End(context.Background(), "c1"))

	_, ok := f.manager.Active()
	assert.True(t, ok, "session survives a failed end call")
}

func TestSubmitRatingValidates(t *testing.T) {
	f := newFixture()

	err := f.manager.SubmitRating(context.Background(), &types.Rating{OrderID: "o1", Stars: 7})
	assert.Error(t, err)
	assert.Nil(t, f.backend.rated)

	require.NoError(t, f.manager.SubmitRating(context.Background(), &types.Rating{OrderID: "o1", Stars: 4}))
	require.NotNil(t, f.backend.rated)
	assert.Equal(t, 4, f.backend.rated.Stars)
}

func TestTerminateClearsAndNavigatesHome(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 600)))

	f.manager.Terminate("Astrologer ended the chat")

	_, ok := f.manager.Active()
	assert.False(t, ok)
	assert.Equal(t, "Astrologer ended the chat", f.presenter.lastNotice())
	assert.Equal(t, interfaces.RouteHome, f.presenter.lastNav())

	// Terminating with nothing active is silent.
	f.manager.Terminate("again")
	assert.Equal(t, "Astrologer ended the chat", f.presenter.lastNotice())
}

func TestReconcileClearsStaleSession(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 600)))
	f.backend.setActive(nil)

	require.NoError(t, f.manager.Reconcile(context.Background()))

	_, ok := f.manager.Active()
	assert.False(t, ok)
	assert.Equal(t, interfaces.RouteHome, f.presenter.lastNav())
}

func TestReconcileRenewsSameSession(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.manager.Begin(consultation("c1", 60)))
	f.backend.setActive(consultation("c1", 480))

	require.NoError(t, f.manager.Reconcile(context.Background()))

	assert.Equal(t, 480, f.manager.Remaining())
}

func TestReconcileAdoptsServerSession(t *testing.T) {
	f := newFixture()
	f.backend.setActive(consultation("c2", 300))

	require.NoError(t, f.manager.Reconcile(context.Background()))

	active, ok := f.manager.Active()
	require.True(t, ok)
	assert.Equal(t, "c2", active.ID)
	assert.Equal(t, 300, f.manager.Remaining())
}

func TestReconcileNoSessionsIsNoOp(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.manager.Reconcile(context.Background()))
	_, ok := f.manager.Active()
	assert.False(t, ok)
	assert.Empty(t, f.presenter.navs)
}
