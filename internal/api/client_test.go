package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starcall/pkg/types"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

// newTestClient wires a client to a stub server returning the given
// status and body, capturing the last request for inspection.
func newTestClient(t *testing.T, status int, responseBody string) (*Client, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.auth = r.Header.Get("Authorization")
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(responseBody))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL, Token: "tok-123"})
	require.NoError(t, err)
	return client, rec
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrMissingBaseURL)
}

func TestCheckEligibilityDecodesWireNames(t *testing.T) {
	body := `{
		"success": true,
		"isOnline": true,
		"isFreeAvailable": true,
		"freeChatLimitPerDay": 2,
		"isAstroAvailableForFree": true,
		"insufficientBalance": false,
		"isAlreadyChatRequested": true,
		"isMaxWaitlistCrossed": false,
		"isActiveChat": false
	}`
	client, rec := newTestClient(t, http.StatusOK, body)

	result, err := client.CheckEligibility(context.Background(), "p1", types.ActionChat)

	require.NoError(t, err)
	assert.Equal(t, "/chat-request/check-eligibility/p1", rec.path)
	assert.Equal(t, "action=chat", rec.query)
	assert.Equal(t, "Bearer tok-123", rec.auth)
	assert.True(t, result.IsOnline)
	assert.True(t, result.IsProviderFree)
	assert.True(t, result.IsAlreadyRequested)
	assert.Equal(t, 2, result.FreeChatLimitPerDay)
}

func TestCreateRequestUnwrapsRecord(t *testing.T) {
	body := `{
		"success": true,
		"chatRequest": {
			"_id": "r1",
			"astrologerId": "p1",
			"astroName": "Meera",
			"action": "chat",
			"status": "requested",
			"responseDeadline": "2026-03-01T10:03:00Z"
		}
	}`
	client, rec := newTestClient(t, http.StatusOK, body)

	req, err := client.CreateRequest(context.Background(), "p1", types.ActionChat, &types.IntakeDetails{Name: "Asha"})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/chat-request/new", rec.path)
	assert.Equal(t, "p1", rec.body["astrologerId"])
	assert.Equal(t, "r1", req.ID)
	assert.Equal(t, types.StatusRequested, req.Status)
	require.NotNil(t, req.ResponseDeadline)
}

func TestCreateRequestSurfacesApplicationFailure(t *testing.T) {
	client, _ := newTestClient(t, http.StatusOK, `{"success": false, "message": "Astrologer is busy"}`)

	_, err := client.CreateRequest(context.Background(), "p1", types.ActionChat, &types.IntakeDetails{})

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "Astrologer is busy", serverErr.Message)
}

func TestCreateRequestMissingWrapper(t *testing.T) {
	client, _ := newTestClient(t, http.StatusOK, `{"success": true}`)

	_, err := client.CreateRequest(context.Background(), "p1", types.ActionChat, &types.IntakeDetails{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestAcceptWaitlistInvitationChat(t *testing.T) {
	body := `{"success": true, "chat": {"_id": "c1", "astrologerId": "p1", "timeRemaining": 600}}`
	client, rec := newTestClient(t, http.StatusOK, body)

	consultation, err := client.AcceptWaitlistInvitation(context.Background(), "w1", types.ActionChat)

	require.NoError(t, err)
	assert.Equal(t, "/chat-request/user-accept-waitlisted/w1", rec.path)
	assert.Equal(t, "c1", consultation.ID)
	assert.Equal(t, 600, consultation.TimeRemaining)
}

func TestAcceptWaitlistInvitationCallUsesCallEndpoint(t *testing.T) {
	body := `{"success": true, "data": {"_id": "c2", "astrologerId": "p1", "timeRemaining": 300}}`
	client, rec := newTestClient(t, http.StatusOK, body)

	consultation, err := client.AcceptWaitlistInvitation(context.Background(), "w1", types.ActionCall)

	require.NoError(t, err)
	assert.Equal(t, "/call/user-accept-waitlisted/w1", rec.path)
	assert.Equal(t, "c2", consultation.ID)
}

func TestGetActiveConsultationAbsent(t *testing.T) {
	for _, body := range []string{"", "null", `{}`, `{"_id": ""}`} {
		client, _ := newTestClient(t, http.StatusOK, body)

		consultation, err := client.GetActiveConsultation(context.Background())

		require.NoError(t, err, "body %q", body)
		assert.Nil(t, consultation, "body %q", body)
	}
}

func TestGetActiveConsultationPresent(t *testing.T) {
	body := `{"_id": "c1", "astrologerId": "p1", "action": "chat", "timeRemaining": 420}`
	client, _ := newTestClient(t, http.StatusOK, body)

	consultation, err := client.GetActiveConsultation(context.Background())

	require.NoError(t, err)
	require.NotNil(t, consultation)
	assert.Equal(t, "c1", consultation.ID)
	assert.Equal(t, 420, consultation.TimeRemaining)
}

func TestEndConsultationUnwrapsOrder(t *testing.T) {
	body := `{"success": true, "order": {"orderId": "o1", "astrologerId": "p1", "amountCharged": 125.5}}`
	client, rec := newTestClient(t, http.StatusOK, body)

	summary, err := client.EndConsultation(context.Background(), "r1", "c1")

	require.NoError(t, err)
	assert.Equal(t, "/chat-request/end", rec.path)
	assert.Equal(t, "r1", rec.body["chatRequestId"])
	assert.Equal(t, "c1", rec.body["chatId"])
	assert.Equal(t, "o1", summary.OrderID)
	assert.InDelta(t, 125.5, summary.AmountCharged, 0.001)
}

func TestSubmitRatingUsesPut(t *testing.T) {
	client, rec := newTestClient(t, http.StatusOK, `{"success": true}`)

	err := client.SubmitRating(context.Background(), &types.Rating{OrderID: "o1", Stars: 5})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/order/updateReview", rec.path)
}

func TestGetWaitTime(t *testing.T) {
	client, rec := newTestClient(t, http.StatusOK, `{"success": true, "waitTime": 12}`)

	minutes, err := client.GetWaitTime(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, "/astro/wait-time/p1", rec.path)
	assert.Equal(t, 12, minutes)
}

func TestHTTPErrorCarriesServerMessage(t *testing.T) {
	client, _ := newTestClient(t, http.StatusPaymentRequired, `{"error": "Insufficient balance"}`)

	err := client.CancelRequest(context.Background(), "r1")

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusPaymentRequired, serverErr.StatusCode)
	assert.Equal(t, "Insufficient balance", serverErr.Message)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "No internet connection", UserMessage(&ServerError{Message: "No internet connection"}))
	assert.Equal(t, GenericFailureMessage, UserMessage(errors.New("dial tcp: connection refused")))
	assert.Equal(t, GenericFailureMessage, UserMessage(&ServerError{}))
}
