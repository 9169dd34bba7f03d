// Package api implements the REST client for the consultation backend.
// It covers eligibility checks, request lifecycle, waitlist membership,
// the active consultation, and rating capture.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"starcall/pkg/interfaces"
	"starcall/pkg/types"
)

const defaultTimeout = 15 * time.Second

// Config holds the client's connection settings.
type Config struct {
	BaseURL string
	Token   string        // bearer token of the authenticated user
	Timeout time.Duration // per-request timeout, defaults to 15s
}

// Client is the HTTP implementation of interfaces.Backend.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ interfaces.Backend = (*Client)(nil)

// NewClient creates a backend client from config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With().Str("component", "api").Logger(),
	}, nil
}

// CheckEligibility implements interfaces.Backend.
func (c *Client) CheckEligibility(ctx context.Context, providerID string, action types.Action) (*types.EligibilityResult, error) {
	query := url.Values{"action": {string(action)}}
	body, err := c.get(ctx, path.Join("chat-request", "check-eligibility", providerID), query)
	if err != nil {
		return nil, err
	}
	var result types.EligibilityResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding eligibility result: %w", err)
	}
	return &result, nil
}

// CreateRequest implements interfaces.Backend.
func (c *Client) CreateRequest(ctx context.Context, providerID string, action types.Action, details *types.IntakeDetails) (*types.PendingRequest, error) {
	payload := map[string]any{
		"astrologerId": providerID,
		"action":       action,
		"details":      details,
	}
	body, err := c.post(ctx, "chat-request/new", payload)
	if err != nil {
		return nil, err
	}
	if err := ensureSuccess(body); err != nil {
		return nil, err
	}
	raw := gjson.GetBytes(body, "chatRequest")
	if !raw.Exists() {
		return nil, ErrMalformedResponse
	}
	var req types.PendingRequest
	if err := json.Unmarshal([]byte(raw.Raw), &req); err != nil {
		return nil, fmt.Errorf("decoding pending request: %w", err)
	}
	return &req, nil
}

// CancelRequest implements interfaces.Backend.
func (c *Client) CancelRequest(ctx context.Context, requestID string) error {
	body, err := c.get(ctx, path.Join("chat-request", "cancel", requestID), nil)
	if err != nil {
		return err
	}
	return ensureSuccess(body)
}

// JoinWaitlist implements interfaces.Backend.
func (c *Client) JoinWaitlist(ctx context.Context, providerID string, action types.Action) error {
	payload := map[string]any{
		"astrologerId": providerID,
		"action":       action,
	}
	body, err := c.post(ctx, "chat-request/join-waitlist", payload)
	if err != nil {
		return err
	}
	return ensureSuccess(body)
}

// AcceptWaitlistInvitation implements interfaces.Backend. Chat and call
// invitations are accepted on different endpoints and wrap the adopted
// consultation under different keys.
func (c *Client) AcceptWaitlistInvitation(ctx context.Context, entryID string, action types.Action) (*types.ActiveConsultation, error) {
	endpoint := path.Join("chat-request", "user-accept-waitlisted", entryID)
	payloadKey := "chat"
	if action == types.ActionCall {
		endpoint = path.Join("call", "user-accept-waitlisted", entryID)
		payloadKey = "data"
	}
	body, err := c.get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if err := ensureSuccess(body); err != nil {
		return nil, err
	}
	raw := gjson.GetBytes(body, payloadKey)
	if !raw.Exists() {
		return nil, ErrMalformedResponse
	}
	var consultation types.ActiveConsultation
	if err := json.Unmarshal([]byte(raw.Raw), &consultation); err != nil {
		return nil, fmt.Errorf("decoding consultation: %w", err)
	}
	return &consultation, nil
}

// RejectWaitlistInvitation implements interfaces.Backend.
func (c *Client) RejectWaitlistInvitation(ctx context.Context, entryID string) error {
	body, err := c.get(ctx, path.Join("chat-request", "user-reject-waitlisted", entryID), nil)
	if err != nil {
		return err
	}
	return ensureSuccess(body)
}

// GetActiveConsultation implements interfaces.Backend. Returns nil with
// no error when the server reports no active session.
func (c *Client) GetActiveConsultation(ctx context.Context) (*types.ActiveConsultation, error) {
	body, err := c.get(ctx, "chat-request/active-chat", nil)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var consultation types.ActiveConsultation
	if err := json.Unmarshal(body, &consultation); err != nil {
		return nil, fmt.Errorf("decoding consultation: %w", err)
	}
	if consultation.ID == "" {
		return nil, nil
	}
	return &consultation, nil
}

// EndConsultation implements interfaces.Backend.
func (c *Client) EndConsultation(ctx context.Context, requestID, consultationID string) (*types.OrderSummary, error) {
	payload := map[string]any{
		"chatRequestId": requestID,
		"chatId":        consultationID,
	}
	body, err := c.post(ctx, "chat-request/end", payload)
	if err != nil {
		return nil, err
	}
	if err := ensureSuccess(body); err != nil {
		return nil, err
	}
	raw := gjson.GetBytes(body, "order")
	if !raw.Exists() {
		return nil, ErrMalformedResponse
	}
	var summary types.OrderSummary
	if err := json.Unmarshal([]byte(raw.Raw), &summary); err != nil {
		return nil, fmt.Errorf("decoding order summary: %w", err)
	}
	return &summary, nil
}

// SubmitRating implements interfaces.Backend.
func (c *Client) SubmitRating(ctx context.Context, rating *types.Rating) error {
	body, err := c.put(ctx, "order/updateReview", rating)
	if err != nil {
		return err
	}
	return ensureSuccess(body)
}

// GetWaitTime implements interfaces.Backend.
func (c *Client) GetWaitTime(ctx context.Context, providerID string) (int, error) {
	body, err := c.get(ctx, path.Join("astro", "wait-time", providerID), nil)
	if err != nil {
		return 0, err
	}
	waitTime := gjson.GetBytes(body, "waitTime")
	if !waitTime.Exists() {
		return 0, ErrMalformedResponse
	}
	return int(waitTime.Int()), nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, query, nil)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, endpoint, nil, payload)
}

func (c *Client) put(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	return c.do(ctx, http.MethodPut, endpoint, nil, payload)
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload any) ([]byte, error) {
	u := *c.baseURL
	u.Path = path.Join(u.Path, endpoint)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug().Int("status", resp.StatusCode).Str("endpoint", endpoint).
			Msg("server returned error status")
		return nil, &ServerError{
			StatusCode: resp.StatusCode,
			Message:    serverMessage(body),
		}
	}
	return body, nil
}

// ensureSuccess rejects a 2xx body whose success flag is explicitly
// false, surfacing the server's message verbatim when one is provided.
func ensureSuccess(body []byte) error {
	success := gjson.GetBytes(body, "success")
	if success.Exists() && !success.Bool() {
		return &ServerError{
			StatusCode: http.StatusOK,
			Message:    serverMessage(body),
		}
	}
	return nil
}

// serverMessage pulls the human-readable message out of an error body,
// falling back to a generic notice when the server gave none.
func serverMessage(body []byte) string {
	for _, key := range []string{"message", "error"} {
		if v := gjson.GetBytes(body, key); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return GenericFailureMessage
}
