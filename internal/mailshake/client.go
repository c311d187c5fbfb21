// Package mailshake submits recipients to Mailshake campaigns.
package mailshake

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/octobees/prospect-bridge/internal/entity"
)

const (
	// DefaultBaseURL is the versioned Mailshake API root.
	DefaultBaseURL = "https://api.mailshake.com/2017-04-01"

	defaultPollAttempts = 5
	defaultPollInterval = 30 * time.Second
	defaultHTTPTimeout  = 30 * time.Second
	maxErrorBody        = 64 << 10
)

var (
	// ErrUnauthorized indicates Mailshake rejected the API key.
	ErrUnauthorized = errors.New("mailshake rejected api key")
	// ErrUnknownCampaign indicates a configured campaign id is absent from the account.
	ErrUnknownCampaign = errors.New("mailshake campaign not found")
)

// DeliveryError describes a failed recipient submission. StatusCode is zero
// when the request never produced a response.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("mailshake api error %d: %s", e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("mailshake request failed: %v", e.Err)
	}
	return "mailshake request failed"
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Client talks to the Mailshake REST API.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	auth         string
	limiter      *rate.Limiter
	pollAttempts int
	pollInterval time.Duration
	wait         WaitFunc
	logger       *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRateLimit throttles outbound calls to requests per interval.
func WithRateLimit(requests int, interval time.Duration) Option {
	return func(c *Client) {
		if requests <= 0 || interval <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval/time.Duration(requests)), requests)
	}
}

// WithPolling sets the add-status poll budget.
func WithPolling(attempts int, interval time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.pollAttempts = attempts
		}
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithWaitFunc replaces the sleep used between polls.
func WithWaitFunc(wait WaitFunc) Option {
	return func(c *Client) {
		if wait != nil {
			c.wait = wait
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client authenticating with apiKey.
func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:      baseURL,
		auth:         "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey+":")),
		pollAttempts: defaultPollAttempts,
		pollInterval: defaultPollInterval,
		wait:         sleep,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type recipientFields struct {
	First    string `json:"first"`
	Last     string `json:"last"`
	LinkedIn string `json:"linkedin"`
	Company  string `json:"company"`
	Phone    string `json:"phone,omitempty"`
}

type recipientAddress struct {
	EmailAddress string          `json:"emailAddress"`
	FullName     string          `json:"fullName"`
	Fields       recipientFields `json:"fields"`
}

type addRecipientsRequest struct {
	CampaignID   int64              `json:"campaignID"`
	AddAsNewList bool               `json:"addAsNewList"`
	Addresses    []recipientAddress `json:"addresses"`
}

type addRecipientsResponse struct {
	Results struct {
		CheckStatusID json.RawMessage `json:"checkStatusID"`
	} `json:"results"`
}

type addStatusResponse struct {
	Results struct {
		IsFinished bool `json:"isFinished"`
	} `json:"results"`
}

// Send adds the prospect to a campaign. When Mailshake answers with a
// checkStatusID the add-status endpoint is polled; polling never fails the send.
func (c *Client) Send(ctx context.Context, prospect entity.Prospect, campaignID string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(campaignID), 10, 64)
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("invalid campaign id %q", campaignID)}
	}

	payload := addRecipientsRequest{
		CampaignID:   id,
		AddAsNewList: false,
		Addresses: []recipientAddress{{
			EmailAddress: prospect.Email,
			FullName:     prospect.FullName(),
			Fields: recipientFields{
				First:    prospect.FirstName,
				Last:     prospect.LastName,
				LinkedIn: prospect.LinkedInURL,
				Company:  prospect.Company,
				Phone:    prospect.Phone,
			},
		}},
	}

	c.logger.Info("calling mailshake recipients/add", zap.String("email", prospect.Email), zap.Int64("campaign_id", id))

	status, body, err := c.post(ctx, "/recipients/add", payload)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	if status < 200 || status >= 300 {
		return &DeliveryError{StatusCode: status, Body: string(body)}
	}

	var resp addRecipientsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("could not decode recipients/add response", zap.String("email", prospect.Email), zap.Error(err))
		return nil
	}

	checkID := resp.Results.CheckStatusID
	if len(checkID) == 0 || string(checkID) == "null" {
		return nil
	}
	c.pollAddStatus(ctx, checkID)
	return nil
}

// pollAddStatus waits before every poll and stops once the job reports finished.
func (c *Client) pollAddStatus(ctx context.Context, checkID json.RawMessage) {
	logger := c.logger.With(zap.String("check_status_id", string(checkID)))
	req := map[string]json.RawMessage{"checkStatusID": checkID}

	for i := 1; i <= c.pollAttempts; i++ {
		if err := c.wait(ctx, c.pollInterval); err != nil {
			logger.Warn("add-status polling interrupted", zap.Int("poll", i), zap.Error(err))
			return
		}

		status, body, err := c.post(ctx, "/recipients/add-status", req)
		if err != nil {
			logger.Warn("add-status poll failed", zap.Int("poll", i), zap.Error(err))
			continue
		}
		if status < 200 || status >= 300 {
			logger.Warn("add-status poll error", zap.Int("poll", i), zap.Int("status", status), zap.ByteString("body", body))
			continue
		}

		var resp addStatusResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			logger.Warn("could not decode add-status response", zap.Int("poll", i), zap.Error(err))
			continue
		}
		if resp.Results.IsFinished {
			logger.Info("add-status finished", zap.Int("poll", i))
			return
		}
	}
	logger.Warn("add-status polling exhausted", zap.Int("attempts", c.pollAttempts))
}

// Campaign is a campaign as listed by Mailshake.
type Campaign struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// ValidateCampaigns checks the API key and that every id exists in the account.
func (c *Client) ValidateCampaigns(ctx context.Context, ids ...string) ([]Campaign, error) {
	status, body, err := c.post(ctx, "/campaigns/list", struct{}{})
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, fmt.Errorf("list campaigns: %w (status %d)", ErrUnauthorized, status)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("list campaigns: %w", &DeliveryError{StatusCode: status, Body: string(body)})
	}

	var resp struct {
		Results []Campaign `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode campaigns: %w", err)
	}

	known := make(map[int64]struct{}, len(resp.Results))
	for _, campaign := range resp.Results {
		known[campaign.ID] = struct{}{}
	}

	var missing []string
	for _, raw := range ids {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			missing = append(missing, raw)
			continue
		}
		if _, ok := known[id]; !ok {
			missing = append(missing, raw)
		}
	}
	if len(missing) > 0 {
		return resp.Results, fmt.Errorf("%w: %s", ErrUnknownCampaign, strings.Join(missing, ", "))
	}
	return resp.Results, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal payload: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create mailshake request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("mailshake request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read mailshake response: %w", err)
	}
	return resp.StatusCode, bytes.TrimSpace(respBody), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
