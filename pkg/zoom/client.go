// Package zoom is a small Server-to-Server OAuth client for the Zoom meetings API.
package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/pkg/config"
)

// ErrNotConfigured is returned by Disabled when no credentials are present.
var ErrNotConfigured = errors.New("zoom: credentials not configured")

const startTimeLayout = "2006-01-02T15:04:05"

// MeetingRequest describes a meeting to schedule. Date is YYYY-MM-DD and Time HH:MM in
// Timezone.
type MeetingRequest struct {
	Topic           string
	HostEmails      []string
	Date            string
	Time            string
	DurationMinutes int
	Timezone        string
	Agenda          string
}

// Meeting is the provisioned meeting returned by the provider.
type Meeting struct {
	MeetingID string `json:"meeting_id"`
	JoinURL   string `json:"join_url"`
	StartURL  string `json:"start_url"`
	HostEmail string `json:"host_email"`
	Password  string `json:"password,omitempty"`
}

// APIError carries the provider's status and message.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("zoom: status %d", e.StatusCode)
	}
	return fmt.Sprintf("zoom: status %d: %s", e.StatusCode, e.Message)
}

// Client calls the Zoom REST API, caching the account access token until shortly before
// it expires.
type Client struct {
	accountID    string
	clientID     string
	clientSecret string
	defaultHost  string
	baseURL      string
	authURL      string
	httpClient   *http.Client
	logger       *zap.Logger
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient builds a client from configuration.
func NewClient(cfg config.ZoomConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	defaultHost := cfg.DefaultHost
	if defaultHost == "" {
		defaultHost = "me"
	}
	return &Client{
		accountID:    cfg.AccountID,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		defaultHost:  defaultHost,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		authURL:      cfg.AuthURL,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	q := url.Values{}
	q.Set("grant_type", "account_credentials")
	q.Set("account_id", c.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("zoom: build token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)

	var tok tokenResponse
	if err := c.do(req, &tok); err != nil {
		return "", fmt.Errorf("zoom: fetch access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("zoom: empty access token")
	}
	// refresh one minute before the provider expiry
	ttl := time.Duration(tok.ExpiresIn)*time.Second - time.Minute
	if ttl < 0 {
		ttl = 0
	}
	c.token = tok.AccessToken
	c.expiresAt = c.now().Add(ttl)
	return c.token, nil
}

type settings struct {
	JoinBeforeHost   bool   `json:"join_before_host"`
	WaitingRoom      bool   `json:"waiting_room"`
	AlternativeHosts string `json:"alternative_hosts,omitempty"`
}

type createMeetingBody struct {
	Topic     string   `json:"topic"`
	Type      int      `json:"type"`
	StartTime string   `json:"start_time"`
	Duration  int      `json:"duration"`
	Timezone  string   `json:"timezone,omitempty"`
	Agenda    string   `json:"agenda,omitempty"`
	Settings  settings `json:"settings"`
}

type createMeetingResponse struct {
	ID        int64  `json:"id"`
	JoinURL   string `json:"join_url"`
	StartURL  string `json:"start_url"`
	HostEmail string `json:"host_email"`
	Password  string `json:"password"`
}

// CreateMeeting schedules a meeting. The first host email owns the meeting (or the
// configured default host when none is given) and the rest become alternative hosts.
func (c *Client) CreateMeeting(ctx context.Context, in MeetingRequest) (*Meeting, error) {
	start, err := time.Parse("2006-01-02 15:04", in.Date+" "+in.Time)
	if err != nil {
		return nil, fmt.Errorf("zoom: invalid start %q %q: %w", in.Date, in.Time, err)
	}
	host := c.defaultHost
	var alternates []string
	for i, email := range in.HostEmails {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		if i == 0 {
			host = email
			continue
		}
		alternates = append(alternates, email)
	}

	body := createMeetingBody{
		Topic:     in.Topic,
		Type:      2,
		StartTime: start.Format(startTimeLayout),
		Duration:  in.DurationMinutes,
		Timezone:  in.Timezone,
		Agenda:    in.Agenda,
		Settings: settings{
			JoinBeforeHost:   false,
			WaitingRoom:      true,
			AlternativeHosts: strings.Join(alternates, ";"),
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("zoom: encode meeting: %w", err)
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/users/%s/meetings", c.baseURL, url.PathEscape(host))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("zoom: build create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var out createMeetingResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	c.logger.Info("zoom meeting created", zap.Int64("meeting_id", out.ID), zap.String("host", out.HostEmail))
	return &Meeting{
		MeetingID: strconv.FormatInt(out.ID, 10),
		JoinURL:   out.JoinURL,
		StartURL:  out.StartURL,
		HostEmail: out.HostEmail,
		Password:  out.Password,
	}, nil
}

// DeleteMeeting removes a meeting. A 404 from the provider counts as success.
func (c *Client) DeleteMeeting(ctx context.Context, meetingID string) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/meetings/%s", c.baseURL, url.PathEscape(meetingID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("zoom: build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	err = c.do(req, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) do(req *http.Request, out interface{}) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("zoom: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("zoom: read response: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: res.StatusCode}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("zoom: decode response: %w", err)
	}
	return nil
}

// Disabled stands in when credentials are absent; every call fails with ErrNotConfigured.
type Disabled struct{}

func (Disabled) CreateMeeting(context.Context, MeetingRequest) (*Meeting, error) {
	return nil, ErrNotConfigured
}

func (Disabled) DeleteMeeting(context.Context, string) error {
	return ErrNotConfigured
}
