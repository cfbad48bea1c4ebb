// Package client is the official Go SDK for the ThreadFlow API.
//
// # Quick start
//
//	c := client.New("http://localhost:8080")
//
//	state, err := c.SignIn(ctx, "user-1")
//
//	thread, err := c.Generate(ctx, "why B2B brands win on Threads")
//
//	// Queue it for automatic placement
//	res, err := c.Enqueue(ctx, thread, accountID, "")
//
// # Error handling
//
// All methods return an *APIError when the server responds with a non-2xx
// status code. Check errors.As(err, &client.APIError{}) to inspect the HTTP
// status and server message.
//
// # Connection reuse
//
// Client is safe for concurrent use. It shares a single http.Client
// internally so connections are reused across goroutines.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ─── Error type ───────────────────────────────────────────────────────────────

// APIError is returned when the ThreadFlow server responds with a non-2xx status.
type APIError struct {
	StatusCode int    // HTTP status code
	Message    string // "error" field from the JSON response body
}

func (e *APIError) Error() string {
	return fmt.Sprintf("threadflow: server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// IsSlotTaken reports whether the error is a 409: the requested calendar
// slot is already occupied.
func IsSlotTaken(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusConflict
}

// IsThrottled reports whether the error is a 429: the session's generation
// ceiling has been reached.
func IsThrottled(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized reports whether the error is a 401 (missing or expired
// session token, or a bad API key).
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusUnauthorized
}

// ─── Client options ───────────────────────────────────────────────────────────

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent in every request as the X-Api-Key header.
// Required when the server has auth.enabled = true.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default http.Client.
// Use this to configure TLS, proxies, or request tracing.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
// The default is 30 seconds.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithSessionToken resumes an existing session instead of calling SignIn.
func WithSessionToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// ─── Client ───────────────────────────────────────────────────────────────────

// Client is the ThreadFlow API client. It is safe for concurrent use; the
// session token obtained by SignIn is attached to every subsequent request.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a new Client that connects to the ThreadFlow server at baseURL.
//
//	c := client.New("http://localhost:8080")
//	c := client.New("http://planner.example.com", client.WithAPIKey("secret"))
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SessionToken returns the current session token, if any.
func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// ─── Domain types ─────────────────────────────────────────────────────────────

// Post is one segment of a thread.
type Post struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Thread is a multi-post draft.
type Thread struct {
	Title    string   `json:"title"`
	Posts    []Post   `json:"posts"`
	Hashtags []string `json:"hashtags"`
}

// Account is a connected social destination.
type Account struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	Name     string `json:"name"`
}

// Pillar is a content category used to balance the calendar.
type Pillar struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Pattern is the weekly availability pattern driving automatic placement.
type Pattern struct {
	Days  []int    `json:"days"`  // 0 = Sunday … 6 = Saturday
	Times []string `json:"times"` // "HH:MM", 24-hour
}

// QueuedPost is a backlog entry awaiting automatic placement.
type QueuedPost struct {
	ID        string `json:"id"`
	Thread
	AccountID string `json:"account_id"`
	PillarID  string `json:"pillar_id,omitempty"`
}

// ScheduledPost is a thread committed to a calendar slot.
type ScheduledPost struct {
	ID string `json:"id"`
	Thread
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	Platform    string `json:"platform"`
	PillarID    string `json:"pillar_id,omitempty"`
	Date        string `json:"date"` // "YYYY-MM-DD"
	Time        string `json:"time"` // "HH:MM"
}

// VoiceProfile is the result of a brand-voice analysis.
type VoiceProfile struct {
	Tone        string `json:"tone"`
	Style       string `json:"style"`
	Description string `json:"description"`
}

// VoiceSample is a stored writing sample.
type VoiceSample struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ActivityEntry is one line of the recent-activity feed.
type ActivityEntry struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	UnixMs int64  `json:"unix_ms"`
}

// State is the full session snapshot returned by SignIn and State.
type State struct {
	Accounts        []Account       `json:"accounts"`
	Pillars         []Pillar        `json:"pillars"`
	Queued          []QueuedPost    `json:"queued"`
	Scheduled       []ScheduledPost `json:"scheduled"`
	Pattern         Pattern         `json:"pattern"`
	VoiceSamples    []VoiceSample   `json:"voice_samples"`
	VoiceProfile    *VoiceProfile   `json:"voice_profile,omitempty"`
	GenerationCount int             `json:"generation_count"`
	GenerationLimit int             `json:"generation_limit"`
	Activity        []ActivityEntry `json:"activity"`
	ThreadsLinked   bool            `json:"threads_linked"`
	Revision        uint64          `json:"revision"`
}

// HealthInfo contains the data returned by the /health endpoint.
type HealthInfo struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// EnqueueResult reports where a queued thread ended up: still in the queue,
// or already placed on the calendar by the scheduling pass.
type EnqueueResult struct {
	Entry QueuedPost `json:"entry"`
	State State      `json:"state"`
}

// ─── Session lifecycle ────────────────────────────────────────────────────────

// SignIn opens a session for userID and stores the returned token on the
// client for all subsequent calls.
func (c *Client) SignIn(ctx context.Context, userID string) (State, error) {
	var resp struct {
		Token string `json:"token"`
		State State  `json:"state"`
	}
	body := map[string]string{"user_id": userID}
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &resp); err != nil {
		return State{}, err
	}
	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return resp.State, nil
}

// SignOut invalidates the session token.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/sessions", nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return nil
}

// State fetches the full session snapshot.
func (c *Client) State(ctx context.Context) (State, error) {
	var s State
	err := c.do(ctx, http.MethodGet, "/state", nil, &s)
	return s, err
}

// ─── Accounts ─────────────────────────────────────────────────────────────────

// AddAccount connects a social destination. platform must be one of
// "Threads", "Instagram", or "Facebook".
func (c *Client) AddAccount(ctx context.Context, platform, name string) (Account, error) {
	var acct Account
	body := map[string]string{"platform": platform, "name": name}
	err := c.do(ctx, http.MethodPost, "/accounts", body, &acct)
	return acct, err
}

// RemoveAccount disconnects an account. Queued posts that referenced it are
// dropped by the next scheduling pass.
func (c *Client) RemoveAccount(ctx context.Context, accountID string) error {
	return c.do(ctx, http.MethodDelete, "/accounts/"+accountID, nil, nil)
}

// ─── Pillars ──────────────────────────────────────────────────────────────────

// AddPillar creates a content pillar.
func (c *Client) AddPillar(ctx context.Context, name, color string) (Pillar, error) {
	var p Pillar
	body := map[string]string{"name": name, "color": color}
	err := c.do(ctx, http.MethodPost, "/pillars", body, &p)
	return p, err
}

// UpdatePillar renames or recolors an existing pillar.
func (c *Client) UpdatePillar(ctx context.Context, p Pillar) error {
	body := map[string]string{"name": p.Name, "color": p.Color}
	return c.do(ctx, http.MethodPut, "/pillars/"+p.ID, body, nil)
}

// RemovePillar deletes a pillar.
func (c *Client) RemovePillar(ctx context.Context, pillarID string) error {
	return c.do(ctx, http.MethodDelete, "/pillars/"+pillarID, nil, nil)
}

// ─── Generation & voice ───────────────────────────────────────────────────────

// Generate asks the AI collaborator for a thread draft. It fails with a 429
// (see IsThrottled) once the session's generation ceiling is reached.
func (c *Client) Generate(ctx context.Context, idea string) (Thread, error) {
	var t Thread
	body := map[string]string{"idea": idea}
	err := c.do(ctx, http.MethodPost, "/generate", body, &t)
	return t, err
}

// AddVoiceSample stores a writing sample for voice analysis.
func (c *Client) AddVoiceSample(ctx context.Context, text string) (VoiceSample, error) {
	var s VoiceSample
	err := c.do(ctx, http.MethodPost, "/voice/samples", map[string]string{"text": text}, &s)
	return s, err
}

// RemoveVoiceSample deletes a writing sample.
func (c *Client) RemoveVoiceSample(ctx context.Context, sampleID string) error {
	return c.do(ctx, http.MethodDelete, "/voice/samples/"+sampleID, nil, nil)
}

// AnalyzeVoice distills the stored samples into a voice profile that steers
// subsequent Generate calls for this session.
func (c *Client) AnalyzeVoice(ctx context.Context) (VoiceProfile, error) {
	var p VoiceProfile
	err := c.do(ctx, http.MethodPost, "/voice/analyze", nil, &p)
	return p, err
}

// ─── Pattern ──────────────────────────────────────────────────────────────────

// Pattern fetches the weekly availability pattern.
func (c *Client) Pattern(ctx context.Context) (Pattern, error) {
	var p Pattern
	err := c.do(ctx, http.MethodGet, "/pattern", nil, &p)
	return p, err
}

// SetPattern replaces the weekly availability pattern and returns the state
// after the scheduling pass it triggers.
func (c *Client) SetPattern(ctx context.Context, p Pattern) (State, error) {
	var s State
	err := c.do(ctx, http.MethodPut, "/pattern", p, &s)
	return s, err
}

// ─── Queue & calendar ─────────────────────────────────────────────────────────

// Enqueue adds a thread to the backlog for automatic placement.
func (c *Client) Enqueue(ctx context.Context, thread Thread, accountID, pillarID string) (EnqueueResult, error) {
	var res EnqueueResult
	body := map[string]any{
		"thread":     thread,
		"account_id": accountID,
		"pillar_id":  pillarID,
	}
	err := c.do(ctx, http.MethodPost, "/queue", body, &res)
	return res, err
}

// Queue lists the backlog entries still awaiting placement, in order.
func (c *Client) Queue(ctx context.Context) ([]QueuedPost, error) {
	var resp struct {
		Queued []QueuedPost `json:"queued"`
	}
	err := c.do(ctx, http.MethodGet, "/queue", nil, &resp)
	return resp.Queued, err
}

// Schedule commits a thread to an explicit calendar slot. It fails with a
// 409 (see IsSlotTaken) when the slot is occupied.
func (c *Client) Schedule(ctx context.Context, thread Thread, accountID, date, timeOfDay, pillarID string) (ScheduledPost, error) {
	var post ScheduledPost
	body := map[string]any{
		"thread":     thread,
		"account_id": accountID,
		"date":       date,
		"time":       timeOfDay,
		"pillar_id":  pillarID,
	}
	err := c.do(ctx, http.MethodPost, "/scheduled", body, &post)
	return post, err
}

// Scheduled lists the committed calendar, sorted by date then time.
func (c *Client) Scheduled(ctx context.Context) ([]ScheduledPost, error) {
	var resp struct {
		Scheduled []ScheduledPost `json:"scheduled"`
	}
	err := c.do(ctx, http.MethodGet, "/scheduled", nil, &resp)
	return resp.Scheduled, err
}

// Unschedule removes a committed post from the calendar.
func (c *Client) Unschedule(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/scheduled/"+postID, nil, nil)
}

// ─── Activity ─────────────────────────────────────────────────────────────────

// Activity returns the recent-activity feed, newest first.
func (c *Client) Activity(ctx context.Context) ([]ActivityEntry, error) {
	var resp struct {
		Activity []ActivityEntry `json:"activity"`
	}
	err := c.do(ctx, http.MethodGet, "/activity", nil, &resp)
	return resp.Activity, err
}

// ─── Integrations ─────────────────────────────────────────────────────────────

// ConnectThreads exchanges a short-lived OAuth token for a persistent
// Threads connection and returns the linked username.
func (c *Client) ConnectThreads(ctx context.Context, accessToken string) (string, error) {
	var resp struct {
		Username string `json:"username"`
	}
	body := map[string]string{"access_token": accessToken}
	err := c.do(ctx, http.MethodPost, "/integrations/threads", body, &resp)
	return resp.Username, err
}

// ─── Health ───────────────────────────────────────────────────────────────────

// Health fetches server health information.
func (c *Client) Health(ctx context.Context) (HealthInfo, error) {
	var h HealthInfo
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

// Stats fetches the server's aggregated pipeline counters.
func (c *Client) Stats(ctx context.Context) (map[string]int64, error) {
	var stats map[string]int64
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &stats)
	return stats, err
}

// ─── HTTP transport ───────────────────────────────────────────────────────────

// do performs a single HTTP request.
// body is encoded as JSON when non-nil, resp is decoded from JSON when non-nil.
// A 204 No Content response is treated as success with no body.
func (c *Client) do(ctx context.Context, method, path string, body, resp any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("threadflow: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("threadflow: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if token := c.SessionToken(); token != "" {
		req.Header.Set("X-Session-Token", token)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("threadflow: request %s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	// Success without body
	if httpResp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("threadflow: read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = http.StatusText(httpResp.StatusCode)
		}
		return &APIError{StatusCode: httpResp.StatusCode, Message: msg}
	}

	if resp != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, resp); err != nil {
			return fmt.Errorf("threadflow: decode response: %w", err)
		}
	}
	return nil
}
