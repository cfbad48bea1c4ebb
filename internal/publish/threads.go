package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beeziehmf/threadyflow-app/internal/types"
)

const (
	defaultGraphBaseURL   = "https://graph.facebook.com"
	defaultPublishBaseURL = "https://graph.threads.net"
	defaultTimeout        = 30 * time.Second
)

// ThreadsConfig carries the app credentials and endpoints for the Threads
// integration. Zero-value base URLs fall back to the production hosts.
type ThreadsConfig struct {
	AppID          string
	AppSecret      string
	GraphBaseURL   string // Facebook Graph API, used for the token exchange
	PublishBaseURL string // Threads publishing API
	Timeout        time.Duration
}

// ThreadsClient implements Publisher and Connector against the Threads API.
type ThreadsClient struct {
	cfg  ThreadsConfig
	http *http.Client
}

// NewThreadsClient builds a ThreadsClient.
func NewThreadsClient(cfg ThreadsConfig) *ThreadsClient {
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = defaultGraphBaseURL
	}
	if cfg.PublishBaseURL == "" {
		cfg.PublishBaseURL = defaultPublishBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ThreadsClient{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// ─── Token exchange ───────────────────────────────────────────────────────────

// Exchange implements Connector.
//
// The handshake mirrors the platform flow: upgrade the short-lived token,
// walk the user's pages for a linked business account, then resolve its
// username. The caller persists the returned connection.
func (c *ThreadsClient) Exchange(ctx context.Context, shortLivedToken string) (types.ThreadsConnection, error) {
	if shortLivedToken == "" {
		return types.ThreadsConnection{}, fmt.Errorf("publish: access token is required")
	}

	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", c.cfg.AppID)
	q.Set("client_secret", c.cfg.AppSecret)
	q.Set("fb_exchange_token", shortLivedToken)
	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.getJSON(ctx, c.graphURL("/v19.0/oauth/access_token", q), &tokenResp); err != nil {
		return types.ThreadsConnection{}, fmt.Errorf("publish: token exchange: %w", err)
	}
	longLived := tokenResp.AccessToken

	var pagesResp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.graphURL("/v19.0/me/accounts", tokenQuery(longLived)), &pagesResp); err != nil {
		return types.ThreadsConnection{}, fmt.Errorf("publish: list pages: %w", err)
	}

	var businessID string
	for _, page := range pagesResp.Data {
		q := tokenQuery(longLived)
		q.Set("fields", "instagram_business_account")
		var pageResp struct {
			InstagramBusinessAccount *struct {
				ID string `json:"id"`
			} `json:"instagram_business_account"`
		}
		if err := c.getJSON(ctx, c.graphURL("/v19.0/"+page.ID, q), &pageResp); err != nil {
			return types.ThreadsConnection{}, fmt.Errorf("publish: inspect page %s: %w", page.ID, err)
		}
		if pageResp.InstagramBusinessAccount != nil {
			businessID = pageResp.InstagramBusinessAccount.ID
			break
		}
	}
	if businessID == "" {
		return types.ThreadsConnection{}, fmt.Errorf("%w: no business account linked to any connected page", ErrNotConnected)
	}

	uq := tokenQuery(longLived)
	uq.Set("fields", "username")
	var userResp struct {
		Username string `json:"username"`
	}
	if err := c.getJSON(ctx, c.graphURL("/v19.0/"+businessID, uq), &userResp); err != nil {
		return types.ThreadsConnection{}, fmt.Errorf("publish: resolve username: %w", err)
	}

	return types.ThreadsConnection{
		AccessToken:    longLived,
		PlatformUserID: businessID,
		Username:       userResp.Username,
		ConnectedAtMs:  time.Now().UnixMilli(),
	}, nil
}

// ─── Publishing ───────────────────────────────────────────────────────────────

// Publish implements Publisher. Each post segment becomes a media container
// that is published immediately; segments after the first reference the
// previous published post so the platform renders them as one thread. A
// mid-thread failure returns the already-published prefix alongside the
// error; published posts are never rolled back.
func (c *ThreadsClient) Publish(ctx context.Context, conn types.ThreadsConnection, thread types.Thread) (Result, error) {
	if conn.AccessToken == "" || conn.PlatformUserID == "" {
		return Result{}, ErrNotConnected
	}
	if len(thread.Posts) == 0 {
		return Result{}, fmt.Errorf("publish: thread has no posts")
	}

	suffix := hashtagSuffix(thread.Hashtags)

	var res Result
	previousID := ""
	for i, post := range thread.Posts {
		container := map[string]string{
			"caption":    post.Text + suffix,
			"media_type": "TEXT",
		}
		if previousID != "" {
			container["children"] = previousID
		}

		var containerResp struct {
			ID string `json:"id"`
		}
		mediaURL := c.publishURL("/v1.0/"+conn.PlatformUserID+"/media", tokenQuery(conn.AccessToken))
		if err := c.postJSON(ctx, mediaURL, container, &containerResp); err != nil {
			return res, fmt.Errorf("publish: create container for post %d: %w", i+1, err)
		}

		pq := tokenQuery(conn.AccessToken)
		pq.Set("creation_id", containerResp.ID)
		var publishResp struct {
			ID string `json:"id"`
		}
		if err := c.postJSON(ctx, c.publishURL("/v1.0/"+conn.PlatformUserID+"/media_publish", pq), nil, &publishResp); err != nil {
			return res, fmt.Errorf("publish: publish post %d: %w", i+1, err)
		}

		res.PostIDs = append(res.PostIDs, publishResp.ID)
		previousID = publishResp.ID
	}
	return res, nil
}

// hashtagSuffix renders the caption tail appended to every segment.
func hashtagSuffix(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, "#"+strings.TrimPrefix(tag, "#"))
	}
	return "\n" + strings.Join(out, " ")
}

// ─── HTTP plumbing ────────────────────────────────────────────────────────────

func (c *ThreadsClient) graphURL(path string, q url.Values) string {
	return strings.TrimRight(c.cfg.GraphBaseURL, "/") + path + "?" + q.Encode()
}

func (c *ThreadsClient) publishURL(path string, q url.Values) string {
	return strings.TrimRight(c.cfg.PublishBaseURL, "/") + path + "?" + q.Encode()
}

func tokenQuery(token string) url.Values {
	q := url.Values{}
	q.Set("access_token", token)
	return q
}

func (c *ThreadsClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *ThreadsClient) postJSON(ctx context.Context, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *ThreadsClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
