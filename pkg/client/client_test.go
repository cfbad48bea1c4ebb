package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beeziehmf/threadyflow-app/internal/config"
	"github.com/beeziehmf/threadyflow-app/internal/metrics"
	"github.com/beeziehmf/threadyflow-app/internal/store"
	transphttp "github.com/beeziehmf/threadyflow-app/internal/transport/http"
	"github.com/beeziehmf/threadyflow-app/internal/types"
	"github.com/beeziehmf/threadyflow-app/pkg/client"
)

// ─── test server helpers ──────────────────────────────────────────────────────

// fixedNow anchors scheduling passes to a Sunday noon so slot placement is
// deterministic across test runs.
var fixedNow = time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct{}

func (fakeGenerator) GenerateThread(_ context.Context, idea string, _ *types.VoiceProfile) (types.Thread, error) {
	return types.Thread{
		Title:    "About: " + idea,
		Posts:    []types.PostSegment{{ID: "seg-1", Text: "Hook line."}, {ID: "seg-2", Text: "Payoff."}},
		Hashtags: []string{"b2b"},
	}, nil
}

func (fakeGenerator) AnalyzeVoice(_ context.Context, _ []string) (types.VoiceProfile, error) {
	return types.VoiceProfile{Tone: "confident", Style: "short sentences", Description: "punchy"}, nil
}

type fakeConnector struct{}

func (fakeConnector) Exchange(_ context.Context, _ string) (types.ThreadsConnection, error) {
	return types.ThreadsConnection{
		AccessToken:    "long-lived",
		PlatformUserID: "biz-1",
		Username:       "corpbrand",
		ConnectedAtMs:  fixedNow.UnixMilli(),
	}, nil
}

// newTestEnv spins up a real ThreadFlow stack (store + HTTP) backed by
// httptest.Server. All resources are cleaned up in t.Cleanup.
func newTestEnv(t *testing.T, opts ...client.ClientOption) *client.Client {
	t.Helper()
	return newTestEnvWithConfig(t, config.Default(), opts...)
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config, opts ...client.ClientOption) *client.Client {
	t.Helper()

	db, err := store.OpenDB(filepath.Join(t.TempDir(), "threadflow.db"))
	if err != nil {
		t.Fatalf("store.OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	reg := new(metrics.Registry)
	st := store.New(db, store.Options{
		GenerationLimit: 2,
		Now:             func() time.Time { return fixedNow },
		Metrics:         reg,
	})

	cfg.Metrics.Enabled = true
	srv := transphttp.New(st, fakeGenerator{}, fakeConnector{}, cfg, reg)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return client.New(ts.URL, opts...)
}

// ctx is a convenience context for tests.
func ctx() context.Context { return context.Background() }

func signIn(t *testing.T, c *client.Client, userID string) client.State {
	t.Helper()
	state, err := c.SignIn(ctx(), userID)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	return state
}

func sampleThread(title string) client.Thread {
	return client.Thread{
		Title:    title,
		Posts:    []client.Post{{ID: "p-1", Text: "First post."}},
		Hashtags: []string{"launch"},
	}
}

// ─── Session tests ────────────────────────────────────────────────────────────

func TestSession_SignInSignOut(t *testing.T) {
	c := newTestEnv(t)

	state := signIn(t, c, "user-1")
	if state.GenerationLimit != 2 {
		t.Errorf("GenerationLimit = %d, want 2", state.GenerationLimit)
	}
	if c.SessionToken() == "" {
		t.Fatal("session token should be stored after SignIn")
	}

	if _, err := c.State(ctx()); err != nil {
		t.Fatalf("State: %v", err)
	}

	if err := c.SignOut(ctx()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if c.SessionToken() != "" {
		t.Error("session token should be cleared after SignOut")
	}

	_, err := c.State(ctx())
	if !client.IsUnauthorized(err) {
		t.Fatalf("want IsUnauthorized after sign-out, got %v", err)
	}
}

func TestSession_EmptyUserRejected(t *testing.T) {
	c := newTestEnv(t)

	_, err := c.SignIn(ctx(), "")
	var ae *client.APIError
	if !errors.As(err, &ae) || ae.StatusCode != 400 {
		t.Fatalf("want 400 APIError, got %v", err)
	}
}

// ─── Account tests ────────────────────────────────────────────────────────────

func TestAccounts_AddRemove(t *testing.T) {
	c := newTestEnv(t)
	signIn(t, c, "user-1")

	acct, err := c.AddAccount(ctx(), "Threads", "@corp")
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if acct.ID == "" || acct.Platform != "Threads" {
		t.Fatalf("unexpected account: %+v", acct)
	}

	if _, err := c.AddAccount(ctx(), "MySpace", "@retro"); err == nil {
		t.Fatal("unknown platform should be rejected")
	}

	if err := c.RemoveAccount(ctx(), acct.ID); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}
	if err := c.RemoveAccount(ctx(), acct.ID); !client.IsNotFound(err) {
		t.Fatalf("want IsNotFound on second remove, got %v", err)
	}
}

// ─── Pillar tests ─────────────────────────────────────────────────────────────

func TestPillars_CRUD(t *testing.T) {
	c := newTestEnv(t)
	signIn(t, c, "user-1")

	p, err := c.AddPillar(ctx(), "Product", "#ff0000")
	if err != nil {
		t.Fatalf("AddPillar: %v", err)
	}

	p.Name = "Product updates"
	if err := c.UpdatePillar(ctx(), p); err != nil {
		t.Fatalf("UpdatePillar: %v", err)
	}

	state, err := c.State(ctx())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(state.Pillars) != 1 || state.Pillars[0].Name != "Product updates" {
		t.Fatalf("pillars = %+v", state.Pillars)
	}

	if err := c.RemovePillar(ctx(), p.ID); err != nil {
		t.Fatalf("RemovePillar: %v", err)
	}
	if err := c.RemovePillar(ctx(), p.ID); !client.IsNotFound(err) {
		t.Fatalf("want IsNotFound, got %v", err)
	}
}

// ─── Generation tests ─────────────────────────────────────────────────────────

func TestGenerate_ThrottlesAtLimit(t *testing.T) {
	c := newTestEnv(t)
	signIn(t, c, "user-1")

	thread, err := c.Generate(ctx(), "why consistency beats virality")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if thread.Title != "About: why consistency beats virality" {
		t.Errorf("Title = %q", thread.Title)
	}
	if len(thread.Posts) == 0 {
		t.Fatal("generated thread has no posts")
	}

	if _, err := c.Generate(ctx(), "second idea"); err != nil {
		t.Fatalf("Generate second: %v", err)
	}

	_, err = c.Generate(ctx(), "one too many")
	if !client.IsThrottled(err) {
		t.Fatalf("want IsThrottled at the ceiling, got %v", err)
	}
}

// ─── Voice tests ──────────────────────────────────────────────────────────────

func TestVoice_SampleAndAnalyze(t *testing.T) {
	c := newTestEnv(t)
	signIn(t, c, "user-1")

	// Analyzing with no stored samples is a client error.
	if _, err := c.AnalyzeVoice(ctx()); err == nil {
		t.Fatal("AnalyzeVoice without samples should fail")
	}

	sample, err := c.AddVoiceSample(ctx(), "We ship every Tuesday. No exceptions.")
	if err != nil {
		t.Fatalf("AddVoiceSample: %v", err)
	}

	profile, err := c.AnalyzeVoice(ctx())
	if err != nil {
		t.Fatalf("AnalyzeVoice: %v", err)
	}
	if profile.Tone != "confident" {
		t.Errorf("Tone = %q", profile.Tone)
	}

	state, _ := c.State(ctx())
	if state.VoiceProfile == nil || state.VoiceProfile.Tone != "confident" {
		t.Fatalf("voice profile not in state: %+v", state.VoiceProfile)
	}

	if err := c.RemoveVoiceSample(ctx(), sample.ID); err != nil {
		t.Fatalf("RemoveVoiceSample: %v", err)
	}
}

// ─── Pattern & queue tests ────────────────────────────────────────────────────

func TestQueue_AutoPlacement(t *testing.T) {
	c := newTestEnv(t)
	signIn(t, c, "user-1")

	acct, err := c.AddAccount(ctx(), "Threads", "@corp")
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}

	// Mondays at 09:00; the anchor clock is Sunday noon so the first free
	// slot is the next morning.
	state, err := c.SetPattern(ctx(), client.Pattern{Days: []int{1}, Times: []string{"09:00"}})
	if err != nil {
		t.Fatalf("SetPattern: %v", err)
	}
	if len(state.Pattern.Days) != 1 {
		t.Fatalf("pattern not stored: %+v", state.Pattern)
	}

	res, err := c.Enqueue(ctx(), sampleThread("Launch recap"), acct.ID, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if res.Entry.Title != "Launch recap" {
		t.Errorf("entry title = %q", res.Entry.Title)
	}
	if len(res.State.Scheduled) != 1 {
		t.Fatalf("scheduled = %+v", res.State.Scheduled)
	}
	placed := res.State.Scheduled[0]
	if placed.Date != "2026-08-31" || placed.Time != "09:00" {
		t.Errorf("placed at %s %s, want 2026-08-31 09:00", placed.Date, placed.Time)
	}
	if placed.AccountName != "@corp" {
		t.Errorf("AccountName = %q", placed.AccountName)
	}

	queued, err := c.Queue(ctx())
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if len(queued) != 0 {
		t.Fatalf("backlog should be empty after placement, got %+v", queued)
	}
}

func TestPattern_InvalidDayRejected(t *testing.T) {
	c := newTestEnv(t)
	signIn(t, c, "user-1")

	_, err := c.SetPattern(ctx(), client.Pattern{Days: []int{9}, Times: []string{"09:00"}})
	var ae *client.APIError
	if !errors.As(err, &ae) || ae.StatusCode != 400 {
		t.Fatalf("want 400 APIError, got %v", err)
	}
}

// ─── Calendar tests ───────────────────────────────────────────────────────────

func TestSchedule_ConflictAndUnschedule(t *testing.T) {
	c := newTestEnv(t)
	signIn(t, c, "user-1")

	acct, _ := c.AddAccount(ctx(), "Threads", "@corp")

	post, err := c.Schedule(ctx(), sampleThread("Case study"), acct.ID, "2026-09-01", "10:00", "")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	_, err = c.Schedule(ctx(), sampleThread("Collision"), acct.ID, "2026-09-01", "10:00", "")
	if !client.IsSlotTaken(err) {
		t.Fatalf("want IsSlotTaken, got %v", err)
	}

	scheduled, err := c.Scheduled(ctx())
	if err != nil {
		t.Fatalf("Scheduled: %v", err)
	}
	if len(scheduled) != 1 || scheduled[0].ID != post.ID {
		t.Fatalf("scheduled = %+v", scheduled)
	}

	if err := c.Unschedule(ctx(), post.ID); err != nil {
		t.Fatalf("Unschedule: %v", err)
	}
	if err := c.Unschedule(ctx(), post.ID); !client.IsNotFound(err) {
		t.Fatalf("want IsNotFound, got %v", err)
	}
}

// ─── Activity & integrations ──────────────────────────────────────────────────

func TestActivity_RecordsActions(t *testing.T) {
	c := newTestEnv(t)
	signIn(t, c, "user-1")

	if _, err := c.AddPillar(ctx(), "Education", "#00ff00"); err != nil {
		t.Fatalf("AddPillar: %v", err)
	}

	feed, err := c.Activity(ctx())
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if len(feed) == 0 {
		t.Fatal("activity feed should not be empty")
	}
	if !strings.Contains(feed[0].Text, "Education") {
		t.Errorf("newest entry = %q", feed[0].Text)
	}
}

func TestConnectThreads(t *testing.T) {
	c := newTestEnv(t)
	signIn(t, c, "user-1")

	username, err := c.ConnectThreads(ctx(), "short-lived-token")
	if err != nil {
		t.Fatalf("ConnectThreads: %v", err)
	}
	if username != "corpbrand" {
		t.Errorf("username = %q", username)
	}

	state, _ := c.State(ctx())
	if !state.ThreadsLinked {
		t.Error("ThreadsLinked should be true after connecting")
	}
}

// ─── Health, stats, auth ──────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	c := newTestEnv(t)

	h, err := c.Health(ctx())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "ok" {
		t.Errorf("Status = %q", h.Status)
	}
}

func TestStats_CountsQueuedPosts(t *testing.T) {
	c := newTestEnv(t)
	signIn(t, c, "user-1")

	acct, _ := c.AddAccount(ctx(), "Threads", "@corp")
	if _, err := c.Enqueue(ctx(), sampleThread("Launch recap"), acct.ID, ""); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	stats, err := c.Stats(ctx())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["posts_queued"] != 1 {
		t.Errorf("posts_queued = %d, want 1", stats["posts_queued"])
	}
}

func TestWithAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"

	bare := newTestEnvWithConfig(t, cfg)
	_, err := bare.SignIn(ctx(), "user-1")
	if !client.IsUnauthorized(err) {
		t.Fatalf("want IsUnauthorized without API key, got %v", err)
	}

	cfg2 := config.Default()
	cfg2.Auth.Enabled = true
	cfg2.Auth.APIKey = "secret"
	authed := newTestEnvWithConfig(t, cfg2, client.WithAPIKey("secret"))
	if _, err := authed.SignIn(ctx(), "user-1"); err != nil {
		t.Fatalf("SignIn with API key: %v", err)
	}
}
