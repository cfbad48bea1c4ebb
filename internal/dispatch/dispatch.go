// Package dispatch runs the periodic job that moves due posts off the
// calendar and out to their platforms. A post whose scheduled instant has
// arrived is removed whether or not publishing succeeds: publish failures
// are logged and counted, never retried.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/beeziehmf/threadyflow-app/internal/metrics"
	"github.com/beeziehmf/threadyflow-app/internal/publish"
	"github.com/beeziehmf/threadyflow-app/internal/slots"
	"github.com/beeziehmf/threadyflow-app/internal/store"
	"github.com/beeziehmf/threadyflow-app/internal/types"
)

// DefaultSpec fires at the top of every hour.
const DefaultSpec = "0 * * * *"

// Options tunes a Dispatcher. Zero values fall back to UTC and the wall
// clock.
type Options struct {
	Location *time.Location
	Now      func() time.Time
	Metrics  *metrics.Registry
}

// Report summarises one dispatch pass.
type Report struct {
	Users     int // users with at least one due post
	Due       int // posts removed from calendars
	Published int // posts actually delivered to a platform
	Failed    int // posts whose delivery errored
	Simulated int // posts on platforms without a real integration
}

// Dispatcher walks all stored user documents on a cron schedule.
type Dispatcher struct {
	store     *store.Store
	publisher publish.Publisher
	loc       *time.Location
	now       func() time.Time
	metrics   *metrics.Registry

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// New creates a Dispatcher over st. publisher may be nil, in which case
// every due post is treated as simulated.
func New(st *store.Store, publisher publish.Publisher, opts Options) *Dispatcher {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	reg := opts.Metrics
	if reg == nil {
		reg = new(metrics.Registry)
	}
	return &Dispatcher{store: st, publisher: publisher, loc: loc, now: now, metrics: reg}
}

// Start schedules RunOnce on the given cron spec and begins ticking.
func (d *Dispatcher) Start(spec string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}

	c := cron.New(cron.WithLocation(d.loc))
	if _, err := c.AddFunc(spec, func() {
		if _, err := d.RunOnce(context.Background()); err != nil {
			slog.Error("dispatch pass failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("dispatch: add cron job: %w", err)
	}
	c.Start()
	d.cron = c
	d.started = true
	return nil
}

// Stop halts the cron ticker. A pass already in flight finishes.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		d.cron.Stop()
		d.started = false
	}
}

// RunOnce executes a single dispatch pass over every stored user.
func (d *Dispatcher) RunOnce(ctx context.Context) (Report, error) {
	db := d.store.DB()
	userIDs, err := db.UserIDs()
	if err != nil {
		return Report{}, fmt.Errorf("dispatch: list users: %w", err)
	}

	now := d.now()
	var report Report
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := d.processUser(ctx, userID, now, &report); err != nil {
			slog.Error("dispatch: user pass failed", "user_id", userID, "error", err)
		}
	}

	if report.Due > 0 {
		slog.Info("dispatch pass complete",
			"users", report.Users,
			"due", report.Due,
			"published", report.Published,
			"failed", report.Failed,
			"simulated", report.Simulated,
		)
	}
	return report, nil
}

func (d *Dispatcher) processUser(ctx context.Context, userID string, now time.Time, report *Report) error {
	db := d.store.DB()
	doc, found, err := db.Load(userID)
	if err != nil {
		return err
	}
	if !found || len(doc.Scheduled) == 0 {
		return nil
	}

	var due, remaining []types.ScheduledPost
	for _, post := range doc.Scheduled {
		instant, err := (slots.Slot{Date: post.Date, Time: post.Time}).At(d.loc)
		if err != nil {
			// A malformed slot can never come due; it stays visible on the
			// calendar for the user to fix.
			remaining = append(remaining, post)
			continue
		}
		if !instant.After(now) {
			due = append(due, post)
		} else {
			remaining = append(remaining, post)
		}
	}
	if len(due) == 0 {
		return nil
	}

	report.Users++
	report.Due += len(due)

	for _, post := range due {
		d.deliver(ctx, userID, doc, post, report)
	}

	// Due posts leave the calendar regardless of how delivery went.
	doc.Scheduled = remaining
	if err := db.Save(userID, doc); err != nil {
		return fmt.Errorf("save remainder: %w", err)
	}

	dropped := make([]string, 0, len(due))
	for _, post := range due {
		dropped = append(dropped, post.ID)
	}
	d.store.DropScheduled(userID, dropped)
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, userID string, doc store.Document, post types.ScheduledPost, report *Report) {
	if post.Platform != types.PlatformThreads || d.publisher == nil {
		slog.Info("publishing simulated",
			"user_id", userID,
			"platform", post.Platform,
			"title", post.Title,
		)
		report.Simulated++
		d.metrics.PostsSimulated.Inc()
		return
	}

	if doc.Threads == nil {
		slog.Warn("due post skipped, no linked account",
			"user_id", userID,
			"title", post.Title,
		)
		report.Failed++
		d.metrics.PublishFailures.Inc()
		return
	}

	res, err := d.publisher.Publish(ctx, *doc.Threads, post.Thread)
	if err != nil {
		slog.Error("publish failed",
			"user_id", userID,
			"title", post.Title,
			"published_prefix", len(res.PostIDs),
			"error", err,
		)
		report.Failed++
		d.metrics.PublishFailures.Inc()
		return
	}

	slog.Info("published",
		"user_id", userID,
		"title", post.Title,
		"segments", len(res.PostIDs),
	)
	report.Published++
	d.metrics.PostsPublished.Inc()
}
