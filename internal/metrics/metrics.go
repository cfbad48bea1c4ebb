// Package metrics provides a lightweight Prometheus-compatible metrics
// registry for ThreadFlow. It deliberately avoids the prometheus/client_golang
// package so the server binary stays small with no additional dependencies.
//
// Domain counters are plain atomics; HTTP counters use a tab-separated label
// key so a single sync.Map can hold all label combinations:
//
//	HTTPReqs              →  key = "method\tpath\tstatus"
//	HTTPDurMs / HTTPDurCnt →  key = "method\tpath"
//
// Calling Registry.Handler() returns an http.Handler that renders all
// counters in the Prometheus exposition format (text/plain; version=0.0.4).
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// ─── counter ──────────────────────────────────────────────────────────────────

// Counter is a single monotonically increasing value.
type Counter struct {
	v atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.v.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.v.Add(n) }

// Load returns the current value.
func (c *Counter) Load() int64 { return c.v.Load() }

// ─── labelCounter ─────────────────────────────────────────────────────────────

// labelCounter is a lock-free, label-keyed counter map backed by sync.Map and
// atomic.Int64 values.
type labelCounter struct {
	vals sync.Map // key string → *atomic.Int64
}

func (lc *labelCounter) get(key string) *atomic.Int64 {
	v, _ := lc.vals.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Inc increments the counter for key by 1.
func (lc *labelCounter) Inc(key string) { lc.get(key).Add(1) }

// Add increments the counter for key by n.
func (lc *labelCounter) Add(key string, n int64) { lc.get(key).Add(n) }

// Each calls fn for every key/value pair. The order is non-deterministic.
func (lc *labelCounter) Each(fn func(key string, val int64)) {
	lc.vals.Range(func(k, v any) bool {
		fn(k.(string), v.(*atomic.Int64).Load())
		return true
	})
}

// ─── Registry ─────────────────────────────────────────────────────────────────

// Registry holds all ThreadFlow application metrics.
type Registry struct {
	// Content pipeline counters.
	ThreadsGenerated    Counter // successful AI generations
	GenerationThrottled Counter // generation requests refused at the ceiling
	VoiceAnalyses       Counter // successful voice analyses
	PostsQueued         Counter // backlog entries added
	PostsAutoPlaced     Counter // backlog entries converted to committed posts
	PostsDropped        Counter // backlog entries dropped (account vanished)

	// Dispatch counters.
	PostsPublished  Counter // threads delivered to a platform
	PublishFailures Counter // delivery attempts that errored
	PostsSimulated  Counter // due posts on platforms without an integration

	// HTTP-level counters.  key = "method\tpath\tstatus" (Reqs) or "method\tpath" (Dur*)
	HTTPReqs   labelCounter
	HTTPDurMs  labelCounter // sum of request durations in milliseconds
	HTTPDurCnt labelCounter // number of requests (same key as HTTPDurMs, for avg)
}

// ─── Prometheus text serialisation ────────────────────────────────────────────

// Handler returns an http.Handler that renders all metrics in the Prometheus
// plain-text exposition format (text/plain; version=0.0.4).
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		var b strings.Builder

		// ── content pipeline counters ─────────────────────────────────────────
		writeCounter(&b, "threadflow_threads_generated_total",
			"Total threads generated by the AI collaborator", &r.ThreadsGenerated)
		writeCounter(&b, "threadflow_generation_throttled_total",
			"Total generation requests refused at the session ceiling", &r.GenerationThrottled)
		writeCounter(&b, "threadflow_voice_analyses_total",
			"Total brand-voice analyses completed", &r.VoiceAnalyses)
		writeCounter(&b, "threadflow_posts_queued_total",
			"Total backlog entries enqueued", &r.PostsQueued)
		writeCounter(&b, "threadflow_posts_auto_placed_total",
			"Total backlog entries auto-placed onto the calendar", &r.PostsAutoPlaced)
		writeCounter(&b, "threadflow_posts_dropped_total",
			"Total backlog entries dropped because their account vanished", &r.PostsDropped)

		// ── dispatch counters ─────────────────────────────────────────────────
		writeCounter(&b, "threadflow_posts_published_total",
			"Total threads delivered to a platform", &r.PostsPublished)
		writeCounter(&b, "threadflow_publish_failures_total",
			"Total delivery attempts that errored", &r.PublishFailures)
		writeCounter(&b, "threadflow_posts_simulated_total",
			"Total due posts on platforms without a real integration", &r.PostsSimulated)

		// ── HTTP counters ─────────────────────────────────────────────────────
		writeFamily(&b, "threadflow_http_requests_total",
			"Total HTTP requests by method, path, and status code", "counter",
			func(fn func(labels, val string)) {
				r.HTTPReqs.Each(func(key string, val int64) {
					method, path, status := splitThree(key)
					fn(fmt.Sprintf(`method=%q,path=%q,status=%q`, method, path, status),
						fmt.Sprintf("%d", val))
				})
			})

		writeFamily(&b, "threadflow_http_request_duration_milliseconds_sum",
			"Sum of HTTP request durations in milliseconds", "counter",
			func(fn func(labels, val string)) {
				r.HTTPDurMs.Each(func(key string, val int64) {
					method, path := splitTwo(key)
					fn(fmt.Sprintf(`method=%q,path=%q`, method, path),
						fmt.Sprintf("%d", val))
				})
			})

		writeFamily(&b, "threadflow_http_request_duration_milliseconds_count",
			"Count of observed HTTP request durations", "counter",
			func(fn func(labels, val string)) {
				r.HTTPDurCnt.Each(func(key string, val int64) {
					method, path := splitTwo(key)
					fn(fmt.Sprintf(`method=%q,path=%q`, method, path),
						fmt.Sprintf("%d", val))
				})
			})

		fmt.Fprint(w, b.String())
	})
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// writeCounter writes a single unlabeled counter family. Zero-valued counters
// are still emitted so dashboards see the series exists.
func writeCounter(b *strings.Builder, name, help string, c *Counter) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s counter\n", name)
	fmt.Fprintf(b, "%s %d\n", name, c.Load())
}

// writeFamily writes a single Prometheus metric family to b.
// fill is called with a writer function that appends individual label+value lines.
func writeFamily(
	b *strings.Builder,
	name, help, typ string,
	fill func(fn func(labels, val string)),
) {
	// Buffer individual metric lines so we can skip the header when empty.
	var lines []string
	fill(func(labels, val string) {
		lines = append(lines, fmt.Sprintf("%s{%s} %s\n", name, labels, val))
	})
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
	for _, l := range lines {
		b.WriteString(l)
	}
}

// splitTwo splits a tab-delimited key of the form "a\tb" into (a, b).
// If there is no tab, the whole string is returned as the first component.
func splitTwo(key string) (string, string) {
	i := strings.IndexByte(key, '\t')
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// splitThree splits a tab-delimited key "a\tb\tc" into (a, b, c).
func splitThree(key string) (string, string, string) {
	a, rest := splitTwo(key)
	b, c := splitTwo(rest)
	return a, b, c
}

// ─── Convenience key builders ─────────────────────────────────────────────────

// HTTPKey builds the label key used by HTTPReqs.
func HTTPKey(method, path, status string) string {
	return method + "\t" + path + "\t" + status
}

// HTTPDurKey builds the label key used by HTTPDurMs / HTTPDurCnt.
func HTTPDurKey(method, path string) string {
	return method + "\t" + path
}
