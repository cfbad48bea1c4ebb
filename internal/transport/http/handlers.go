package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/beeziehmf/threadyflow-app/internal/ai"
	"github.com/beeziehmf/threadyflow-app/internal/metrics"
	"github.com/beeziehmf/threadyflow-app/internal/publish"
	"github.com/beeziehmf/threadyflow-app/internal/slots"
	"github.com/beeziehmf/threadyflow-app/internal/store"
	"github.com/beeziehmf/threadyflow-app/internal/types"
)

// sessionHeader carries the token issued by POST /sessions.
const sessionHeader = "X-Session-Token"

// Handler groups all HTTP request handlers around the content store.
type Handler struct {
	store     *store.Store
	generator ai.Generator      // nil disables /generate and /voice/analyze
	connector publish.Connector // nil disables /integrations/threads
}

// ─── DTOs ─────────────────────────────────────────────────────────────────────

type signInReq struct {
	UserID string `json:"user_id"`
}

type signInResp struct {
	Token string         `json:"token"`
	State store.Snapshot `json:"state"`
}

type addAccountReq struct {
	Platform types.Platform `json:"platform"`
	Name     string         `json:"name"`
}

type pillarReq struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type generateReq struct {
	Idea string `json:"idea"`
}

type voiceSampleReq struct {
	Text string `json:"text"`
}

type patternReq struct {
	Days  []int    `json:"days"`
	Times []string `json:"times"`
}

type enqueueReq struct {
	Thread    types.Thread `json:"thread"`
	AccountID string       `json:"account_id"`
	PillarID  string       `json:"pillar_id"`
}

type scheduleReq struct {
	Thread    types.Thread `json:"thread"`
	AccountID string       `json:"account_id"`
	Date      string       `json:"date"`
	Time      string       `json:"time"`
	PillarID  string       `json:"pillar_id"`
}

type connectThreadsReq struct {
	AccessToken string `json:"access_token"`
}

type connectThreadsResp struct {
	Username       string `json:"username"`
	PlatformUserID string `json:"platform_user_id"`
}

type healthResp struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	UptimeMs int64  `json:"uptime_ms"`
	Version  string `json:"version"`
}

// ─── Health ───────────────────────────────────────────────────────────────────

var startTime = time.Now()

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	elapsed := time.Since(startTime)
	writeJSON(w, http.StatusOK, healthResp{
		Status:   "ok",
		Uptime:   elapsed.Round(time.Second).String(),
		UptimeMs: elapsed.Milliseconds(),
		Version:  "1.0.0",
	})
}

// ─── Session lifecycle ────────────────────────────────────────────────────────

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInReq
	if !decodeJSON(w, r, &req) {
		return
	}
	token, sess, err := h.store.SignIn(req.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, signInResp{Token: token, State: sess.Snapshot()})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SignOut(r.Header.Get(sessionHeader)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// ─── Accounts ─────────────────────────────────────────────────────────────────

func (h *Handler) addAccount(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req addAccountReq
	if !decodeJSON(w, r, &req) {
		return
	}
	acct, err := sess.AddAccount(req.Platform, req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *Handler) removeAccount(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.RemoveAccount(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Content pillars ──────────────────────────────────────────────────────────

func (h *Handler) addPillar(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req pillarReq
	if !decodeJSON(w, r, &req) {
		return
	}
	pillar, err := sess.AddPillar(req.Name, req.Color)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pillar)
}

func (h *Handler) updatePillar(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req pillarReq
	if !decodeJSON(w, r, &req) {
		return
	}
	p := types.ContentPillar{ID: r.PathValue("id"), Name: req.Name, Color: req.Color}
	if err := sess.UpdatePillar(p); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) removePillar(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.RemovePillar(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── AI generation ────────────────────────────────────────────────────────────

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.generator == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "generation is not configured"})
		return
	}
	var req generateReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Idea == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "idea is required"})
		return
	}

	// The budget gate runs before the model is contacted; a throttled
	// session never spends upstream quota.
	if err := sess.CheckGenerationBudget(); err != nil {
		writeStoreError(w, err)
		return
	}

	thread, err := h.generator.GenerateThread(r.Context(), req.Idea, sess.VoiceProfile())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if err := sess.RecordGeneration(thread.Title); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// ─── Brand voice ──────────────────────────────────────────────────────────────

func (h *Handler) addVoiceSample(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req voiceSampleReq
	if !decodeJSON(w, r, &req) {
		return
	}
	sample, err := sess.AddVoiceSample(req.Text)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sample)
}

func (h *Handler) removeVoiceSample(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.RemoveVoiceSample(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) analyzeVoice(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.generator == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "generation is not configured"})
		return
	}
	samples := sess.VoiceSampleTexts()
	if len(samples) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "add writing samples before analyzing"})
		return
	}
	profile, err := h.generator.AnalyzeVoice(r.Context(), samples)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	sess.SetVoiceProfile(profile)
	writeJSON(w, http.StatusOK, profile)
}

// ─── Availability pattern ─────────────────────────────────────────────────────

func (h *Handler) getPattern(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot().Pattern)
}

func (h *Handler) setPattern(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req patternReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := sess.SetPattern(slots.Pattern{Days: req.Days, Times: req.Times}); err != nil {
		writeStoreError(w, err)
		return
	}
	// The pass may have moved backlog entries onto the calendar; return the
	// full state so clients refresh in one round trip.
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// ─── Backlog queue ────────────────────────────────────────────────────────────

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req enqueueReq
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := sess.Enqueue(req.Thread, req.AccountID, req.PillarID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	// The entry may have been placed by the scheduling pass that ran inside
	// Enqueue; the snapshot tells the client where it landed.
	writeJSON(w, http.StatusCreated, map[string]any{
		"entry": entry,
		"state": sess.Snapshot(),
	})
}

func (h *Handler) listQueue(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	if snap.Queued == nil {
		snap.Queued = []types.QueuedPost{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": snap.Queued})
}

// ─── Calendar ─────────────────────────────────────────────────────────────────

func (h *Handler) scheduleThread(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req scheduleReq
	if !decodeJSON(w, r, &req) {
		return
	}
	post, err := sess.ScheduleThread(req.Thread, req.AccountID, req.Date, req.Time, req.PillarID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (h *Handler) listScheduled(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	if snap.Scheduled == nil {
		snap.Scheduled = []types.ScheduledPost{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scheduled": snap.Scheduled})
}

func (h *Handler) unschedule(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Unschedule(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Activity feed ────────────────────────────────────────────────────────────

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	feed := sess.Activity()
	if feed == nil {
		feed = []types.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": feed})
}

// ─── Platform integrations ────────────────────────────────────────────────────

func (h *Handler) connectThreads(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.connector == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "threads integration is not configured"})
		return
	}
	var req connectThreadsReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AccessToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "access_token is required"})
		return
	}
	conn, err := h.connector.Exchange(r.Context(), req.AccessToken)
	if err != nil {
		if errors.Is(err, publish.ErrNotConnected) {
			writeJSON(w, http.StatusFailedDependency, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if err := sess.SetThreadsConnection(conn); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, connectThreadsResp{
		Username:       conn.Username,
		PlatformUserID: conn.PlatformUserID,
	})
}

// ─── Stats API ────────────────────────────────────────────────────────────────

// stats returns aggregated pipeline counters as JSON for dashboards that do
// not scrape Prometheus.
func (h *Handler) stats(reg *metrics.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reg == nil {
			writeJSON(w, http.StatusOK, map[string]int64{})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{
			"threads_generated":    reg.ThreadsGenerated.Load(),
			"generation_throttled": reg.GenerationThrottled.Load(),
			"voice_analyses":       reg.VoiceAnalyses.Load(),
			"posts_queued":         reg.PostsQueued.Load(),
			"posts_auto_placed":    reg.PostsAutoPlaced.Load(),
			"posts_dropped":        reg.PostsDropped.Load(),
			"posts_published":      reg.PostsPublished.Load(),
			"publish_failures":     reg.PublishFailures.Load(),
			"posts_simulated":      reg.PostsSimulated.Load(),
		})
	}
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// session resolves the request's session token, writing a 401 on failure.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*store.Session, bool) {
	sess, err := h.store.Session(r.Header.Get(sessionHeader))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid session token"})
		return nil, false
	}
	return sess, true
}

// writeStoreError maps store sentinels onto HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalid):
		code = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, store.ErrSlotTaken):
		code = http.StatusConflict
	case errors.Is(err, store.ErrGenerationLimit):
		code = http.StatusTooManyRequests
	case errors.Is(err, store.ErrUnknownSession):
		code = http.StatusUnauthorized
	}
	writeError(w, code, err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return false
	}
	return true
}
