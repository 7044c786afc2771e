package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/clock"
	"github.com/nextlevelbuilder/pigeon/internal/dispatch"
	"github.com/nextlevelbuilder/pigeon/internal/sender"
	"github.com/nextlevelbuilder/pigeon/internal/store"
	"github.com/nextlevelbuilder/pigeon/internal/store/sqlite"
)

// fakeSender answers every send with a queued outcome and reports the
// configured readiness.
type fakeSender struct {
	mu       sync.Mutex
	ready    bool
	outcomes []sender.Outcome
	session  *sender.SessionInfo
}

func (f *fakeSender) Send(ctx context.Context, contact, message, correlationID string) sender.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outcomes) == 0 {
		return sender.OK()
	}
	out := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return out
}

func (f *fakeSender) Ready(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSender) Session(ctx context.Context) sender.SessionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil {
		return *f.session
	}
	return sender.SessionInfo{State: sender.SessionLinked}
}

type fixture struct {
	server *Server
	snd    *fakeSender
	clk    *clock.Fake
	st     store.Store
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "pigeon.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	snd := &fakeSender{ready: true}
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	d := dispatch.New(st, snd, dispatch.Options{Clock: clk})

	if opts.Settings == nil {
		opts.Settings = st
	}
	if opts.Sender == nil {
		opts.Sender = snd
	}
	return &fixture{server: New(d, opts), snd: snd, clk: clk, st: st}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeInto[errorBody](t, rec).Kind
}

func TestCreateAndGetJob(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"kind":          "recurring",
		"contactName":   "Alice",
		"message":       "standup in 10",
		"anchorTime":    "2025-06-01T13:00:00Z",
		"intervalValue": 1,
		"intervalUnit":  "day",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeInto[store.Job](t, rec)
	if created.ID == "" || created.Status != store.StatusActive {
		t.Errorf("created = %+v", created)
	}
	if created.NextRun == nil || !created.NextRun.Equal(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)) {
		t.Errorf("NextRun = %v, want anchor", created.NextRun)
	}

	rec = f.do(t, http.MethodGet, "/api/jobs/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decodeInto[store.Job](t, rec); got.ID != created.ID {
		t.Errorf("got job %s, want %s", got.ID, created.ID)
	}
}

func TestCreateJobValidation(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"kind":        "recurring",
		"contactName": "",
		"message":     "hello",
		"anchorTime":  "2025-06-01T13:00:00Z",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if kind := errorKind(t, rec); kind != "validation" {
		t.Errorf("error kind = %q, want validation", kind)
	}
}

func TestCreateJobBadJSON(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestInstantSend(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"kind":        "instant",
		"contactName": "Bob",
		"message":     "on my way",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	entry := decodeInto[store.HistoryEntry](t, rec)
	if entry.Status != store.HistorySent || entry.Kind != store.KindInstant {
		t.Errorf("entry = %+v", entry)
	}
	if entry.JobID != nil {
		t.Errorf("JobID = %v, want nil", *entry.JobID)
	}
}

func TestInstantSendNotReady(t *testing.T) {
	f := newFixture(t, Options{})
	f.snd.ready = false

	rec := f.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"kind":        "instant",
		"contactName": "Bob",
		"message":     "on my way",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if kind := errorKind(t, rec); kind != "not-ready" {
		t.Errorf("error kind = %q, want not-ready", kind)
	}
}

func TestGetJobNotFound(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/api/jobs/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if kind := errorKind(t, rec); kind != "not-found" {
		t.Errorf("error kind = %q, want not-found", kind)
	}
}

func TestUpdateJobRejectsInvalidResult(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"kind":          "recurring",
		"contactName":   "Alice",
		"message":       "ping",
		"anchorTime":    "2025-06-01T13:00:00Z",
		"intervalValue": 2,
		"intervalUnit":  "hour",
	})
	job := decodeInto[store.Job](t, rec)

	rec = f.do(t, http.MethodPatch, "/api/jobs/"+job.ID, map[string]any{
		"intervalValue": 0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
	if kind := errorKind(t, rec); kind != "validation" {
		t.Errorf("error kind = %q, want validation", kind)
	}
}

func TestSetStatusPauseAndInvalid(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"kind":        "once",
		"contactName": "Alice",
		"message":     "ping",
		"anchorTime":  "2025-06-01T13:00:00Z",
	})
	job := decodeInto[store.Job](t, rec)

	rec = f.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/status", map[string]string{"status": "paused"})
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeInto[map[string]store.JobStatus](t, rec); got["status"] != store.StatusPaused {
		t.Errorf("status = %v", got)
	}

	rec = f.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/status", map[string]string{"status": "completed"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("terminal status = %d, want 400", rec.Code)
	}
}

func TestDeleteJob(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"kind":        "once",
		"contactName": "Alice",
		"message":     "ping",
		"anchorTime":  "2025-06-01T13:00:00Z",
	})
	job := decodeInto[store.Job](t, rec)

	rec = f.do(t, http.MethodDelete, "/api/jobs/"+job.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/jobs/"+job.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
}

func TestListHistoryFilters(t *testing.T) {
	f := newFixture(t, Options{})

	f.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"kind":        "instant",
		"contactName": "Bob",
		"message":     "one",
	})

	rec := f.do(t, http.MethodGet, "/api/history?status=sent", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	entries := decodeInto[[]store.HistoryEntry](t, rec)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	rec = f.do(t, http.MethodGet, "/api/history?status=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/history?limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPut, "/api/settings/timezone", map[string]string{"value": "Europe/Berlin"})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	settings := decodeInto[map[string]string](t, rec)
	if settings["timezone"] != "Europe/Berlin" {
		t.Errorf("settings = %v", settings)
	}
}

func TestSettingsRejectsBadTimezone(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPut, "/api/settings/timezone", map[string]string{"value": "Mars/Olympus"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatusSnapshot(t *testing.T) {
	f := newFixture(t, Options{Version: "1.2.3"})

	f.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"kind":        "once",
		"contactName": "Alice",
		"message":     "ping",
		"anchorTime":  "2025-06-01T13:00:00Z",
	})

	rec := f.do(t, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	snap := decodeInto[statusResponse](t, rec)
	if snap.Version != "1.2.3" || !snap.SenderReady {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Jobs["active"] != 1 {
		t.Errorf("Jobs = %v, want 1 active", snap.Jobs)
	}
	if snap.Session == nil || snap.Session.State != sender.SessionLinked {
		t.Errorf("Session = %+v", snap.Session)
	}
}

func TestSessionEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	f.snd.session = &sender.SessionInfo{State: sender.SessionPending, QR: "pairing-payload"}

	rec := f.do(t, http.MethodGet, "/api/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	info := decodeInto[sender.SessionInfo](t, rec)
	if info.State != sender.SessionPending || info.QR != "pairing-payload" {
		t.Errorf("info = %+v", info)
	}
}

func TestBearerAuth(t *testing.T) {
	f := newFixture(t, Options{AuthToken: "s3cret"})

	rec := f.do(t, http.MethodGet, "/api/jobs", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("with token status = %d, want 200", rr.Code)
	}
}

func TestRateLimiterThrottlesMutations(t *testing.T) {
	f := newFixture(t, Options{Limiter: NewRateLimiter(1, 1)})

	body := map[string]any{
		"kind":        "once",
		"contactName": "Alice",
		"message":     "ping",
		"anchorTime":  "2025-06-01T13:00:00Z",
	}
	if rec := f.do(t, http.MethodPost, "/api/jobs", body); rec.Code != http.StatusCreated {
		t.Fatalf("first create = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/jobs", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second create = %d, want 429", rec.Code)
	}

	// Reads stay unthrottled.
	if rec := f.do(t, http.MethodGet, "/api/jobs", nil); rec.Code != http.StatusOK {
		t.Errorf("read while throttled = %d, want 200", rec.Code)
	}
}
