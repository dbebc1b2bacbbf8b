// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/copilot-engine/internal/assistant"
	"github.com/jeranaias/copilot-engine/internal/config"
	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/rules"
	"github.com/jeranaias/copilot-engine/internal/tasks"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testEnv struct {
	hub     *assistant.Hub
	clock   *tasks.ManualClock
	server  *Server
	handler http.Handler
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Backend = "memory"
	cfg.Engine.SurfacesEnabled = []string{"insights", "rfp"}
	if mutate != nil {
		mutate(cfg)
	}

	catalog, err := rules.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}
	clock := tasks.NewManualClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	hub, err := assistant.NewHub(cfg, catalog, assistant.WithClock(clock))
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	t.Cleanup(hub.Shutdown)

	srv := New(hub, cfg.Server, zap.NewNop())
	return &testEnv{hub: hub, clock: clock, server: srv, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) activeID(t *testing.T, surface string) string {
	t.Helper()
	sf, err := e.hub.Surface(surface)
	if err != nil {
		t.Fatalf("Surface(%q) error = %v", surface, err)
	}
	return sf.Store.ActiveID()
}

// =============================================================================
// HEALTH AND SURFACES
// =============================================================================

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	health := decode[HealthResponse](t, rec)
	if health.Status != "ok" || health.Surfaces != 2 {
		t.Errorf("health = %+v", health)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestHandleSurfaces(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/v1/surfaces", "")
	surfaces := decode[[]SurfaceInfo](t, rec)
	if len(surfaces) != 2 {
		t.Fatalf("got %d surfaces, want 2", len(surfaces))
	}
	if surfaces[0].Name != "insights" || surfaces[1].Name != "rfp" {
		t.Errorf("names = %s, %s", surfaces[0].Name, surfaces[1].Name)
	}
	if surfaces[0].Title == "" || len(surfaces[0].Suggestions) == 0 {
		t.Errorf("insights info incomplete: %+v", surfaces[0])
	}
	if surfaces[0].Conversations != 1 || surfaces[0].ActiveID == "" {
		t.Errorf("insights should start with one active conversation: %+v", surfaces[0])
	}
}

func TestUnknownSurface(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/v1/surfaces/payroll/conversations", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	body := decode[ErrorBody](t, rec)
	if body.Error.Code != http.StatusNotFound || body.Error.Message == "" {
		t.Errorf("error body = %+v", body)
	}
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	first := env.activeID(t, "rfp")

	// Create
	rec := env.do(t, http.MethodPost, "/v1/surfaces/rfp/conversations", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", rec.Code)
	}
	created := decode[ConversationView](t, rec)
	if created.Conversation == nil || len(created.Turns) != 1 || !created.Active {
		t.Fatalf("created = %+v", created)
	}
	if len(created.Suggestions) == 0 {
		t.Error("fresh conversation should offer suggestions")
	}

	// List: newest first
	list := decode[ConversationList](t, env.do(t, http.MethodGet, "/v1/surfaces/rfp/conversations", ""))
	if len(list.Conversations) != 2 || list.Conversations[0].ID != created.ID || list.ActiveID != created.ID {
		t.Fatalf("list = %+v", list)
	}

	// Select the original
	rec = env.do(t, http.MethodPost, "/v1/surfaces/rfp/conversations/"+first+"/select", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d", rec.Code)
	}
	if env.activeID(t, "rfp") != first {
		t.Error("select did not change the active conversation")
	}

	// Delete one, then refuse the last
	rec = env.do(t, http.MethodDelete, "/v1/surfaces/rfp/conversations/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/v1/surfaces/rfp/conversations/"+first, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("delete last status = %d, want 409", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/v1/surfaces/rfp/conversations/conv_missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/surfaces/rfp/conversations/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/v1/surfaces/rfp/conversations/conv_missing/select", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("select missing status = %d, want 404", rec.Code)
	}
}

func TestSearchConversations(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.activeID(t, "rfp")

	env.do(t, http.MethodPost, "/v1/surfaces/rfp/conversations/"+id+"/messages", `{"text":"Vendor rankings please"}`)
	env.do(t, http.MethodPost, "/v1/surfaces/rfp/conversations", "")

	list := decode[ConversationList](t, env.do(t, http.MethodGet, "/v1/surfaces/rfp/conversations?q=PLEASE", ""))
	if len(list.Conversations) != 1 || list.Conversations[0].ID != id {
		t.Errorf("search result = %+v", list.Conversations)
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

func TestPostMessage_ScenarioPendingRFPEvaluations(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.activeID(t, "insights")
	path := "/v1/surfaces/insights/conversations/" + id

	rec := env.do(t, http.MethodPost, path+"/messages", `{"text":"Show me pending RFP evaluations"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}
	ack := decode[MessageResponse](t, rec)
	if ack.Turn == nil || ack.Turn.Role != model.RoleUser || !ack.Pending {
		t.Fatalf("ack = %+v", ack)
	}

	view := decode[ConversationView](t, env.do(t, http.MethodGet, path, ""))
	if len(view.Turns) != 2 || !view.Pending || len(view.Suggestions) != 0 {
		t.Fatalf("before delivery: turns=%d pending=%v suggestions=%v", len(view.Turns), view.Pending, view.Suggestions)
	}

	env.clock.Advance(5 * time.Second)

	view = decode[ConversationView](t, env.do(t, http.MethodGet, path, ""))
	if len(view.Turns) != 3 || view.Pending {
		t.Fatalf("after delivery: turns=%d pending=%v", len(view.Turns), view.Pending)
	}
	reply := view.Turns[2]
	if !strings.Contains(reply.Content, "RFP evaluations") || len(reply.Actions) == 0 {
		t.Errorf("reply = %+v", reply)
	}
	if view.Title != "Show me pending RFP evaluations" {
		t.Errorf("title = %q", view.Title)
	}
}

func TestPostMessage_Errors(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.MaxBodyBytes = 64 })
	id := env.activeID(t, "rfp")
	path := "/v1/surfaces/rfp/conversations/" + id + "/messages"

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"blank text", path, `{"text":"   "}`, http.StatusNoContent},
		{"invalid json", path, `{"text":`, http.StatusBadRequest},
		{"too large", path, `{"text":"` + strings.Repeat("x", 200) + `"}`, http.StatusRequestEntityTooLarge},
		{"unknown conversation", "/v1/surfaces/rfp/conversations/conv_missing/messages", `{"text":"hi"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	sf, _ := env.hub.Surface("rfp")
	if got := sf.Store.Active().TurnCount(); got != 1 {
		t.Errorf("turn count = %d, want 1 after rejected messages", got)
	}
}

func TestPostMessage_ClosedSurface(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.activeID(t, "rfp")
	if err := env.hub.Close("rfp"); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/v1/surfaces/rfp/conversations/"+id+"/messages", `{"text":"rankings"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.activeID(t, "rfp")
	env.do(t, http.MethodPost, "/v1/surfaces/rfp/conversations/"+id+"/messages", `{"text":"rankings"}`)
	env.clock.Advance(5 * time.Second)

	stats := decode[StatsResponse](t, env.do(t, http.MethodGet, "/stats", ""))
	if stats.Server.Messages != 1 {
		t.Errorf("messages = %d, want 1", stats.Server.Messages)
	}
	if got := stats.Surfaces["rfp"]; got.Scheduled != 1 || got.Completed != 1 {
		t.Errorf("rfp scheduler stats = %+v", got)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRateLimitMiddleware(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Server.RatePerSec = 1
		c.Server.Burst = 2
	})

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = env.do(t, http.MethodGet, "/health", "").Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
	if got := env.server.Stats().GetStats().RateLimited; got != 1 {
		t.Errorf("RateLimited = %d, want 1", got)
	}
}

func TestRateLimiter_PerIPAndSweep(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || rl.Allow("a") {
		t.Error("burst of 1 should allow exactly one request")
	}
	if !rl.Allow("b") {
		t.Error("buckets are per IP")
	}

	now = now.Add(visitorTTL + sweepInterval + time.Second)
	if !rl.Allow("c") {
		t.Error("new client should be allowed")
	}
	if got := rl.Visitors(); got != 1 {
		t.Errorf("Visitors() = %d, want 1 after sweep", got)
	}

	disabled := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !disabled.Allow("a") {
			t.Fatal("zero rate disables limiting")
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestChainOrder(t *testing.T) {
	var order bytes.Buffer
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order.WriteString(name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order.WriteString("!")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if order.String() != "abc!" {
		t.Errorf("order = %q, want abc!", order.String())
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.7:1234", "", "203.0.113.7"},
		{"untrusted forwarder ignored", "203.0.113.7:1234", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy", "127.0.0.1:1234", "198.51.100.1, 10.0.0.1", "198.51.100.1"},
		{"trusted proxy bad header", "10.1.2.3:1234", "not-an-ip", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
