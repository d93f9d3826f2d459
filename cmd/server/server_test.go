package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/triggers/actions"
	"github.com/liamcoop/triggers/actions/actionstest"
	"github.com/liamcoop/triggers/conditions"
	"github.com/liamcoop/triggers/cooldown"
	"github.com/liamcoop/triggers/dispatcher"
	"github.com/liamcoop/triggers/event"
	"github.com/liamcoop/triggers/observer"
	"github.com/liamcoop/triggers/presets"
	"github.com/liamcoop/triggers/render"
	"github.com/liamcoop/triggers/rules"
)

type testServer struct {
	*httptest.Server
	handler    *Server
	dispatcher *dispatcher.Dispatcher
	platform   *actionstest.Recorder
	observer   *observer.Observer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := rules.NewCachedRuleStore(rules.NewInMemoryRuleStore(), rules.NewInMemoryRulesCache(rules.DefaultCacheConfig()))
	eval, err := conditions.NewEvaluator(nil)
	require.NoError(t, err)

	platform := &actionstest.Recorder{}
	cleanup := actions.NewScheduler(nil, time.Second)
	t.Cleanup(cleanup.Close)

	obs := observer.New(observer.DefaultCapacity)
	hub := observer.NewWebSocketHub(obs.Buffer, nil)
	t.Cleanup(hub.Close)
	obs.Subscribe(hub)

	disp := &dispatcher.Dispatcher{
		Rules:      store,
		Conditions: eval,
		Selector:   presets.NewSelector(nil),
		Cooldowns:  cooldown.NewMemTracker(time.Now),
		Executor:   actions.NewExecutor(platform, actions.NewHTTPCaller(time.Second), cleanup, nil),
		Observer:   obs,
	}
	server := NewServer(Deps{
		Store:      store,
		Dispatcher: disp,
		Observer:   obs,
		Hub:        hub,
	})

	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, handler: server, dispatcher: disp, platform: platform, observer: obs}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func pingRule() map[string]any {
	return map[string]any{
		"name":      "ping",
		"eventType": "messageCreate",
		"conditions": []map[string]any{
			{"type": "messageContent", "matchType": "contains", "value": "ping"},
		},
		"presets": []map[string]any{
			{"type": "text", "template": "pong to {author.name}"},
		},
	}
}

func pingEvent(content string) map[string]any {
	return map[string]any{
		"type": "messageCreate",
		"payload": map[string]any{
			"guild":   map[string]any{"id": "guild-1", "name": "Gophers"},
			"channel": map[string]any{"id": "c1", "name": "general"},
			"message": map[string]any{
				"id":      "m1",
				"content": content,
				"author":  map[string]any{"id": "42", "name": "alice"},
			},
		},
	}
}

func createRule(t *testing.T, s *testServer, tenantID string, body map[string]any) rules.Rule {
	t.Helper()
	status, data := s.do(t, http.MethodPost, "/api/v1/tenants/"+tenantID+"/rules", body)
	require.Equal(t, http.StatusCreated, status, string(data))

	var rule rules.Rule
	require.NoError(t, json.Unmarshal(data, &rule))
	return rule
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	status, data := s.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, status)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, "healthy", resp.Status)
}

func TestRuleLifecycle(t *testing.T) {
	s := newTestServer(t)

	rule := createRule(t, s, "guild-1", pingRule())
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "guild-1", rule.TenantID)
	assert.True(t, rule.Enabled)
	require.Len(t, rule.Presets, 1)
	assert.True(t, rule.Presets[0].Enabled, "presets default to enabled")
	assert.NotEmpty(t, rule.Presets[0].ID)

	status, data := s.do(t, http.MethodGet, "/api/v1/tenants/guild-1/rules/"+rule.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var got rules.Rule
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "ping", got.Name)

	status, data = s.do(t, http.MethodPatch, "/api/v1/tenants/guild-1/rules/"+rule.ID, map[string]any{
		"name":    "ping v2",
		"enabled": false,
	})
	require.Equal(t, http.StatusOK, status, string(data))
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "ping v2", got.Name)
	assert.False(t, got.Enabled)
	assert.Len(t, got.Presets, 1, "presets untouched by patch")

	status, data = s.do(t, http.MethodGet, "/api/v1/tenants/guild-1/rules", nil)
	require.Equal(t, http.StatusOK, status)
	var list RulesListResponse
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Len(t, list.Rules, 1)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/tenants/guild-1/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = s.do(t, http.MethodGet, "/api/v1/tenants/guild-1/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodDelete, "/api/v1/tenants/guild-1/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodPatch, "/api/v1/tenants/guild-1/rules/"+rule.ID, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListRulesEmptyTenant(t *testing.T) {
	s := newTestServer(t)

	status, data := s.do(t, http.MethodGet, "/api/v1/tenants/nobody/rules", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"rules": []}`, string(data))
}

func TestCreateRuleErrors(t *testing.T) {
	s := newTestServer(t)

	invalid := pingRule()
	invalid["name"] = ""
	status, data := s.do(t, http.MethodPost, "/api/v1/tenants/guild-1/rules", invalid)
	assert.Equal(t, http.StatusBadRequest, status, string(data))

	tooMany := pingRule()
	var presetList []map[string]any
	for i := 0; i < rules.MaxPresetsPerRule+1; i++ {
		presetList = append(presetList, map[string]any{"type": "text", "template": fmt.Sprintf("reply %d", i)})
	}
	tooMany["presets"] = presetList
	status, _ = s.do(t, http.MethodPost, "/api/v1/tenants/guild-1/rules", tooMany)
	assert.Equal(t, http.StatusConflict, status)

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/v1/tenants/guild-1/rules", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateRuleCapacity(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < rules.MaxRulesPerTenant; i++ {
		body := pingRule()
		body["name"] = fmt.Sprintf("rule-%d", i)
		createRule(t, s, "guild-1", body)
	}

	status, data := s.do(t, http.MethodPost, "/api/v1/tenants/guild-1/rules", pingRule())
	assert.Equal(t, http.StatusConflict, status)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Contains(t, resp.Details, rules.ErrRuleLimitExceeded.Error())

	createRule(t, s, "guild-2", pingRule())
}

func TestEventDispatch(t *testing.T) {
	s := newTestServer(t)
	rule := createRule(t, s, "guild-1", pingRule())

	status, data := s.do(t, http.MethodPost, "/api/v1/tenants/guild-1/events", pingEvent("ping"))
	require.Equal(t, http.StatusOK, status, string(data))

	var report dispatcher.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, []string{rule.ID}, report.Matched)
	require.Len(t, report.Outcomes, 1)
	assert.True(t, report.Outcomes[0].Success)

	calls := s.platform.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "SendText", calls[0].Method)
	assert.Equal(t, "c1", calls[0].ChannelID)
	assert.Equal(t, "pong to alice", calls[0].Text)

	status, data = s.do(t, http.MethodPost, "/api/v1/tenants/guild-1/events", pingEvent("hello"))
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Empty(t, report.Matched)
	assert.Len(t, s.platform.Calls(), 1)

	status, data = s.do(t, http.MethodPost, "/api/v1/tenants/guild-2/events", pingEvent("ping"))
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Empty(t, report.Matched, "rules are tenant scoped")
}

// cancelOnFirstExecute cancels the caller's context as soon as one preset has
// run, the way a client hanging up mid-request would.
type cancelOnFirstExecute struct {
	next   dispatcher.PresetExecutor
	cancel context.CancelFunc
}

func (c *cancelOnFirstExecute) Execute(ctx context.Context, ruleID string, preset rules.Preset, ec *event.Context) actions.Outcome {
	out := c.next.Execute(ctx, ruleID, preset, ec)
	c.cancel()
	return out
}

func TestEventDispatchOutlivesCaller(t *testing.T) {
	s := newTestServer(t)
	first := pingRule()
	first["name"] = "first"
	first["priority"] = 10
	second := pingRule()
	second["name"] = "second"
	r1 := createRule(t, s, "guild-1", first)
	r2 := createRule(t, s, "guild-1", second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.dispatcher.Executor = &cancelOnFirstExecute{next: s.dispatcher.Executor, cancel: cancel}

	body, err := json.Marshal(pingEvent("ping"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/guild-1/events", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Error(t, ctx.Err())

	var report dispatcher.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Evaluated)
	assert.ElementsMatch(t, []string{r1.ID, r2.ID}, report.Matched)
	assert.Empty(t, report.Errors)
	assert.Len(t, s.platform.Calls(), 2)
}

func TestPlaceholders(t *testing.T) {
	s := newTestServer(t)

	status, data := s.do(t, http.MethodGet, "/api/v1/placeholders", nil)
	require.Equal(t, http.StatusOK, status)

	var resp PlaceholdersResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, render.Placeholders(), resp.Placeholders)
	assert.Contains(t, resp.Placeholders, "author.name")
	assert.IsIncreasing(t, resp.Placeholders)
}

func TestEventRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodPost, "/api/v1/tenants/guild-1/events", map[string]any{
		"type":    "somethingElse",
		"payload": map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/tenants/guild-1/events", map[string]any{
		"type": "messageCreate",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/tenants/guild-1/events", map[string]any{
		"type":    "messageCreate",
		"payload": "not an object",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestExecutionsHistory(t *testing.T) {
	s := newTestServer(t)
	rule := createRule(t, s, "guild-1", pingRule())

	s.do(t, http.MethodPost, "/api/v1/tenants/guild-1/events", pingEvent("ping"))

	status, data := s.do(t, http.MethodGet, "/api/v1/executions", nil)
	require.Equal(t, http.StatusOK, status)
	var resp ExecutionsResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.Len(t, resp.Executions, 1)
	assert.Equal(t, rule.ID, resp.Executions[0].RuleID)
	assert.Equal(t, "guild-1", resp.Executions[0].TenantID)
	assert.True(t, resp.Executions[0].Success)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/executions", nil)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Empty(t, s.observer.Buffer())
}

func TestLiveExecutionsReplay(t *testing.T) {
	s := newTestServer(t)
	rule := createRule(t, s, "guild-1", pingRule())
	s.do(t, http.MethodPost, "/api/v1/tenants/guild-1/events", pingEvent("ping"))

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/v1/executions/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame struct {
		Event string              `json:"event"`
		Data  observer.FiredEvent `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, observer.EventFired, frame.Event)
	assert.Equal(t, rule.ID, frame.Data.RuleID)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	createRule(t, s, "guild-1", pingRule())
	s.do(t, http.MethodPost, "/api/v1/tenants/guild-1/events", pingEvent("ping"))

	status, data := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), "triggers_events_processed_total")
	assert.Contains(t, string(data), "triggers_fired_events_total")
}
