package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/personahire/tokenmeter/adapters/clock"
	"github.com/personahire/tokenmeter/adapters/idgen"
	"github.com/personahire/tokenmeter/adapters/memory"
	"github.com/personahire/tokenmeter/app"
	"github.com/personahire/tokenmeter/domain/policy"
	"github.com/personahire/tokenmeter/domain/pricing"
	"github.com/personahire/tokenmeter/domain/usage"
)

func testServer(t *testing.T, th policy.Thresholds) (*httptest.Server, *app.LedgerService, *clock.Fake) {
	t.Helper()
	store := memory.NewKVStore()
	gw := app.NewGateway(store, zerolog.Nop(), nil)
	fc := clock.NewFake(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	ledger := app.NewLedgerService(gw, fc, idgen.NewSequential("evt-"), pricing.Default(), zerolog.Nop(), nil)
	policySvc := app.NewPolicyService(ledger, th, zerolog.Nop(), nil)

	h := NewHandler(ledger, policySvc, zerolog.Nop())
	srv := httptest.NewServer(h.Router(RouterOptions{MetricsEnabled: true}))
	t.Cleanup(srv.Close)
	return srv, ledger, fc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestRecordEvent(t *testing.T) {
	srv, _, _ := testServer(t, policy.Thresholds{})

	resp := postJSON(t, srv.URL+"/v1/events", map[string]any{
		"category":         "chat-completion",
		"input_units":      1000,
		"output_units":     500,
		"response_time_ms": 250,
		"session_id":       "s1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var e usage.Event
	decode(t, resp, &e)
	if e.TotalUnits != 1500 {
		t.Errorf("expected total units 1500, got %d", e.TotalUnits)
	}
	// Cost derived from the pricing table when the body omits it:
	// 1000/1000*0.002 + 500/1000*0.008 = 0.006.
	if diff := e.Cost - 0.006; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected derived cost 0.006, got %v", e.Cost)
	}
}

func TestRecordEvent_ExplicitCostWins(t *testing.T) {
	srv, _, _ := testServer(t, policy.Thresholds{})

	resp := postJSON(t, srv.URL+"/v1/events", map[string]any{
		"category":     "chat-completion",
		"input_units":  1000,
		"output_units": 500,
		"cost":         0.5,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var e usage.Event
	decode(t, resp, &e)
	if e.Cost != 0.5 {
		t.Errorf("expected explicit cost 0.5, got %v", e.Cost)
	}
}

func TestRecordEvent_ValidationError(t *testing.T) {
	srv, _, _ := testServer(t, policy.Thresholds{})

	resp := postJSON(t, srv.URL+"/v1/events", map[string]any{
		"category":    "chat-completion",
		"input_units": -5,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", resp.StatusCode)
	}
}

func TestRecordEvent_BadJSON(t *testing.T) {
	srv, _, _ := testServer(t, policy.Thresholds{})

	resp, err := http.Post(srv.URL+"/v1/events", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDecide(t *testing.T) {
	srv, ledger, _ := testServer(t, policy.Thresholds{DailyUnits: 1000})
	ctx := context.Background()

	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 900, 0, 0, 0, ""); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(t, srv.URL+"/v1/decisions", map[string]any{
		"units":    200,
		"category": "chat-completion",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var d struct {
		Outcome string `json:"outcome"`
		Code    string `json:"code"`
		Allowed bool   `json:"allowed"`
	}
	decode(t, resp, &d)
	if d.Outcome != "block" || d.Code != "DAILY_LIMIT_EXCEEDED" || d.Allowed {
		t.Errorf("expected daily-limit block, got %+v", d)
	}
}

func TestDecide_Validation(t *testing.T) {
	srv, _, _ := testServer(t, policy.Thresholds{})

	resp := postJSON(t, srv.URL+"/v1/decisions", map[string]any{"units": -1, "category": "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for negative units, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/v1/decisions", map[string]any{"units": 10})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for missing category, got %d", resp.StatusCode)
	}
}

func TestGetDay(t *testing.T) {
	srv, ledger, _ := testServer(t, policy.Thresholds{})
	ctx := context.Background()

	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 100, 50, 0.001, 100, ""); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/v1/days/2026-03-15")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var b usage.DailyBucket
	decode(t, resp, &b)
	if b.TotalCalls != 1 || b.TotalUnits != 150 {
		t.Errorf("unexpected bucket: %+v", b)
	}
}

func TestGetDay_AbsentIs404(t *testing.T) {
	srv, _, _ := testServer(t, policy.Thresholds{})

	resp, err := http.Get(srv.URL + "/v1/days/2020-01-01")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for a day with no usage, got %d", resp.StatusCode)
	}
}

func TestGetDay_BadDate(t *testing.T) {
	srv, _, _ := testServer(t, policy.Thresholds{})

	resp, err := http.Get(srv.URL + "/v1/days/not-a-date")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed date, got %d", resp.StatusCode)
	}
}

func TestGetDayEvents(t *testing.T) {
	srv, ledger, fc := testServer(t, policy.Thresholds{})
	ctx := context.Background()

	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 100, 0, 0, 0, ""); err != nil {
		t.Fatal(err)
	}
	fc.Advance(24 * time.Hour)
	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 200, 0, 0, 0, ""); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/v1/days/2026-03-15/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var body struct {
		Date   string        `json:"date"`
		Events []usage.Event `json:"events"`
	}
	decode(t, resp, &body)
	if len(body.Events) != 1 || body.Events[0].TotalUnits != 100 {
		t.Errorf("expected one event of 100 units, got %+v", body.Events)
	}
}

func TestListEvents(t *testing.T) {
	srv, ledger, fc := testServer(t, policy.Thresholds{})
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, i, 0, 0, 0, ""); err != nil {
			t.Fatal(err)
		}
		fc.Advance(time.Minute)
	}

	resp, err := http.Get(srv.URL + "/v1/events?limit=2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var body struct {
		Events []usage.Event `json:"events"`
	}
	decode(t, resp, &body)
	if len(body.Events) != 2 || body.Events[0].TotalUnits != 5 {
		t.Errorf("expected newest 2 events first, got %+v", body.Events)
	}

	since := time.Date(2026, 3, 15, 10, 3, 0, 0, time.UTC).Format(time.RFC3339)
	resp, err = http.Get(srv.URL + "/v1/events?since=" + since)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	decode(t, resp, &body)
	if len(body.Events) != 2 {
		t.Errorf("expected 2 events since %s, got %d", since, len(body.Events))
	}
}

func TestGetTotals(t *testing.T) {
	srv, ledger, fc := testServer(t, policy.Thresholds{})
	ctx := context.Background()

	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 100, 0, 0.01, 0, ""); err != nil {
		t.Fatal(err)
	}
	fc.Advance(24 * time.Hour)
	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 300, 0, 0.03, 0, ""); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/v1/totals")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var totals usage.Totals
	decode(t, resp, &totals)
	if totals.TotalCalls != 2 || totals.TotalUnits != 400 || totals.ActiveDayCount != 2 {
		t.Errorf("unexpected totals: %+v", totals)
	}
	if totals.AverageUnitsPerActiveDay != 200 {
		t.Errorf("expected average 200 units/day, got %v", totals.AverageUnitsPerActiveDay)
	}
}

func TestGetSummary(t *testing.T) {
	srv, ledger, _ := testServer(t, policy.Thresholds{})
	ctx := context.Background()

	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 100, 0, 0.01, 0, ""); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/v1/summary?since=2026-03-15T00:00:00Z")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var sum usage.Summary
	decode(t, resp, &sum)
	if sum.TotalCalls != 1 || sum.TotalUnits != 100 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestResetLedger(t *testing.T) {
	srv, ledger, _ := testServer(t, policy.Thresholds{})
	ctx := context.Background()

	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 100, 0, 0, 0, ""); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	if got := ledger.Totals().TotalCalls; got != 0 {
		t.Errorf("expected empty ledger after reset, got %d calls", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _, _ := testServer(t, policy.Thresholds{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /healthz, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
}
