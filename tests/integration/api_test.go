//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"tradeguard/internal/models"
	"tradeguard/internal/pipeline"
)

// postJSON sends a JSON POST and decodes the response into out
func postJSON(t *testing.T, url string, body interface{}, out interface{}) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp
}

func orderBody(idempotencyKey string) map[string]interface{} {
	return map[string]interface{}{
		"user_id":           "user-1",
		"bot_id":            "bot-api",
		"exchange":          "binance",
		"symbol":            "BTC/USDT",
		"side":              "buy",
		"amount":            0.01,
		"order_type":        "market",
		"price":             50000.0,
		"idempotency_key":   idempotencyKey,
		"expected_edge_bps": 100.0,
	}
}

func TestAPI_SubmitOrder_FullPass(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	var result pipeline.SubmitResult
	resp := postJSON(t, ts.Server.URL+"/api/v1/orders", orderBody("api-key-1"), &result)

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}
	if !result.Success || result.OrderID == "" {
		t.Fatalf("expected admitted order, got %+v", result)
	}
	if len(result.GatesPassed) != len(models.GateOrder) {
		t.Errorf("expected all gates passed, got %v", result.GatesPassed)
	}

	// Ордер реально в БД в состоянии pending
	order, err := ts.Repos.Order.GetByOrderID(result.OrderID)
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if order.State != models.OrderStatePending {
		t.Errorf("expected pending state, got %s", order.State)
	}
}

func TestAPI_SubmitOrder_IdempotentReplay(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	var first pipeline.SubmitResult
	resp := postJSON(t, ts.Server.URL+"/api/v1/orders", orderBody("api-key-replay"), &first)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}

	var second pipeline.SubmitResult
	resp = postJSON(t, ts.Server.URL+"/api/v1/orders", orderBody("api-key-replay"), &second)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 on replay, got %d", resp.StatusCode)
	}
	if !second.Duplicate {
		t.Error("expected duplicate flag on replay")
	}
	if second.OrderID != first.OrderID {
		t.Errorf("replay returned different order: %s vs %s", second.OrderID, first.OrderID)
	}
}

func TestAPI_SubmitOrder_InsufficientEdge(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	body := orderBody("api-key-edge")
	body["expected_edge_bps"] = 1.0 // ниже total_cost

	var result pipeline.SubmitResult
	resp := postJSON(t, ts.Server.URL+"/api/v1/orders", body, &result)

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", resp.StatusCode)
	}
	if result.Gate != models.GateFeeCoverage {
		t.Errorf("expected fee_coverage gate, got %s", result.Gate)
	}
	if result.Reason != "Insufficient edge" {
		t.Errorf("unexpected reason %q", result.Reason)
	}

	// Отклонённый ордер не персистится
	count, err := ts.Repos.Order.CountByState(models.OrderStatePending)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no pending orders, got %d", count)
	}
}

func TestAPI_RecordFill_EndToEnd(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	var submitted pipeline.SubmitResult
	postJSON(t, ts.Server.URL+"/api/v1/orders", orderBody("api-key-fill"), &submitted)
	if !submitted.Success {
		t.Fatalf("submit failed: %+v", submitted)
	}

	fillBody := map[string]interface{}{
		"filled_price":      50100.0,
		"filled_qty":        0.01,
		"actual_fee":        5.0,
		"realized_pnl":      -25.0,
		"fee_currency":      "USDT",
		"exchange_trade_id": "T-1",
	}

	var fill pipeline.FillResult
	resp := postJSON(t, fmt.Sprintf("%s/api/v1/orders/%s/fill", ts.Server.URL, submitted.OrderID), fillBody, &fill)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if fill.SlippageBps < 19.99 || fill.SlippageBps > 20.01 {
		t.Errorf("expected slippage 20 bps, got %f", fill.SlippageBps)
	}
	if fill.ActualFeeBps < 99.99 || fill.ActualFeeBps > 100.01 {
		t.Errorf("expected fee 100 bps, got %f", fill.ActualFeeBps)
	}

	// Ордер переведён в filled, fill в леджере
	order, err := ts.Repos.Order.GetByOrderID(submitted.OrderID)
	if err != nil {
		t.Fatalf("order lookup failed: %v", err)
	}
	if order.State != models.OrderStateFilled {
		t.Errorf("expected filled state, got %s", order.State)
	}

	count, err := ts.Repos.Ledger.GetTradeCountForBot("bot-api", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("trade count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 fill in ledger, got %d", count)
	}

	// Переданный realized_pnl попадает в агрегаты леджера
	pnl, err := ts.Repos.Ledger.ComputeRealizedPnl("bot-api")
	if err != nil {
		t.Fatalf("realized pnl failed: %v", err)
	}
	if pnl != -25.0 {
		t.Errorf("expected realized pnl -25.0, got %f", pnl)
	}
	losses, err := ts.Repos.Ledger.GetConsecutiveLosses("bot-api")
	if err != nil {
		t.Fatalf("losses failed: %v", err)
	}
	if losses != 1 {
		t.Errorf("expected 1 consecutive loss, got %d", losses)
	}
}

func TestAPI_Breakers(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	// Ручное взведение
	var state models.CircuitBreakerState
	resp := postJSON(t, ts.Server.URL+"/api/v1/breakers/bot-api/trip",
		map[string]string{"user_id": "user-1", "reason": "manual stop"}, &state)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trip failed with status %d", resp.StatusCode)
	}
	if !state.Tripped || state.TriggerType != models.TriggerManual {
		t.Fatalf("unexpected state %+v", state)
	}

	// Взведённый breaker отклоняет ордера
	var rejected pipeline.SubmitResult
	resp = postJSON(t, ts.Server.URL+"/api/v1/orders", orderBody("api-key-breaker"), &rejected)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 while tripped, got %d", resp.StatusCode)
	}
	if rejected.Gate != models.GateCircuitBreaker {
		t.Errorf("expected circuit_breaker gate, got %s", rejected.Gate)
	}

	// Breaker виден в списке взведённых
	listResp, err := http.Get(ts.Server.URL + "/api/v1/breakers")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	defer listResp.Body.Close()
	var list struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("expected 1 tripped breaker, got %d", list.Total)
	}

	// Снятие и повторный допуск
	resp = postJSON(t, ts.Server.URL+"/api/v1/breakers/bot-api/reset", map[string]string{}, &state)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset failed with status %d", resp.StatusCode)
	}
	if state.Tripped {
		t.Error("expected cleared breaker")
	}

	var admitted pipeline.SubmitResult
	resp = postJSON(t, ts.Server.URL+"/api/v1/orders", orderBody("api-key-after-reset"), &admitted)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 after reset, got %d", resp.StatusCode)
	}
}

func TestAPI_ErrorStorm_TripsBreaker(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	// 10 ошибок за час - порог error-storm в тестовой конфигурации
	for i := 0; i < 10; i++ {
		var ok map[string]interface{}
		resp := postJSON(t, ts.Server.URL+"/api/v1/errors", map[string]interface{}{
			"bot_id":  "bot-api",
			"user_id": "user-1",
			"source":  "exchange_api",
			"message": "order book timeout",
		}, &ok)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", resp.StatusCode)
		}
	}

	var result pipeline.SubmitResult
	resp := postJSON(t, ts.Server.URL+"/api/v1/orders", orderBody("api-key-storm"), &result)

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", resp.StatusCode)
	}
	if result.Gate != models.GateCircuitBreaker {
		t.Errorf("expected circuit_breaker gate, got %s", result.Gate)
	}
	if !strings.Contains(result.Reason, "Error rate") {
		t.Errorf("expected error-rate reason, got %q", result.Reason)
	}

	// Breaker защёлкнут и виден в списке взведённых
	state, err := ts.Repos.Breaker.Get("bot-api")
	if err != nil {
		t.Fatalf("breaker lookup failed: %v", err)
	}
	if !state.Tripped || state.TriggerType != models.TriggerErrorStorm {
		t.Errorf("expected error_rate trip, got %+v", state)
	}
}

func TestAPI_LedgerStats(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	resp, err := http.Get(ts.Server.URL + "/api/v1/ledger/stats?bot_id=bot-api")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var stats models.LedgerStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stats.Equity == 0 {
		t.Error("expected starting equity, got 0")
	}
}

func TestAPI_Health(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	resp, err := http.Get(ts.Server.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}
