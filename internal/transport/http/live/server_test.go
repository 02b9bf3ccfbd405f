package livehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contra/internal/engine"
	"contra/internal/store/tradelog"
)

type stubController struct {
	enabled   bool
	closedAll int
}

func (s *stubController) Status() engine.Status {
	return engine.Status{Running: true, TradingEnabled: s.enabled, Cycle: 7}
}
func (s *stubController) TradingEnabled() bool         { return s.enabled }
func (s *stubController) SetTradingEnabled(v bool)     { s.enabled = v }
func (s *stubController) CloseAll(context.Context) int { s.closedAll++; return 2 }

type stubTrades struct {
	trades []tradelog.TradeModel
	points []tradelog.EquityPointModel
}

func (s *stubTrades) RecentTrades(_ context.Context, limit int) ([]tradelog.TradeModel, error) {
	if limit < len(s.trades) {
		return s.trades[:limit], nil
	}
	return s.trades, nil
}

func (s *stubTrades) EquityHistory(_ context.Context, limit int) ([]tradelog.EquityPointModel, error) {
	if limit < len(s.points) {
		return s.points[:limit], nil
	}
	return s.points, nil
}

func newTestServer(t *testing.T, trades TradeReader) (*Server, *stubController) {
	t.Helper()
	ctrl := &stubController{enabled: true}
	srv, err := NewServer(ServerConfig{Controller: ctrl, Trades: trades})
	require.NoError(t, err)
	return srv, ctrl
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Running)
	assert.True(t, st.TradingEnabled)
	assert.EqualValues(t, 7, st.Cycle)
}

func TestTradingToggle(t *testing.T) {
	srv, ctrl := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/trading", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, ctrl.enabled)
	assert.JSONEq(t, `{"enabled":false}`, rec.Body.String())

	rec = doRequest(t, srv, http.MethodPost, "/api/trading", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ctrl.enabled)
}

func TestTradingToggleRejectsBadBody(t *testing.T) {
	srv, ctrl := newTestServer(t, nil)
	for _, body := range []string{``, `{}`, `{"enabled":"yes"}`, `not json`} {
		rec := doRequest(t, srv, http.MethodPost, "/api/trading", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	assert.True(t, ctrl.enabled, "bad requests must not flip the toggle")
}

func TestCloseAll(t *testing.T) {
	srv, ctrl := newTestServer(t, nil)
	rec := doRequest(t, srv, http.MethodPost, "/api/close-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"closed":2}`, rec.Body.String())
	assert.Equal(t, 1, ctrl.closedAll)
}

func TestTradesEndpoint(t *testing.T) {
	trades := &stubTrades{trades: []tradelog.TradeModel{
		{Symbol: "BTCUSDT", Side: "LONG", PnL: 12.5, ClosedAt: time.Now()},
		{Symbol: "ETHUSDT", Side: "SHORT", PnL: -3.1, ClosedAt: time.Now()},
	}}
	srv, _ := newTestServer(t, trades)

	rec := doRequest(t, srv, http.MethodGet, "/api/trades", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)

	rec = doRequest(t, srv, http.MethodGet, "/api/trades?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestHistoryUnavailableWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, path := range []string{"/api/trades", "/api/equity"} {
		rec := doRequest(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestEquityChartRenders(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	trades := &stubTrades{points: []tradelog.EquityPointModel{
		{At: now, Balance: 1000},
		{At: now.Add(time.Hour), Balance: 1010},
	}}
	srv, _ := newTestServer(t, trades)

	rec := doRequest(t, srv, http.MethodGet, "/charts/equity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "echarts")
}

func TestQueryLimitClamp(t *testing.T) {
	trades := &stubTrades{}
	srv, _ := newTestServer(t, trades)
	rec := doRequest(t, srv, http.MethodGet, "/api/trades?limit=99999", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewServerRequiresController(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}
