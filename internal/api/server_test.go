package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"firmledger/internal/api"
	"firmledger/internal/auth"
	"firmledger/internal/catalog"
	"firmledger/internal/db"
	"firmledger/internal/game"
	"firmledger/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminToken = "test-admin"

type harness struct {
	t  *testing.T
	ts *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open(context.Background(), db.SQLite, filepath.Join(t.TempDir(), "api.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(st, logger, game.WithPasswordCost(bcrypt.MinCost), game.WithSampler(game.NewRandSampler(1)))
	cat, err := catalog.Default()
	require.NoError(t, err)

	srv, err := api.New(logger, auth.NewAdminGuard(adminToken), svc, cat, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{t: t, ts: ts}
}

func (h *harness) do(method, path string, body any, headers map[string]string) (int, map[string]any) {
	h.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rdr)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.ts.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (h *harness) admin(method, path string, body any) (int, map[string]any) {
	return h.do(method, path, body, map[string]string{"Authorization": "Bearer " + adminToken})
}

// bootstrap installs the default catalog with two funded players.
func (h *harness) bootstrap() {
	h.t.Helper()
	status, out := h.admin(http.MethodPost, "/v1/admin/init", nil)
	require.Equal(h.t, http.StatusOK, status, out)
	assert.EqualValues(h.t, 4, out["firm_types_created"])

	for _, p := range []map[string]any{
		{"name": "Alice", "password": "secret"},
		{"name": "Bob", "password": "hunter"},
	} {
		status, out := h.admin(http.MethodPost, "/v1/admin/players", p)
		require.Equal(h.t, http.StatusCreated, status, out)
	}

	status, out = h.admin(http.MethodPost, "/v1/admin/initial-exchange", nil)
	require.Equal(h.t, http.StatusOK, status, out)
	assert.EqualValues(h.t, 2, out["players_credited"])
}

func transferBody(auths []map[string]any, coin int64) map[string]any {
	return map[string]any{
		"auth": auths,
		"data": map[string]any{
			"sender_id":   1,
			"receiver_id": 2,
			"received":    map[string]any{"coin": coin},
		},
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	status, out := h.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["ok"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	status, out := h.do(http.MethodPost, "/v1/admin/init", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "admin token required", out["error"])

	status, _ = h.do(http.MethodPost, "/v1/admin/init", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestBootstrapAndBalance(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	status, out := h.do(http.MethodGet, "/v1/players/1/balance", nil, nil)
	require.Equal(t, http.StatusOK, status)
	balance := out["balance_micros"].(map[string]any)
	assert.EqualValues(t, 500*game.MicrosPerUnit, balance["coin"])
	assert.EqualValues(t, 100*game.MicrosPerUnit, balance["iron"])

	status, out = h.do(http.MethodGet, "/v1/players/99/balance", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "playerId 99 not found.", out["error"])

	status, _ = h.do(http.MethodGet, "/v1/players/abc/balance", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, out = h.do(http.MethodGet, "/v1/firm-types", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["firm_types"], 4)

	status, out = h.do(http.MethodGet, "/v1/firms", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, out["firms"])
}

func TestCreatePlayerRejectsBadPassword(t *testing.T) {
	h := newHarness(t)
	status, out := h.admin(http.MethodPost, "/v1/admin/players", map[string]any{"name": "Eve", "password": "abc"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, out["error"])

	status, _ = h.admin(http.MethodPost, "/v1/admin/players", map[string]any{"name": "Eve", "password": "abcdef", "admin": true})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTransferAuthAndIdempotency(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	both := []map[string]any{
		{"player_id": 1, "password": "secret"},
		{"player_id": 2, "password": "hunter"},
	}

	status, _ := h.do(http.MethodPost, "/v1/exchanges/transfer", `{"data":{}}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, out := h.do(http.MethodPost, "/v1/exchanges/transfer", transferBody(both[:1], 50), nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "senderId and receiverId does not match auth.", out["error"])

	wrong := []map[string]any{both[0], {"player_id": 2, "password": "secret"}}
	status, out = h.do(http.MethodPost, "/v1/exchanges/transfer", transferBody(wrong, 50), nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid auth.", out["error"])

	idem := map[string]string{"Idempotency-Key": "transfer-1"}
	status, out = h.do(http.MethodPost, "/v1/exchanges/transfer", transferBody(both, 50), idem)
	require.Equal(t, http.StatusCreated, status, out)
	exchange := out["exchange"].(map[string]any)
	assert.Equal(t, "transfer", exchange["action"])

	status, out = h.do(http.MethodPost, "/v1/exchanges/transfer", transferBody(both, 50), idem)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate idempotency key", out["error"])

	status, out = h.do(http.MethodPost, "/v1/exchanges/transfer", transferBody(both, 10_000), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, out["error"], "exceeds balance")

	status, out = h.do(http.MethodGet, "/v1/players/1/balance", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 450*game.MicrosPerUnit, out["balance_micros"].(map[string]any)["coin"])

	status, out = h.do(http.MethodGet, "/v1/players/2/exchanges?month=0", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["exchanges"], 2)

	status, _ = h.do(http.MethodGet, "/v1/players/2/exchanges?month=soon", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateFirmThroughAPI(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	body := map[string]any{
		"auth": []map[string]any{{"player_id": 1, "password": "secret"}},
		"data": map[string]any{
			"type_id": 1,
			"ownerships": []map[string]any{{
				"player_id":      1,
				"ownership_perc": 100,
				"monthly_cost":   map[string]any{"coin": 20},
				"payed":          map[string]any{"coin": 300, "lumber": 50},
			}},
		},
	}
	status, out := h.do(http.MethodPost, "/v1/firms", body, nil)
	require.Equal(t, http.StatusCreated, status, out)

	status, out = h.do(http.MethodGet, "/v1/firms", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, out["firms"], 1)

	status, out = h.do(http.MethodGet, "/v1/players/1/balance", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 200*game.MicrosPerUnit, out["balance_micros"].(map[string]any)["coin"])
}

func TestNextMonthAndCycles(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	status, out := h.admin(http.MethodPost, "/v1/admin/next-month", map[string]any{"expected_month": 0})
	require.Equal(t, http.StatusOK, status, out)
	assert.EqualValues(t, 1, out["month"])
	assert.EqualValues(t, 2, out["players"])

	status, out = h.admin(http.MethodPost, "/v1/admin/next-month", map[string]any{"expected_month": 0})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "month already advanced. (expected: 0, current: 1)", out["error"])

	status, out = h.do(http.MethodGet, "/v1/month", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, out["month"])

	status, out = h.do(http.MethodGet, "/v1/months/1/cycles", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, out["cycles"])
	assert.Equal(t, []any{}, out["fails"])

	status, _ = h.do(http.MethodGet, "/v1/months/-1/cycles", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEnvConfigRoutes(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	status, out := h.admin(http.MethodPut, "/v1/admin/env-config/eatAmount", map[string]any{"value": "30"})
	require.Equal(t, http.StatusOK, status, out)

	status, out = h.admin(http.MethodGet, "/v1/admin/env-config", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "30", out["env_config"].(map[string]any)["eatAmount"])

	status, out = h.admin(http.MethodPut, "/v1/admin/env-config/goldAmount", map[string]any{"value": "1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, `unknown env config key "goldAmount".`, out["error"])

	status, _ = h.admin(http.MethodPut, "/v1/admin/env-config/eatAmount", map[string]any{"value": "many"})
	assert.Equal(t, http.StatusBadRequest, status)
}
