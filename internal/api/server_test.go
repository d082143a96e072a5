package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/epochvault/internal/metrics"
	"github.com/louisbranch/epochvault/internal/vault/assets"
	"github.com/louisbranch/epochvault/internal/vault/domain"
	"github.com/louisbranch/epochvault/internal/vault/engine"
)

const testSecret = "test-keeper-secret"

type fixedEpochs struct {
	current uint64
}

func (f *fixedEpochs) CurrentEpoch(ctx context.Context) (uint64, error) {
	return f.current, nil
}

type serverFixture struct {
	server *Server
	epochs *fixedEpochs
	ledger *assets.Ledger
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		epochs: &fixedEpochs{},
		ledger: assets.NewLedger(),
	}
	eng, err := engine.New(context.Background(), engine.Config{
		Params:      domain.DefaultParams("treasury"),
		EpochSource: f.epochs,
		Assets:      f.ledger,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	server, err := New(Config{Engine: eng, Metrics: metrics.New(), KeeperSecret: testSecret})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	f.server = server
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, account, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if account != "" {
		req.Header.Set(accountHeader, account)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestDepositRequiresAccountHeader(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/deposits", "", `{"assets":"100"}`, nil)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %v", body["code"])
	}
}

func TestDepositAccepted(t *testing.T) {
	f := newServerFixture(t)
	f.ledger.Mint("alice", sdkmath.NewInt(1000))

	rec := f.do(t, http.MethodPost, "/v1/deposits", "alice", `{"assets":"1000"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["net_assets"] != "1000" {
		t.Fatalf("expected net 1000, got %v", body["net_assets"])
	}
}

func TestDepositRejectsMalformedAmount(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/deposits", "alice", `{"assets":"lots"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSettleRequiresKeeperToken(t *testing.T) {
	f := newServerFixture(t)
	f.epochs.current = 1

	rec := f.do(t, http.MethodPost, "/v1/epochs/0/settle", "", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/v1/epochs/0/settle", "", "", map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with garbage token, got %d", rec.Code)
	}

	wrongKey, err := KeeperToken("some-other-secret")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec = f.do(t, http.MethodPost, "/v1/epochs/0/settle", "", "", map[string]string{
		"Authorization": "Bearer " + wrongKey,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong key, got %d", rec.Code)
	}
}

func TestSettleLifecycle(t *testing.T) {
	f := newServerFixture(t)
	f.epochs.current = 1
	token, err := KeeperToken(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	auth := map[string]string{"Authorization": "Bearer " + token}

	rec := f.do(t, http.MethodPost, "/v1/epochs/0/settle", "", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["share_price"] != "1000000" {
		t.Fatalf("expected par price, got %v", body["share_price"])
	}

	// A second settlement of the same epoch conflicts.
	rec = f.do(t, http.MethodPost, "/v1/epochs/0/settle", "", "", auth)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on repeat, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["code"] != "EPOCH_ALREADY_SETTLED" {
		t.Fatalf("expected EPOCH_ALREADY_SETTLED, got %v", body["code"])
	}
}

func TestEpochCursorView(t *testing.T) {
	f := newServerFixture(t)
	f.epochs.current = 4

	rec := f.do(t, http.MethodGet, "/v1/epochs/current", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["current"] != float64(4) {
		t.Fatalf("expected current 4, got %v", body["current"])
	}
}

func TestVaultAndEpochViews(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/vault", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "active" {
		t.Fatalf("expected active vault, got %v", body["status"])
	}

	rec = f.do(t, http.MethodGet, "/v1/epochs/42", "", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown epoch, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/v1/accounts/nobody", "", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown account, got %d", rec.Code)
	}
}
