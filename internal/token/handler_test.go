package token_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/custodia-fin/custodia/internal/identity"
	"github.com/custodia-fin/custodia/internal/shared"
	"github.com/custodia-fin/custodia/internal/token"
)

func newTestRouter(t *testing.T) (*token.Service, http.Handler) {
	t.Helper()
	svc, err := token.NewService(token.Config{Deployer: deployer})
	require.NoError(t, err)
	svc.WithNow(func() time.Time { return baseTime })

	handler := token.NewHandler(nil, svc, nil)
	r := chi.NewRouter()
	r.Route("/v1", handler.MountRoutes)
	return svc, r
}

func doJSON(t *testing.T, router http.Handler, actor identity.Identity, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if !actor.IsZero() {
		req = req.WithContext(shared.ContextWithActor(context.Background(), actor))
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestIssueTransferOverHTTP(t *testing.T) {
	_, router := newTestRouter(t)

	// Grant X receive+send, Y receive.
	res := doJSON(t, router, deployer, http.MethodPost, "/v1/permissions", map[string]any{
		"investor":        investorX.String(),
		"send_allowed":    true,
		"receive_allowed": true,
		"expiry_time":     baseTime.Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = doJSON(t, router, deployer, http.MethodPost, "/v1/permissions", map[string]any{
		"investor":        investorY.String(),
		"receive_allowed": true,
		"expiry_time":     baseTime.Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = doJSON(t, router, deployer, http.MethodPost, "/v1/issue", map[string]any{
		"to":     investorX.String(),
		"amount": 300,
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = doJSON(t, router, investorX, http.MethodPost, "/v1/transfer", map[string]any{
		"to":     investorY.String(),
		"amount": 10,
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = doJSON(t, router, identity.Zero, http.MethodGet, "/v1/balances/"+investorX.String(), nil)
	require.Equal(t, http.StatusOK, res.Code)
	var balance struct {
		Balance uint64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &balance))
	require.Equal(t, uint64(290), balance.Balance)

	res = doJSON(t, router, identity.Zero, http.MethodGet, "/v1/supply", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var supply struct {
		TotalSupply uint64 `json:"total_supply"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &supply))
	require.Equal(t, uint64(300), supply.TotalSupply)
}

func TestErrorMapping(t *testing.T) {
	svc, router := newTestRouter(t)
	ctx := context.Background()

	// Missing actor.
	res := doJSON(t, router, identity.Zero, http.MethodPost, "/v1/issue", map[string]any{
		"to": investorX.String(), "amount": 1,
	})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	// Policy denied: no permission record.
	res = doJSON(t, router, deployer, http.MethodPost, "/v1/issue", map[string]any{
		"to": investorX.String(), "amount": 1,
	})
	require.Equal(t, http.StatusForbidden, res.Code)

	// Unauthorized: outsider is not an issuer.
	res = doJSON(t, router, outsider, http.MethodPost, "/v1/issue", map[string]any{
		"to": investorX.String(), "amount": 1,
	})
	require.Equal(t, http.StatusForbidden, res.Code)

	// Bad identity.
	res = doJSON(t, router, deployer, http.MethodPost, "/v1/issue", map[string]any{
		"to": "not-an-address", "amount": 1,
	})
	require.Equal(t, http.StatusBadRequest, res.Code)

	// Validation: zero amount.
	res = doJSON(t, router, deployer, http.MethodPost, "/v1/issue", map[string]any{
		"to": investorX.String(), "amount": 0,
	})
	require.Equal(t, http.StatusBadRequest, res.Code)

	// Expired permission record.
	res = doJSON(t, router, deployer, http.MethodPost, "/v1/permissions", map[string]any{
		"investor":    investorX.String(),
		"expiry_time": baseTime,
	})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)

	// Lifecycle conflict: double pause.
	require.NoError(t, svc.Pause(ctx, deployer))
	res = doJSON(t, router, deployer, http.MethodPost, "/v1/lifecycle/pause", nil)
	require.Equal(t, http.StatusConflict, res.Code)

	// Paused gate surfaces as a conflict too.
	res = doJSON(t, router, investorX, http.MethodPost, "/v1/transfer", map[string]any{
		"to": investorY.String(), "amount": 1,
	})
	require.Equal(t, http.StatusConflict, res.Code)
}

func TestRoleRoutes(t *testing.T) {
	svc, router := newTestRouter(t)

	res := doJSON(t, router, deployer, http.MethodPost, "/v1/roles/regulator/members", map[string]any{
		"member": investorX.String(),
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.True(t, svc.IsRole("regulator", investorX))

	res = doJSON(t, router, identity.Zero, http.MethodGet, "/v1/roles/regulator/members/"+investorX.String(), nil)
	require.Equal(t, http.StatusOK, res.Code)
	var membership struct {
		Member bool `json:"member"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &membership))
	require.True(t, membership.Member)

	res = doJSON(t, router, deployer, http.MethodPost, "/v1/roles/admin/members", map[string]any{
		"member": investorX.String(),
	})
	require.Equal(t, http.StatusBadRequest, res.Code, "unknown role kind")

	res = doJSON(t, router, investorX, http.MethodPost, "/v1/roles/regulator/renounce", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.False(t, svc.IsRole("regulator", investorX))

	res = doJSON(t, router, investorX, http.MethodPost, "/v1/roles/regulator/renounce", nil)
	require.Equal(t, http.StatusConflict, res.Code, "renouncing twice is a membership conflict")
}

func TestOwnershipRoutes(t *testing.T) {
	svc, router := newTestRouter(t)

	res := doJSON(t, router, deployer, http.MethodPost, "/v1/ownership/transfer", map[string]any{
		"new_owner": investorX.String(),
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, investorX, svc.Ownership().Owner())

	res = doJSON(t, router, deployer, http.MethodPost, "/v1/ownership/renounce", nil)
	require.Equal(t, http.StatusForbidden, res.Code, "previous owner lost authority")

	res = doJSON(t, router, investorX, http.MethodPost, "/v1/ownership/renounce", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.True(t, svc.Ownership().Owner().IsZero())
}
