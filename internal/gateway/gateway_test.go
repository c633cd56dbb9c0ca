package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/energychain/internal/auth"
	"github.com/terminal-bench/energychain/internal/chain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAccounts maps bearer tokens straight to caller identities.
type stubAccounts struct {
	tokens map[string]string
}

func (s stubAccounts) Register(_ context.Context, address, _ string) (*auth.Account, error) {
	return &auth.Account{Address: address}, nil
}

func (s stubAccounts) Login(_ context.Context, address, _ string) (string, error) {
	return "token-" + address, nil
}

func (s stubAccounts) VerifyToken(token string) (*auth.Claims, error) {
	address, ok := s.tokens[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &auth.Claims{Address: address}, nil
}

func newTestGateway() *Gateway {
	ledger := chain.New(chain.Config{})
	accounts := stubAccounts{tokens: map[string]string{
		"alice-token": "alice",
		"bob-token":   "bob",
	}}
	return New(Config{}, ledger, accounts, nil, logrus.New())
}

func doJSON(t *testing.T, g *Gateway, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	g.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	g := newTestGateway()

	w := doJSON(t, g, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	g := newTestGateway()

	t.Run("should reject missing token", func(t *testing.T) {
		w := doJSON(t, g, http.MethodPost, "/api/v1/powerplants", "", map[string]string{
			"name": "North Plant", "area": "north",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("should reject unknown token", func(t *testing.T) {
		w := doJSON(t, g, http.MethodPost, "/api/v1/powerplants", "bogus", map[string]string{
			"name": "North Plant", "area": "north",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPowerPlantEndpoints(t *testing.T) {
	t.Run("should create and fetch a plant", func(t *testing.T) {
		g := newTestGateway()

		w := doJSON(t, g, http.MethodPost, "/api/v1/powerplants", "alice-token", map[string]string{
			"name": "North Plant", "area": "north", "initial_energy": "1000",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		w = doJSON(t, g, http.MethodGet, "/api/v1/powerplants/1", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var plant struct {
			ID    uint64 `json:"ID"`
			Name  string `json:"Name"`
			Owner string `json:"Owner"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plant))
		assert.Equal(t, uint64(1), plant.ID)
		assert.Equal(t, "North Plant", plant.Name)
		assert.Equal(t, "alice", plant.Owner)
	})

	t.Run("should reject a duplicate plant with 409", func(t *testing.T) {
		g := newTestGateway()
		w := doJSON(t, g, http.MethodPost, "/api/v1/powerplants", "alice-token", map[string]string{
			"name": "North Plant", "area": "north",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		w = doJSON(t, g, http.MethodPost, "/api/v1/powerplants", "alice-token", map[string]string{
			"name": "Second Plant", "area": "south",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("should return 404 for an unknown plant", func(t *testing.T) {
		g := newTestGateway()

		w := doJSON(t, g, http.MethodGet, "/api/v1/powerplants/9", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("should reject a malformed quantity with 400", func(t *testing.T) {
		g := newTestGateway()
		doJSON(t, g, http.MethodPost, "/api/v1/powerplants", "alice-token", map[string]string{
			"name": "North Plant", "area": "north",
		})

		w := doJSON(t, g, http.MethodPost, "/api/v1/powerplants/energy", "alice-token", map[string]string{
			"amount": "lots",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPurchaseFlow(t *testing.T) {
	t.Run("should buy energy through the gateway", func(t *testing.T) {
		g := newTestGateway()

		w := doJSON(t, g, http.MethodPost, "/api/v1/powerplants", "alice-token", map[string]string{
			"name": "North Plant", "area": "north", "initial_energy": "1000",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		w = doJSON(t, g, http.MethodPost, "/api/v1/substations", "bob-token", map[string]string{
			"name": "Mid Station", "area": "central",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		w = doJSON(t, g, http.MethodPost, "/api/v1/substations/connect", "bob-token", map[string]uint64{
			"target_id": 1,
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, g, http.MethodPost, "/api/v1/substations/purchase", "bob-token", map[string]string{
			"amount": "100",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var sub struct {
			TotalReceived string `json:"TotalReceived"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
		assert.Equal(t, "100", sub.TotalReceived)
	})

	t.Run("should map an oversell to 409", func(t *testing.T) {
		g := newTestGateway()
		doJSON(t, g, http.MethodPost, "/api/v1/powerplants", "alice-token", map[string]string{
			"name": "North Plant", "area": "north", "initial_energy": "10",
		})
		doJSON(t, g, http.MethodPost, "/api/v1/substations", "bob-token", map[string]string{
			"name": "Mid Station", "area": "central",
		})
		doJSON(t, g, http.MethodPost, "/api/v1/substations/connect", "bob-token", map[string]uint64{
			"target_id": 1,
		})

		w := doJSON(t, g, http.MethodPost, "/api/v1/substations/purchase", "bob-token", map[string]string{
			"amount": "11",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestMeteringTick(t *testing.T) {
	t.Run("should be permissionless", func(t *testing.T) {
		g := newTestGateway()

		w := doJSON(t, g, http.MethodPost, "/api/v1/metering/tick", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
