package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/logging"
)

func TestErrorsRenderAsJSON(t *testing.T) {
	srv, err := New(config.Config{AppEnv: "development", JWTSecret: "s"}, nil, nil, nil, logging.Discard())
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/v1/wallets/me", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "missing bearer token", body["error"])
}

func TestNewRejectsMissingInfrastructureInProduction(t *testing.T) {
	_, err := New(config.Config{AppEnv: "production"}, nil, nil, nil, logging.Discard())
	assert.Error(t, err)
}
