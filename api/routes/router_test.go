package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dukamoja/pos-backend/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: config.AppEnvDev, Port: "8080"},
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "dukapos-test", ExpirationMinutes: 30},
	}
}

func TestRouterHealthLive(t *testing.T) {
	router := NewRouter(Deps{Config: testConfig()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.AppEnvDev, rec.Header().Get("X-DukaPOS-Env"))
}

func TestRouterWebhooksRequireNoAuth(t *testing.T) {
	router := NewRouter(Deps{Config: testConfig()})

	body := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1032}}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/daraja/stk-callback", strings.NewReader(body)))

	// The gateway is always acked, even with no processor wired.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, rec.Body.String())
}

func TestRouterPaymentsRequireAuth(t *testing.T) {
	router := NewRouter(Deps{Config: testConfig()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments/push", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter(Deps{Config: testConfig()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
