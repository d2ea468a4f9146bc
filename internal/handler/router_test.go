package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/makkenzo/apikey-service-api/internal/auditlog"
	"github.com/makkenzo/apikey-service-api/internal/config"
	"github.com/makkenzo/apikey-service-api/internal/handler/dto"
	"github.com/makkenzo/apikey-service-api/internal/handler/middleware"
	"github.com/makkenzo/apikey-service-api/internal/keycodec"
	"github.com/makkenzo/apikey-service-api/internal/ratelimit"
	"github.com/makkenzo/apikey-service-api/internal/service"
	"github.com/makkenzo/apikey-service-api/internal/storage/memstorage"
	"github.com/makkenzo/apikey-service-api/internal/usage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router *gin.Engine
	mr     *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	store := memstorage.NewStore()
	codec := keycodec.New("test-secret", "sk_test_")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rlCfg := ratelimit.DefaultConfig()
	rlCfg.Timeout = 100 * time.Millisecond
	rate := ratelimit.NewLimiter(client, rlCfg, logger)
	uses := usage.NewLimiter(store.APIKeys(), logger)
	recorder := auditlog.NewRecorder(store.Audit(), time.Second, logger)
	limits := config.LimitsConfig{DefaultRateLimit: 1000, DefaultRateWindow: 3600}

	authSvc := service.NewAuthService(store.Users(), &config.SecurityConfig{JWTSecret: "jwt-secret", TokenTTL: time.Hour}, logger)
	apiSvc := service.NewAPIService(store.APIs(), logger)
	keySvc := service.NewAPIKeyService(store.APIKeys(), store.APIs(), codec, recorder, limits, logger)
	verifySvc := service.NewVerifyService(store.APIKeys(), codec, rate, uses, recorder, limits.DefaultRateWindow, logger)
	analyticsSvc := service.NewAnalyticsService(store.APIKeys(), store.APIs(), store.Audit(), rate, limits.DefaultRateWindow, logger)

	router := NewRouter(Handlers{
		Health:           NewHealthHandler(nil, client, logger),
		Auth:             NewAuthHandler(authSvc, logger),
		APIs:             NewAPIHandler(apiSvc, logger),
		Keys:             NewAPIKeyHandler(keySvc, logger),
		Verify:           NewVerifyHandler(verifySvc, logger),
		Analytics:        NewAnalyticsHandler(analyticsSvc, logger),
		AuthMiddleware:   middleware.AuthMiddleware(authSvc, logger),
		APIKeyMiddleware: middleware.APIKeyAuthMiddleware(verifySvc, logger),
	}, nil, logger)

	return &testServer{router: router, mr: mr}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// login registers a fresh account and returns its bearer token.
func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/register", "", dto.RegisterRequest{Email: email, Password: "correct-horse"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/auth/login", "", dto.LoginRequest{Email: email, Password: "correct-horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tok := decode[dto.TokenResponse](t, w)
	assert.Equal(t, "bearer", tok.TokenType)
	return tok.AccessToken
}

func (s *testServer) createAPI(t *testing.T, token, name string) dto.APIResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/apis", token, dto.CreateAPIRequest{Name: name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.APIResponse](t, w)
}

func (s *testServer) createKey(t *testing.T, token string, req map[string]interface{}) dto.CreateAPIKeyResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/keys", token, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.CreateAPIKeyResponse](t, w)
}

func TestAuth_RegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "ops@example.com")

	w := s.do(t, http.MethodPost, "/auth/register", "", dto.RegisterRequest{Email: "OPS@example.com", Password: "another-pass"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/auth/login", "", dto.LoginRequest{Email: "ops@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "not-an-email", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	errResp := decode[dto.APIErrorResponse](t, w)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
	assert.NotNil(t, errResp.Details)
}

func TestProtectedRoutes_RequireBearerToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/apis", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/v1/apis", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", decode[dto.APIErrorResponse](t, w).Code)
}

func TestAPIs_OwnershipIsolation(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice@example.com")
	bob := s.login(t, "bob@example.com")

	created := s.createAPI(t, alice, "payments")

	w := s.do(t, http.MethodGet, "/v1/apis/"+created.ID.String(), alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/v1/apis/"+created.ID.String(), bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/apis", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]dto.APIResponse](t, w))

	w = s.do(t, http.MethodGet, "/v1/apis/not-a-uuid", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/v1/apis/"+created.ID.String(), alice, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/v1/apis/"+created.ID.String(), alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKeys_LifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "keys@example.com")
	a := s.createAPI(t, token, "search")

	created := s.createKey(t, token, map[string]interface{}{
		"api_id":         a.ID,
		"name":           "ci",
		"remaining_uses": 2,
		"metadata":       map[string]string{"plan": "pro"},
	})
	assert.NotEmpty(t, created.Key)
	assert.True(t, strings.HasPrefix(created.Key, strings.TrimSuffix(created.KeyPrefix, "...")))

	w := s.do(t, http.MethodGet, "/v1/keys/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), created.Key)
	got := decode[dto.APIKeyResponse](t, w)
	assert.Equal(t, 1000, *got.RateLimitMax)
	assert.Equal(t, 2, *got.MaxUses)

	for i, want := range []bool{true, true, false} {
		w = s.do(t, http.MethodPost, "/v1/keys/verify", "", dto.VerifyAPIKeyRequest{Key: created.Key})
		require.Equal(t, http.StatusOK, w.Code)
		res := decode[dto.VerifyAPIKeyResponse](t, w)
		assert.Equal(t, want, res.Valid, "attempt %d", i)
		if !want {
			assert.Equal(t, service.ReasonUsageExceeded, res.Error)
		}
	}

	w = s.do(t, http.MethodPatch, "/v1/keys/"+created.ID.String(), token, map[string]interface{}{"remaining_uses": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 5, *decode[dto.APIKeyResponse](t, w).RemainingUses)

	w = s.do(t, http.MethodPost, "/v1/keys/"+created.ID.String()+"/rotate", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rotated := decode[dto.CreateAPIKeyResponse](t, w)
	assert.NotEqual(t, created.ID, rotated.ID)

	w = s.do(t, http.MethodPost, "/v1/keys/verify", "", dto.VerifyAPIKeyRequest{Key: created.Key})
	assert.Equal(t, service.ReasonKeyRevoked, decode[dto.VerifyAPIKeyResponse](t, w).Error)

	w = s.do(t, http.MethodPost, "/v1/keys/verify", "", dto.VerifyAPIKeyRequest{Key: rotated.Key})
	assert.True(t, decode[dto.VerifyAPIKeyResponse](t, w).Valid)

	w = s.do(t, http.MethodPost, "/v1/keys/"+created.ID.String()+"/rotate", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/v1/keys?api_id="+a.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]dto.APIKeyResponse](t, w), 2)
}

func TestKeys_RevokeHonoursDeleteProtection(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "revoke@example.com")
	a := s.createAPI(t, token, "billing")
	created := s.createKey(t, token, map[string]interface{}{"api_id": a.ID, "delete_protection": true})

	w := s.do(t, http.MethodDelete, "/v1/keys/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "DELETE_PROTECTED", decode[dto.APIErrorResponse](t, w).Code)

	w = s.do(t, http.MethodDelete, "/v1/keys/"+created.ID.String()+"?force=true", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/v1/keys/"+created.ID.String()+"/audit?action=revoke", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, w), 1)

	w = s.do(t, http.MethodGet, "/v1/keys/"+created.ID.String()+"/audit?action=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerify_UnknownKeyAndBadBody(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/keys/verify", "", dto.VerifyAPIKeyRequest{Key: "sk_test_nope"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[dto.VerifyAPIKeyResponse](t, w)
	assert.False(t, res.Valid)
	assert.Equal(t, service.ReasonKeyNotFound, res.Error)
	assert.Nil(t, res.KeyID)

	w = s.do(t, http.MethodPost, "/v1/keys/verify", "", map[string]string{})
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[dto.VerifyAPIKeyResponse](t, w)
	assert.False(t, res.Valid)
	assert.Equal(t, service.ReasonKeyNotFound, res.Error)

	w = s.do(t, http.MethodPost, "/v1/keys/verify", "", []string{"not", "an", "object"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWhoAmI_APIKeyMiddleware(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "whoami@example.com")
	a := s.createAPI(t, token, "edge")

	limited := s.createKey(t, token, map[string]interface{}{"api_id": a.ID, "rate_limit_max": 1, "rate_limit_window": 60})
	blocked := s.createKey(t, token, map[string]interface{}{"api_id": a.ID, "allowed_ips": []string{"203.0.113.0/24"}})

	w := s.do(t, http.MethodGet, "/v1/whoami", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/v1/whoami", "", nil, "X-API-Key", "sk_test_unknown")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/v1/whoami", "", nil, "X-API-Key", limited.Key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[dto.VerifyAPIKeyResponse](t, w)
	assert.Equal(t, limited.ID, *res.KeyID)
	assert.Equal(t, "0", w.Header().Get(middleware.HeaderRateLimitRemaining))

	w = s.do(t, http.MethodGet, "/v1/whoami", "", nil, "X-API-Key", limited.Key)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode[dto.APIErrorResponse](t, w).Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRateLimitReset))

	w = s.do(t, http.MethodGet, "/v1/whoami", "", nil, "X-API-Key", blocked.Key)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWhoAmI_RemainingHeaderUsesTighterLimit(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "limits@example.com")
	a := s.createAPI(t, token, "quota")

	key := s.createKey(t, token, map[string]interface{}{
		"api_id":            a.ID,
		"rate_limit_max":    1,
		"rate_limit_window": 60,
		"remaining_uses":    100,
	})

	w := s.do(t, http.MethodGet, "/v1/whoami", "", nil, "X-API-Key", key.Key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "0", w.Header().Get(middleware.HeaderRateLimitRemaining))
	assert.Equal(t, 0, *decode[dto.VerifyAPIKeyResponse](t, w).Remaining)

	w = s.do(t, http.MethodGet, "/v1/whoami", "", nil, "X-API-Key", key.Key)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAnalytics_UsageAndAPIStats(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "stats@example.com")
	a := s.createAPI(t, token, "maps")
	created := s.createKey(t, token, map[string]interface{}{"api_id": a.ID, "rate_limit_max": 10})

	for i := 0; i < 3; i++ {
		s.do(t, http.MethodPost, "/v1/keys/verify", "", dto.VerifyAPIKeyRequest{Key: created.Key})
	}

	w := s.do(t, http.MethodGet, "/v1/keys/"+created.ID.String()+"/usage?days=1", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stats := decode[dto.UsageStatsResponse](t, w)
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(3), stats.SuccessfulRequests)
	require.NotNil(t, stats.CurrentWindowUsage)
	assert.Equal(t, int64(3), *stats.CurrentWindowUsage)

	w = s.do(t, http.MethodGet, "/v1/keys/"+created.ID.String()+"/usage?days=365", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/v1/apis/"+a.ID.String()+"/analytics", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	apiStats := decode[dto.APIAnalyticsResponse](t, w)
	assert.Equal(t, int64(1), apiStats.TotalKeys)
	assert.Equal(t, int64(3), apiStats.TotalVerifications)
}

func TestHealth_MemoryMode(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","dependencies":{"database":"disabled","redis":"ok"}}`, w.Body.String())

	s.mr.Close()
	w = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
