package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "training-platform"}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":        "user-1",
		"athlete_id": "athlete-1",
		"iss":        testConfig.Issuer,
		"exp":        time.Now().Add(time.Hour).Unix(),
		"scopes":     []string{ScopePlansRead, ScopeActivitiesWrite},
	}
}

func TestParseValidToken(t *testing.T) {
	claims, err := Parse(signToken(t, baseClaims()), testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "athlete-1", claims.AthleteID)
	require.True(t, claims.HasScope(ScopePlansRead))
	require.False(t, claims.HasScope(ScopeSyncRun))
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	mc := baseClaims()
	mc["iss"] = "someone-else"
	_, err := Parse(signToken(t, mc), testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsMissingAthleteID(t *testing.T) {
	mc := baseClaims()
	delete(mc, "athlete_id")
	_, err := Parse(signToken(t, mc), testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseNormalizesSpaceSeparatedScopes(t *testing.T) {
	mc := baseClaims()
	mc["scopes"] = "plans:read plans:write"
	claims, err := Parse(signToken(t, mc), testConfig)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopePlansWrite))
}

func TestMiddlewareAttachesClaims(t *testing.T) {
	var got *Claims
	handler := NewMiddleware(testConfig, nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/activities", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, baseClaims()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	require.Equal(t, "athlete-1", got.AthleteID)
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	handler := NewMiddleware(testConfig, nil).Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/activities", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareSkipperBypassesAuth(t *testing.T) {
	skipper := func(r *http.Request) bool { return r.URL.Path == "/healthz" }
	handler := NewMiddleware(testConfig, skipper).Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireScope(t *testing.T) {
	inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	handler := RequireScope(ScopeSyncRun, inner)

	claims := &Claims{Scopes: map[string]struct{}{ScopePlansRead: {}}}
	req := httptest.NewRequest(http.MethodPost, "/v1/sync", nil)
	req = req.WithContext(WithClaims(req.Context(), claims))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	claims.Scopes[ScopeSyncRun] = struct{}{}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
