package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarverse/numrent/internal/models"
)

func newAuthRouter(am *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.GET("/private", am.Authenticate(), func(c *gin.Context) {
		principal, _ := GetPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"username": principal.Username, "role": principal.Role})
	})
	router.GET("/admin", am.Authenticate(), am.RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	return router
}

func TestAuthenticate(t *testing.T) {
	am := NewAuthMiddleware("test-secret", time.Hour)
	router := newAuthRouter(am)

	t.Run("valid bearer token", func(t *testing.T) {
		token, err := am.GenerateToken("user-1", "alice", models.RoleUser)
		require.NoError(t, err)

		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "alice")
	})

	t.Run("token via query parameter", func(t *testing.T) {
		token, err := am.GenerateToken("user-1", "alice", models.RoleUser)
		require.NoError(t, err)

		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/private?token="+token, nil)
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other := NewAuthMiddleware("other-secret", time.Hour)
		token, err := other.GenerateToken("user-1", "alice", models.RoleUser)
		require.NoError(t, err)

		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := NewAuthMiddleware("test-secret", -time.Minute)
		token, err := expired.GenerateToken("user-1", "alice", models.RoleUser)
		require.NoError(t, err)

		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestGenerateTokenClaims(t *testing.T) {
	am := NewAuthMiddleware("test-secret", time.Hour)

	token, err := am.GenerateToken("user-1", "alice", models.RoleUser)
	require.NoError(t, err)

	claims, err := am.validateToken(token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims["user_id"])
	assert.Equal(t, "alice", claims["username"])
	assert.Equal(t, models.RoleUser, claims["role"])

	exp, ok := claims["exp"].(float64)
	require.True(t, ok)
	iat, ok := claims["iat"].(float64)
	require.True(t, ok)
	assert.InDelta(t, time.Hour.Seconds(), exp-iat, 1)
}

func TestRequireRole(t *testing.T) {
	am := NewAuthMiddleware("test-secret", time.Hour)
	router := newAuthRouter(am)

	t.Run("admin allowed", func(t *testing.T) {
		token, err := am.GenerateToken("user-1", "root", models.RoleAdmin)
		require.NoError(t, err)

		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("regular user rejected", func(t *testing.T) {
		token, err := am.GenerateToken("user-1", "alice", models.RoleUser)
		require.NoError(t, err)

		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})
}
