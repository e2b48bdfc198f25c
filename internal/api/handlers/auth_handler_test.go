package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xabdo/the-market/internal/config"
	"github.com/0xabdo/the-market/internal/services"
)

func newLoginRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth, err := services.NewAuthService(config.Config{
		AdminUser:   "admin",
		AdminPass:   "correct horse",
		JWTSecret:   "unit-test-secret",
		TokenExpiry: time.Hour,
	})
	require.NoError(t, err)

	r := gin.New()
	r.POST("/auth/login", NewAuthHandler(auth).Login)
	return r
}

func postLogin(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogin_Success(t *testing.T) {
	r := newLoginRouter(t)

	w := postLogin(r, `{"username":"admin","password":"correct horse"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "token")
}

func TestLogin_WrongPassword(t *testing.T) {
	r := newLoginRouter(t)

	w := postLogin(r, `{"username":"admin","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid credentials")
}

func TestLogin_MissingFields(t *testing.T) {
	r := newLoginRouter(t)

	w := postLogin(r, `{"username":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
