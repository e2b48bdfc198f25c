package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/0xabdo/the-market/internal/config"
)

func TestNew_HealthRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := config.Config{
		Environment:    "test",
		HTTPPort:       "0",
		RateLimitStore: "memory",
	}

	srv, err := New(db, cfg)
	require.NoError(t, err)
	assert.NotNil(t, srv.Engine)
	assert.NotNil(t, srv.Groups)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestNew_InvalidRedisURL(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := config.Config{
		Environment:    "test",
		RateLimitStore: "redis",
		RedisURL:       "not-a-url",
	}

	_, err = New(db, cfg)
	assert.Error(t, err)
}
