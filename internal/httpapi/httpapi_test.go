package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"collabvm-server/internal/accountdb"
	"collabvm-server/internal/guard"
	"collabvm-server/internal/session"
	"collabvm-server/internal/vmregistry"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&accountdb.Account{}, &accountdb.Invite{}, &accountdb.ReservedUsername{}, &accountdb.IPBan{},
		&accountdb.VMConfig{}, &accountdb.ServerSetting{}, &accountdb.RecordingFile{},
	))
	db := &accountdb.DB{DB: gdb}

	reg := guard.New(vmregistry.New())
	tokens := session.NewTokenManager("test-secret")

	return NewWithConfig(reg, db, tokens, ServerConfig{Addr: ":0", Debug: true})
}

func TestServer_Health(t *testing.T) {
	t.Run("should report ok with an uptime string", func(t *testing.T) {
		s := setupTestServer(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		s.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"ok"`)
	})
}

func TestServer_Metrics(t *testing.T) {
	t.Run("should expose the prometheus exposition format", func(t *testing.T) {
		s := setupTestServer(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		s.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestServer_AdminRoutesRequireBearerToken(t *testing.T) {
	t.Run("should reject a missing Authorization header", func(t *testing.T) {
		s := setupTestServer(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/vms/1/thumbnail", nil)
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("should reject a non-admin token", func(t *testing.T) {
		s := setupTestServer(t)
		token, err := s.tokens.GenerateToken(1, "alice", false)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/recordings", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("should accept an admin token", func(t *testing.T) {
		s := setupTestServer(t)
		token, err := s.tokens.GenerateToken(1, "root", true)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/recordings", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestServer_VMThumbnail(t *testing.T) {
	t.Run("should 404 when the vm has no thumbnail", func(t *testing.T) {
		s := setupTestServer(t)
		token, err := s.tokens.GenerateToken(1, "root", true)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/vms/99/thumbnail", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("should reject a non-numeric vm id", func(t *testing.T) {
		s := setupTestServer(t)
		token, err := s.tokens.GenerateToken(1, "root", true)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/vms/abc/thumbnail", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
