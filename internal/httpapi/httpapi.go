// Package httpapi provides the operational HTTP surface for the CollabVM
// server: health checks, Prometheus metrics, VM thumbnail fetch, and
// recording file listing. It follows a route-group-per-resource layout
// retargeted to a curl-friendly admin surface, and its auth middleware is
// a bearer-token gate around session.TokenManager.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collabvm-server/internal/accountdb"
	"collabvm-server/internal/guard"
	"collabvm-server/internal/session"
	"collabvm-server/internal/vmregistry"
)

// ErrorResponse is the uniform JSON error shape: {"error": "..."}.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServerConfig configures the operational HTTP server.
type ServerConfig struct {
	Addr  string
	Debug bool
}

// Server exposes /health, /metrics, and the admin JSON API over gin.
type Server struct {
	router *gin.Engine
	server *http.Server
	config ServerConfig

	vmRegistry *guard.Guard[*vmregistry.Registry]
	db         *accountdb.DB
	tokens     *session.TokenManager
	startedAt  time.Time
}

// New creates a Server with default configuration.
func New(vmRegistry *guard.Guard[*vmregistry.Registry], db *accountdb.DB, tokens *session.TokenManager) *Server {
	return NewWithConfig(vmRegistry, db, tokens, ServerConfig{Addr: ":9199"})
}

// NewWithConfig creates a Server with custom configuration.
func NewWithConfig(vmRegistry *guard.Guard[*vmregistry.Registry], db *accountdb.DB, tokens *session.TokenManager, config ServerConfig) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:     gin.New(),
		config:     config,
		vmRegistry: vmRegistry,
		db:         db,
		tokens:     tokens,
		startedAt:  time.Now(),
	}
	s.setupRoutes()
	s.server = &http.Server{Addr: config.Addr, Handler: s.router}
	return s
}

// Start begins listening. Non-blocking is left to the caller (typically run
// in its own goroutine from internal/facade).
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop gracefully shuts the HTTP server down, waiting up to 5 seconds for
// in-flight requests to finish.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())

	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := s.router.Group("/api")
	admin.Use(s.requireAdmin())
	{
		admin.GET("/vms/:id/thumbnail", s.vmThumbnail)
		admin.GET("/recordings", s.listRecordings)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

// requireAdmin gates the admin JSON API on a valid, admin-flagged session
// token, re-checked against Claims.IsAdmin since this surface is
// operator-only.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authorization header must be a bearer token"})
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := s.tokens.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or expired token"})
			c.Abort()
			return
		}
		if !claims.IsAdmin {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "admin privileges required"})
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

// vmThumbnail returns the most recent PNG snapshot for one VM.
func (s *Server) vmThumbnail(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid vm id"})
		return
	}

	var png []byte
	var found bool
	s.vmRegistry.DispatchSync(func(r *vmregistry.Registry) {
		vm, ok := r.GetVM(uint32(id))
		if !ok || vm.Compositor == nil {
			return
		}
		png = vm.Compositor.Snapshot()
		found = png != nil
	})

	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no thumbnail available"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// recordingListItem is one row of the /api/recordings response.
type recordingListItem struct {
	VMID    uint32 `json:"vm_id"`
	Path    string `json:"path"`
	StartMS int64  `json:"start_ms"`
	StopMS  int64  `json:"stop_ms"`
}

// listRecordings lists recording files covering the requested VM and
// interval, honoring optional vm_id/start_ms/stop_ms query parameters.
func (s *Server) listRecordings(c *gin.Context) {
	vmID, _ := strconv.ParseUint(c.DefaultQuery("vm_id", "0"), 10, 32)
	startMS, _ := strconv.ParseInt(c.DefaultQuery("start_ms", "0"), 10, 64)
	stopMS, err := strconv.ParseInt(c.DefaultQuery("stop_ms", ""), 10, 64)
	if err != nil {
		stopMS = time.Now().UnixMilli()
	}

	files, err := s.db.FilesCovering(uint32(vmID), startMS, stopMS)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list recordings"})
		return
	}

	items := make([]recordingListItem, 0, len(files))
	for _, f := range files {
		items = append(items, recordingListItem{
			VMID:    f.Header.VMID,
			Path:    f.Path,
			StartMS: f.Header.StartMS,
			StopMS:  f.Header.StopMS,
		})
	}
	c.JSON(http.StatusOK, gin.H{"recordings": items})
}
