package middleware

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"wequack/internal/config"
	"wequack/internal/repository"
	"wequack/internal/service"
	apperrors "wequack/pkg/errors"
	"wequack/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type counterRepository struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (r *counterRepository) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	if r.counts == nil {
		r.counts = make(map[string]int64)
	}
	r.counts[key]++
	return r.counts[key], nil
}

func perform(router *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	ctx := context.Background()
	users, _, _ := repository.NewMemoryRepositories()
	auth := service.NewAuthService(users, config.JWTConfig{AccessSecret: "secret", AccessTTL: time.Hour, Issuer: "wequack"}, logger.NewNop())
	_, err := auth.Register(ctx, service.RegisterInput{Username: "alice", Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	login, err := auth.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", NewAuthMiddleware(auth, logger.NewNop()).RequireAuth(), func(c *gin.Context) {
		id, ok := UserID(c)
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"ok": ok, "id": id, "username": user.Username})
	})

	t.Run("should reject missing and malformed headers", func(t *testing.T) {
		req := require.New(t)
		req.Equal(http.StatusUnauthorized, perform(router, http.MethodGet, "/me", nil).Code)
		req.Equal(http.StatusUnauthorized, perform(router, http.MethodGet, "/me", http.Header{"Authorization": {"Token abc"}}).Code)
		req.Equal(http.StatusUnauthorized, perform(router, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer garbage"}}).Code)
	})

	t.Run("should expose the user to handlers", func(t *testing.T) {
		req := require.New(t)
		w := perform(router, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer " + login.AccessToken}})
		req.Equal(http.StatusOK, w.Code)
		req.Contains(w.Body.String(), `"username":"alice"`)
		req.Contains(w.Body.String(), login.User.ID.String())
	})
}

func TestSocketToken(t *testing.T) {
	req := require.New(t)
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		c.String(http.StatusOK, SocketToken(c))
	})

	w := perform(router, http.MethodGet, "/ws?token=from-query", http.Header{"Authorization": {"Bearer from-header"}})
	req.Equal("from-header", w.Body.String())

	w = perform(router, http.MethodGet, "/ws?token=from-query", nil)
	req.Equal("from-query", w.Body.String())
}

func TestRateLimit(t *testing.T) {
	newRouter := func(repo *counterRepository) *gin.Engine {
		svc := service.NewRateLimitService(repo, config.RateLimitConfig{PerWindow: 2, Window: time.Minute}, logger.NewNop())
		router := gin.New()
		router.Use(NewRateLimitMiddleware(svc, logger.NewNop()).Limit())
		router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
		return router
	}

	t.Run("should reject requests over the limit", func(t *testing.T) {
		req := require.New(t)
		router := newRouter(&counterRepository{})

		w := perform(router, http.MethodGet, "/ping", nil)
		req.Equal(http.StatusOK, w.Code)
		req.Equal("2", w.Header().Get("X-RateLimit-Limit"))
		req.Equal("1", w.Header().Get("X-RateLimit-Remaining"))

		req.Equal(http.StatusOK, perform(router, http.MethodGet, "/ping", nil).Code)

		w = perform(router, http.MethodGet, "/ping", nil)
		req.Equal(http.StatusTooManyRequests, w.Code)
		req.Equal("0", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("should let requests through when the counter fails", func(t *testing.T) {
		router := newRouter(&counterRepository{err: fmt.Errorf("redis down")})
		require.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/ping", nil).Code)
	})
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://app.example.com"}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("should allow configured origins", func(t *testing.T) {
		req := require.New(t)
		w := perform(router, http.MethodGet, "/ping", http.Header{"Origin": {"https://app.example.com"}})
		req.Equal(http.StatusOK, w.Code)
		req.Equal("https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("should not echo unknown origins", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/ping", http.Header{"Origin": {"https://evil.example.com"}})
		require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("should answer preflight requests", func(t *testing.T) {
		w := perform(router, http.MethodOptions, "/ping", http.Header{"Origin": {"https://app.example.com"}})
		require.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("should treat a star as any origin", func(t *testing.T) {
		req := require.New(t)
		req.True(OriginAllowed([]string{"*"}, "https://anything.example.com"))
		req.False(OriginAllowed(nil, "https://anything.example.com"))
	})
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	t.Run("should keep a client supplied id", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/ping", http.Header{HeaderRequestID: {"abc"}})
		require.Equal(t, "abc", w.Header().Get(HeaderRequestID))
		require.Equal(t, "abc", w.Body.String())
	})

	t.Run("should read the header case-insensitively", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/ping", http.Header{"x-request-id": {"lower"}})
		require.Equal(t, "lower", w.Body.String())
	})

	t.Run("should replace oversized ids", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/ping", http.Header{HeaderRequestID: {strings.Repeat("a", 65)}})
		require.Len(t, w.Body.String(), 26)
	})

	t.Run("should assign an id when missing", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/ping", nil)
		require.Len(t, w.Header().Get(HeaderRequestID), 26)
	})
}

func TestErrorHandler(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("%w: group 1", apperrors.ErrGroupNotFound))
	})
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(stderrors.New("connection reset"))
	})

	t.Run("should map domain errors to statuses", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/missing", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		require.Contains(t, w.Body.String(), "group 1")
	})

	t.Run("should hide internal errors", func(t *testing.T) {
		req := require.New(t)
		w := perform(router, http.MethodGet, "/boom", nil)
		req.Equal(http.StatusInternalServerError, w.Code)
		req.NotContains(w.Body.String(), "connection reset")
	})
}
