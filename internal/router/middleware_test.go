package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func TestResolveAllowedOrigin(t *testing.T) {
	got := resolveAllowedOrigin("https://example.com", []string{"*"}, false)
	if got != "*" {
		t.Fatalf("wildcard without credentials should return *, got %s", got)
	}

	got = resolveAllowedOrigin("https://example.com", []string{"*"}, true)
	if got != "https://example.com" {
		t.Fatalf("wildcard with credentials should echo origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://a.example.com", []string{"https://a.example.com", "https://b.example.com"}, false)
	if got != "https://a.example.com" {
		t.Fatalf("allow-list should return matched origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://x.example.com", []string{"https://a.example.com"}, false)
	if got != "" {
		t.Fatalf("unmatched origin should be empty, got %s", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": getRequestID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("response request id want req-123 got %s", w.Header().Get(requestIDHeader))
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w2, req2)
	if strings.TrimSpace(w2.Header().Get(requestIDHeader)) == "" {
		t.Fatalf("generated request id should not be blank")
	}
}

func TestUserJWTAuthMiddlewareMissingSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(UserJWTAuthMiddleware("", nil))
	r.GET("/api/auth/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status want 401 got %d", w.Code)
	}
}

func TestPendingPasswordMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(pending bool) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			c.Set(mustSetPasswordContextKey, pending)
		})
		r.Use(PendingPasswordMiddleware())
		handler := func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		}
		r.GET("/api/user/dashboard", handler)
		r.GET("/api/auth/me", handler)
		r.POST("/api/auth/set-password", handler)
		r.POST("/api/auth/logout", handler)
		return r
	}

	// 待设密码状态下业务接口被拦截
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/user/dashboard", nil)
	newRouter(true).ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("pending user on business route want 403 got %d", w.Code)
	}
	var resp struct {
		StatusCode int `json:"status_code"`
		Data       struct {
			MustSetPassword bool `json:"must_set_password"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.StatusCode != 403 || !resp.Data.MustSetPassword {
		t.Fatalf("response should flag must_set_password, got %s", w.Body.String())
	}

	// 白名单路径放行
	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodPost, "/api/auth/set-password"},
		{http.MethodPost, "/api/auth/logout"},
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(route.method, route.path, nil)
		newRouter(true).ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s %s want 200 got %d", route.method, route.path, w.Code)
		}
	}

	// 已设密码用户不受影响
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/user/dashboard", nil)
	newRouter(false).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("full-session user want 200 got %d", w.Code)
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(setKey bool, isAdmin bool) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if setKey {
				c.Set(isAdminContextKey, isAdmin)
			}
		})
		r.Use(AdminAuthMiddleware())
		r.GET("/api/admin/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
		return r
	}

	cases := []struct {
		name   string
		setKey bool
		admin  bool
		want   int
	}{
		{name: "no context", setKey: false, want: http.StatusForbidden},
		{name: "non admin", setKey: true, admin: false, want: http.StatusForbidden},
		{name: "admin", setKey: true, admin: true, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
			newRouter(tc.setKey, tc.admin).ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status want %d got %d", tc.want, w.Code)
			}
		})
	}
}

func TestIsIssuedAfterInvalidBefore(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	if !isIssuedAfterInvalidBefore(jwt.NewNumericDate(now), nil) {
		t.Fatalf("nil invalid-before should pass")
	}
	if isIssuedAfterInvalidBefore(nil, &now) {
		t.Fatalf("missing issued-at should fail when invalid-before is set")
	}
	if isIssuedAfterInvalidBefore(jwt.NewNumericDate(earlier), &now) {
		t.Fatalf("token issued before invalid-before should fail")
	}
	if !isIssuedAfterInvalidBefore(jwt.NewNumericDate(now), &earlier) {
		t.Fatalf("token issued after invalid-before should pass")
	}

	if !isIssuedAfterInvalidBeforeUnix(jwt.NewNumericDate(now), 0) {
		t.Fatalf("zero invalid-before should pass")
	}
	if isIssuedAfterInvalidBeforeUnix(jwt.NewNumericDate(earlier), now.Unix()) {
		t.Fatalf("token issued before invalid-before unix should fail")
	}
	if !isIssuedAfterInvalidBeforeUnix(jwt.NewNumericDate(now), earlier.Unix()) {
		t.Fatalf("token issued after invalid-before unix should pass")
	}
}
