package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Wollie333/vilo-sub003/internal/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newAuthTestRouter(t *testing.T, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &Server{
		log: zap.NewNop(),
		cfg: config.Config{AdminToken: token},
	}
	r := gin.New()
	r.GET("/admin/ping", s.AdminRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"admin_id": s.adminIDFromContext(c)})
	})
	return r
}

func TestAdminRequiredRejectsBadCredentials(t *testing.T) {
	r := newAuthTestRouter(t, "sekrit")

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic sekrit"},
		{"wrong token", "Bearer nope"},
		{"bare token", "sekrit"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tc.name, w.Code)
		}
	}
}

func TestAdminRequiredAcceptsTokenAndStampsIdentity(t *testing.T) {
	r := newAuthTestRouter(t, "sekrit")

	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	req.Header.Set("X-Admin-ID", "ops-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := w.Body.String(); body != `{"admin_id":"ops-7"}` {
		t.Fatalf("unexpected body %s", body)
	}

	// Missing X-Admin-ID falls back to the generic identity.
	req = httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if body := w.Body.String(); body != `{"admin_id":"admin"}` {
		t.Fatalf("unexpected fallback body %s", body)
	}
}

func TestRateLimiterEnforcesWindow(t *testing.T) {
	rl := newRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !rl.Allow("ops:daily") {
			t.Fatalf("call %d should pass", i)
		}
	}
	if rl.Allow("ops:daily") {
		t.Fatalf("expected 4th call to be limited")
	}
	// Other keys are counted independently.
	if !rl.Allow("ops:hourly") {
		t.Fatalf("independent key should pass")
	}
	if rl.Allow("") {
		t.Fatalf("empty key must never pass")
	}
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	rl := newRateLimiter(1, 10*time.Millisecond)

	if !rl.Allow("ops:daily") {
		t.Fatalf("first call should pass")
	}
	if rl.Allow("ops:daily") {
		t.Fatalf("second call should be limited")
	}
	time.Sleep(20 * time.Millisecond)
	if !rl.Allow("ops:daily") {
		t.Fatalf("call after window should pass")
	}
}
