package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// newLoggedRouter builds a router with only the id and logging middleware, no
// recovery, so a panic in either one fails the test instead of becoming a 500.
func newLoggedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(nil))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func TestRequestLoggerHandlesShortClientRequestID(t *testing.T) {
	router := newLoggedRouter()

	for _, id := range []string{"ab", "1", "exactly8", "longer-than-eight-chars"} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Request-ID", id)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("id %q: expected 200, got %d", id, w.Code)
		}
		if got := w.Header().Get("X-Request-ID"); got != id {
			t.Fatalf("id %q: expected echoed request id, got %q", id, got)
		}
	}
}

func TestRequestLoggerGeneratesIDWhenMissing(t *testing.T) {
	router := newLoggedRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id header")
	}
}

func TestShortID(t *testing.T) {
	cases := map[string]string{
		"":                          "unknown",
		"ab":                        "ab",
		"exactly8":                  "exactly8",
		"0123456789abcdef":          "01234567",
		"550e8400-e29b-41d4-a716-4": "550e8400",
	}
	for in, want := range cases {
		if got := shortID(in); got != want {
			t.Errorf("shortID(%q) = %q, want %q", in, got, want)
		}
	}
}
