package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Recover from panic", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery())
		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		req := httptest.NewRequest("GET", "/panic", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != 500 {
			t.Errorf("Expected status 500, got %d", w.Code)
		}
	})

	t.Run("Normal request without panic", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery())
		router.GET("/normal", func(c *gin.Context) {
			c.String(200, "OK")
		})

		req := httptest.NewRequest("GET", "/normal", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != 200 {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})
}

func TestSafeGo(t *testing.T) {
	done := make(chan bool)

	SafeGo("test-goroutine", func() {
		defer func() {
			done <- true
		}()
		panic("goroutine panic")
	})

	<-done
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Generated when absent", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/", func(c *gin.Context) { c.Status(200) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

		if w.Header().Get("X-Request-ID") == "" {
			t.Error("Expected generated X-Request-ID")
		}
	})

	t.Run("Preserved when provided", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/", func(c *gin.Context) { c.Status(200) })

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Request-ID", "client-rid")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("X-Request-ID"); got != "client-rid" {
			t.Errorf("Expected client-rid, got %q", got)
		}
	})
}

func TestMultiKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(MultiKeyAuth([]string{"key-1", "key-2"}))
	router.GET("/", func(c *gin.Context) { c.Status(200) })

	tests := []struct {
		name   string
		setup  func(*http.Request)
		expect int
	}{
		{"Bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer key-1") }, 200},
		{"x-api-key", func(r *http.Request) { r.Header.Set("x-api-key", "key-2") }, 200},
		{"x-goog-api-key", func(r *http.Request) { r.Header.Set("x-goog-api-key", "key-1") }, 200},
		{"Query parameter", func(r *http.Request) { r.URL.RawQuery = "key=key-1" }, 200},
		{"Wrong key", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, 401},
		{"No key", func(r *http.Request) {}, 401},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.expect {
				t.Errorf("Expected %d, got %d", tt.expect, w.Code)
			}
		})
	}
}

func TestMultiKeyAuthDisabledWithoutKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(MultiKeyAuth(nil))
	router.GET("/", func(c *gin.Context) { c.Status(200) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != 200 {
		t.Errorf("Expected 200 with auth disabled, got %d", w.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(AdminAuth("admin-secret"))
	router.GET("/", func(c *gin.Context) { c.Status(200) })

	t.Run("Valid admin key", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer admin-secret")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != 200 {
			t.Errorf("Expected 200, got %d", w.Code)
		}
	})

	t.Run("Wrong admin key", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != 401 {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("Empty admin key locks surface", func(t *testing.T) {
		locked := gin.New()
		locked.Use(AdminAuth(""))
		locked.GET("/", func(c *gin.Context) { c.Status(200) })

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer anything")
		w := httptest.NewRecorder()
		locked.ServeHTTP(w, req)
		if w.Code != 401 {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})
}

func TestRateLimiterAutoKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Allow requests within limit", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimiterAutoKey(10, 10))
		router.GET("/test", func(c *gin.Context) {
			c.String(200, "OK")
		})

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer test-key-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != 200 {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("Block requests exceeding per-key limit", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimiterAutoKey(1, 1))
		router.GET("/test", func(c *gin.Context) {
			c.String(200, "OK")
		})

		successCount := 0
		for i := 0; i < 10; i++ {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", "Bearer same-key")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code == 200 {
				successCount++
			}
		}
		if successCount >= 10 {
			t.Error("Expected some requests to be rate limited")
		}
	})
}

func TestExtractAPIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		setup    func(*gin.Context)
		expected string
	}{
		{
			name: "From context",
			setup: func(c *gin.Context) {
				c.Set("api_key", "context-key")
			},
			expected: "context-key",
		},
		{
			name: "From Authorization header",
			setup: func(c *gin.Context) {
				c.Request.Header.Set("Authorization", "Bearer header-key")
			},
			expected: "header-key",
		},
		{
			name: "From x-api-key header",
			setup: func(c *gin.Context) {
				c.Request.Header.Set("x-api-key", "x-api-key-value")
			},
			expected: "x-api-key-value",
		},
		{
			name:     "No API key",
			setup:    func(c *gin.Context) {},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/test", nil)

			tt.setup(c)

			if result := extractAPIKey(c); result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestTTLLimiterCache(t *testing.T) {
	t.Run("Get or create limiter", func(t *testing.T) {
		cache := newTTLLimiterCache(1 * time.Minute)

		lim1 := cache.get("key1", func() *rate.Limiter {
			return rate.NewLimiter(10, 10)
		})
		lim2 := cache.get("key1", func() *rate.Limiter {
			return rate.NewLimiter(20, 20)
		})

		if lim1 != lim2 {
			t.Error("Expected same limiter instance")
		}
	})

	t.Run("Sweep expired entries", func(t *testing.T) {
		cache := newTTLLimiterCache(50 * time.Millisecond)

		cache.get("key1", func() *rate.Limiter {
			return rate.NewLimiter(10, 10)
		})

		time.Sleep(80 * time.Millisecond)

		cache.lastSweep = time.Time{} // Force sweep
		cache.get("key2", func() *rate.Limiter {
			return rate.NewLimiter(10, 10)
		})

		cache.mu.RLock()
		_, exists := cache.items["key1"]
		cache.mu.RUnlock()

		if exists {
			t.Error("Expected key1 to be swept")
		}
	})
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(CORS())
	router.GET("/v1/models", func(c *gin.Context) { c.Status(200) })
	router.GET("/admin/creds", func(c *gin.Context) { c.Status(200) })

	t.Run("Headers on public routes", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/models", nil))
		if w.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("Expected CORS headers on public route")
		}
	})

	t.Run("Skipped on admin routes", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/admin/creds", nil))
		if w.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("Expected no CORS headers on admin route")
		}
	})

	t.Run("Preflight", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/v1/models", nil))
		if w.Code != 204 {
			t.Errorf("Expected 204 on preflight, got %d", w.Code)
		}
	})
}
