// Package server wires the HTTP surface: the Gemini-native and
// OpenAI-compatible endpoints, the admin API, and health/metrics.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gclipool-go/internal/config"
	"gclipool-go/internal/constants"
	"gclipool-go/internal/credential"
	mw "gclipool-go/internal/middleware"
	"gclipool-go/internal/oauth"
	"gclipool-go/internal/proxy"
	"gclipool-go/internal/upstream"
)

// Dispatcher is what request handlers call into; satisfied by
// proxy.RetryingProxy.
type Dispatcher interface {
	Execute(ctx context.Context, req proxy.Request) (*proxy.Result, error)
}

// CredentialAdmin is the pool surface exposed through the admin API.
type CredentialAdmin interface {
	ListStatuses(ctx context.Context) []credential.Status
	Import(ctx context.Context, creds *oauth.Credentials) (string, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error
	Delete(ctx context.Context, id string) bool
	ForceRotate()
}

// Dependencies carries the runtime services the HTTP surface needs.
type Dependencies struct {
	Proxy       Dispatcher
	Pool        CredentialAdmin
	Upstream    *upstream.Client
	CredSource  proxy.CredentialSource
	Settings    *config.Settings
	ConfigStore config.Store
}

type Server struct {
	cfg  *config.Config
	deps Dependencies
}

func New(cfg *config.Config, deps Dependencies) *Server {
	return &Server{cfg: cfg, deps: deps}
}

// BuildEngine assembles the gin engine with all routes and middleware.
func (s *Server) BuildEngine() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		mw.Recovery(),
		mw.RequestID(),
		mw.CORS(),
		mw.RequestLogger(),
		mw.Metrics(),
	)

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := mw.MultiKeyAuth(s.cfg.APIKeys)
	var limiter gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if s.cfg.RateLimitEnabled {
		limiter = mw.RateLimiterAutoKey(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst)
	}

	// Gemini 原生接口
	v1beta := engine.Group("/v1beta", auth, limiter)
	{
		v1beta.GET("/models", s.handleGeminiModels)
		// Gin 不支持同一段内混合路径参数与字面冒号，使用尾部 *action 分发
		v1beta.POST("/models/:model/*action", s.dispatchGeminiAction)
	}

	// OpenAI 兼容接口
	v1 := engine.Group("/v1", auth, limiter)
	{
		v1.GET("/models", s.handleOpenAIModels)
		v1.POST("/chat/completions", s.handleChatCompletions)
		v1.POST("/models/:model/*action", s.dispatchGeminiAction)
	}

	admin := engine.Group("/admin", mw.AdminAuth(s.cfg.AdminKey))
	{
		admin.GET("/creds", s.handleListCreds)
		admin.POST("/creds", s.handleImportCred)
		admin.PATCH("/creds/:id", s.handlePatchCred)
		admin.DELETE("/creds/:id", s.handleDeleteCred)
		admin.POST("/creds/rotate", s.handleForceRotate)
		admin.GET("/config", s.handleGetConfig)
		admin.PUT("/config", s.handlePutConfig)
	}

	return engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": constants.Version,
	})
}
