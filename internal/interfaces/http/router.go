// Package http wires the gin engine, middleware and handlers into the
// agent's HTTP server.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/didagent/internal/config"
	"github.com/turtacn/didagent/internal/interfaces/http/handlers"
	"github.com/turtacn/didagent/internal/interfaces/http/middleware"
	"github.com/turtacn/didagent/pkg/logger"
)

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.ServerConfig
	log    logger.Logger

	healthHandler   *handlers.HealthHandler
	keyHandler      *handlers.KeyHandler
	identityHandler *handlers.IdentityHandler
	syncHandler     *handlers.SyncHandler
	nodeHandler     *handlers.NodeHandler

	server      *http.Server
	routesReady bool
}

// RouterDeps collects everything the router serves.
type RouterDeps struct {
	Config          *config.ServerConfig
	Logger          logger.Logger
	HealthHandler   *handlers.HealthHandler
	KeyHandler      *handlers.KeyHandler
	IdentityHandler *handlers.IdentityHandler
	SyncHandler     *handlers.SyncHandler
	NodeHandler     *handlers.NodeHandler
}

// NewRouter 创建路由器
func NewRouter(deps RouterDeps) *Router {
	gin.SetMode(gin.ReleaseMode)
	return &Router{
		engine:          gin.New(),
		cfg:             deps.Config,
		log:             deps.Logger,
		healthHandler:   deps.HealthHandler,
		keyHandler:      deps.KeyHandler,
		identityHandler: deps.IdentityHandler,
		syncHandler:     deps.SyncHandler,
		nodeHandler:     deps.NodeHandler,
	}
}

// SetupRoutes 设置路由
func (r *Router) SetupRoutes() {
	if r.routesReady {
		return
	}
	r.routesReady = true

	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.AccessLog(r.log))

	if r.cfg.EnableCORS {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID"},
			ExposeHeaders: []string{"X-Request-ID"},
			MaxAge:        12 * time.Hour,
		}))
	}

	// 健康检查路由
	r.engine.GET("/health", r.healthHandler.HealthCheck)
	r.engine.GET("/ready", r.healthHandler.ReadinessCheck)

	// Prometheus metrics
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if r.cfg.EnablePprof {
		pprof.Register(r.engine)
	}

	// API 路由组
	v1 := r.engine.Group("/api/v1")
	{
		keys := v1.Group("/keys")
		{
			keys.POST("", r.keyHandler.GenerateKey)
			keys.POST("/import", r.keyHandler.ImportKey)
			keys.GET("", r.keyHandler.ListKeys)
			keys.GET("/:key_id", r.keyHandler.GetKey)
			keys.PATCH("/:key_id", r.keyHandler.UpdateKey)
			keys.POST("/:key_id/sign", r.keyHandler.Sign)
			keys.POST("/:key_id/verify", r.keyHandler.Verify)
			keys.POST("/:key_id/encrypt", r.keyHandler.Encrypt)
			keys.POST("/:key_id/decrypt", r.keyHandler.Decrypt)
		}

		identities := v1.Group("/identities")
		{
			identities.POST("", r.identityHandler.CreateIdentity)
			identities.POST("/import", r.identityHandler.ImportIdentity)
			identities.GET("", r.identityHandler.ListIdentities)
			identities.GET("/:did", r.identityHandler.Resolve)
		}

		v1.POST("/sync/run", r.syncHandler.Run)
		v1.GET("/sync/status", r.syncHandler.Status)
	}

	// 节点协议路由，对等节点的远端客户端按这些路径调用
	node := r.engine.Group("/node")
	{
		node.POST("/messages", r.nodeHandler.ProcessMessage)
		node.GET("/events/:did", r.nodeHandler.EventLog)
		node.GET("/messages/:did/:message_id", r.nodeHandler.GetMessage)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "not_found",
			"message": "the requested resource was not found",
		})
	})
}

// Start 启动 HTTP 服务器
func (r *Router) Start() error {
	r.SetupRoutes()

	r.server = &http.Server{
		Addr:           r.cfg.Address(),
		Handler:        r.engine,
		ReadTimeout:    r.cfg.ReadTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	r.log.Info(context.Background(), "Starting HTTP server", logger.String("address", r.cfg.Address()))

	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.log.Info(ctx, "Stopping HTTP server")
	return r.server.Shutdown(ctx)
}

// Engine exposes the underlying gin engine for tests.
func (r *Router) Engine() *gin.Engine {
	r.SetupRoutes()
	return r.engine
}
