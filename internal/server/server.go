package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/scailup/creditledger/internal/authorization"
	"github.com/scailup/creditledger/internal/catalog"
	catalogdomain "github.com/scailup/creditledger/internal/catalog/domain"
	"github.com/scailup/creditledger/internal/clock"
	"github.com/scailup/creditledger/internal/config"
	"github.com/scailup/creditledger/internal/credits"
	creditsdomain "github.com/scailup/creditledger/internal/credits/domain"
	"github.com/scailup/creditledger/internal/observability"
	obsmiddleware "github.com/scailup/creditledger/internal/observability/logger"
	obsmetrics "github.com/scailup/creditledger/internal/observability/metrics"
	obstracing "github.com/scailup/creditledger/internal/observability/tracing"
	"github.com/scailup/creditledger/internal/ratelimit"
	"github.com/scailup/creditledger/internal/reset"
	"github.com/scailup/creditledger/internal/rollover"
	"github.com/scailup/creditledger/internal/tenant"
	tenantdomain "github.com/scailup/creditledger/internal/tenant/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	catalog.Module,
	tenant.Module,
	credits.Module,
	rollover.Module,
	ratelimit.Module,
	reset.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	db         *gorm.DB
	clock      clock.Clock
	tenantSvc  tenantdomain.Service
	creditsSvc creditsdomain.Service
	catalogSvc catalogdomain.Service
	authzSvc   authorization.Service
	processor  *reset.Processor
	limiter    ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	DB         *gorm.DB
	Clock      clock.Clock
	TenantSvc  tenantdomain.Service
	CreditsSvc creditsdomain.Service
	CatalogSvc catalogdomain.Service
	AuthzSvc   authorization.Service
	Processor  *reset.Processor
	Limiter    ratelimit.Limiter
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		db:         p.DB,
		clock:      p.Clock,
		tenantSvc:  p.TenantSvc,
		creditsSvc: p.CreditsSvc,
		catalogSvc: p.CatalogSvc,
		authzSvc:   p.AuthzSvc,
		processor:  p.Processor,
		limiter:    p.Limiter,
	}

	s.registerAPIRoutes()
	s.registerInternalRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/credits", s.APIKeyRequired(), s.RateLimit(), s.HandleCredits)
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal")

	internal.POST("/credit-reset", s.InternalTokenRequired(), s.HandleCreditReset)
}
