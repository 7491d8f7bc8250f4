package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	competitordomain "github.com/bozorlab/marketpulse/internal/competitor/domain"
	"github.com/bozorlab/marketpulse/internal/config"
	discoverydomain "github.com/bozorlab/marketpulse/internal/discovery/domain"
	itemdomain "github.com/bozorlab/marketpulse/internal/item/domain"
	"github.com/bozorlab/marketpulse/internal/observability"
	obsmiddleware "github.com/bozorlab/marketpulse/internal/observability/logger"
	obsmetrics "github.com/bozorlab/marketpulse/internal/observability/metrics"
	obstracing "github.com/bozorlab/marketpulse/internal/observability/tracing"
	sourcingdomain "github.com/bozorlab/marketpulse/internal/sourcing/domain"
	"github.com/bozorlab/marketpulse/internal/worker"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
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
	r.Use(httpMetrics.GinMiddleware())
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine        *gin.Engine
	cfg           config.Config
	itemsvc       itemdomain.Service
	discoverysvc  discoverydomain.Service
	competitorsvc competitordomain.Service
	sourcingsvc   sourcingdomain.Service
	dispatcher    *worker.Dispatcher
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	ItemSvc       itemdomain.Service
	DiscoverySvc  discoverydomain.Service
	CompetitorSvc competitordomain.Service
	SourcingSvc   sourcingdomain.Service
	Dispatcher    *worker.Dispatcher
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		itemsvc:       p.ItemSvc,
		discoverysvc:  p.DiscoverySvc,
		competitorsvc: p.CompetitorSvc,
		sourcingsvc:   p.SourcingSvc,
		dispatcher:    p.Dispatcher,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", AccountRequired())

	api.POST("/items", s.TrackItem)
	api.DELETE("/items/:id", s.UntrackItem)
	api.POST("/items/:id/analyze", s.AnalyzeItem)

	api.POST("/runs", s.CreateRun)
	api.GET("/runs", s.ListRuns)
	api.GET("/runs/:id", s.GetRun)

	api.POST("/sourcing", s.CreateSourcingJob)
	api.GET("/sourcing", s.ListSourcingJobs)
	api.GET("/sourcing/:id", s.GetSourcingJob)

	api.POST("/competitor/track", s.TrackCompetitor)
	api.POST("/competitor/untrack", s.UntrackCompetitor)
	api.POST("/competitor/rules", s.CreateAlertRule)
	api.GET("/competitor/alerts", s.ListAlerts)
	api.POST("/competitor/snapshot", s.TriggerCompetitorSweep)
}
