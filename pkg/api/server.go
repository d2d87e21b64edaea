// Package api serves the map page and the JSON/SSE API the page drives.
package api

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mesh-node-map/pkg/dashboard"
	"mesh-node-map/pkg/mapview"
	"mesh-node-map/pkg/status"
)

var log = logrus.WithField("prefix", "gin")

// Triggerer requests an out-of-schedule refresh.
type Triggerer interface {
	Trigger() bool
}

// Config holds what the handlers need beyond their collaborators.
type Config struct {
	Version         string
	DefaultViewport mapview.Viewport
	CacheEntries    int
	RefreshCooldown time.Duration
	// Assets holds map.html at its root and the files served under /static.
	Assets fs.FS
}

// Server to run a http server instance
type Server struct {
	server *http.Server
	cfg    Config

	dash       *dashboard.Dashboard
	board      *status.Board
	stream     *status.Stream
	translator *status.Translator
	trigger    Triggerer

	cache   *JSONCache
	limiter *RateLimiter
	page    *template.Template
}

// NewServer parses the page template and starts the cache and limiter
// goroutines.
func NewServer(cfg Config, dash *dashboard.Dashboard, board *status.Board, stream *status.Stream,
	translator *status.Translator, trigger Triggerer) (*Server, error) {
	page, err := template.ParseFS(cfg.Assets, "map.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:        cfg,
		dash:       dash,
		board:      board,
		stream:     stream,
		translator: translator,
		trigger:    trigger,
		cache:      NewJSONCache(cfg.CacheEntries),
		limiter:    NewRateLimiter(cfg.RefreshCooldown),
		page:       page,
	}, nil
}

// Run to run the server
func (s *Server) Run(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown to shutdown the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.cache.Close()
	s.limiter.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         10 * time.Second,
	}))
	r.Use(serverHeader(s.cfg.Version))

	pageRoute := r.Group("/")
	pageRoute.Use(ginrus("Page"))
	{
		pageRoute.GET("", s.mapPage)
		if static, err := fs.Sub(s.cfg.Assets, "static"); err == nil {
			pageRoute.StaticFS("/static", http.FS(static))
		}
	}

	apiRoute := r.Group("/api")
	apiRoute.Use(ginrus("API"))
	apiRoute.Use(cors.New(cors.Config{
		AllowMethods:    []string{"GET", "PUT", "PATCH", "POST", "DELETE"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept-Language"},
		ExposeHeaders:   []string{"Content-Length"},
		AllowAllOrigins: true,
		MaxAge:          12 * time.Hour,
	}))
	{
		apiRoute.GET("/status", s.getStatus)
		apiRoute.GET("/events", s.events)
		apiRoute.GET("/stats", s.getStats)
		apiRoute.GET("/export.csv", s.export)
		apiRoute.GET("/contributors/:id/nodes", s.contributorNodes)
		apiRoute.GET("/markers", s.getMarkers)
		apiRoute.GET("/clusters", s.getClusters)

		apiRoute.GET("/viewport", s.getViewport)
		apiRoute.PUT("/viewport", s.putViewport)

		apiRoute.GET("/filters", s.getFilters)
		apiRoute.PUT("/filters", s.putFilters)
		apiRoute.DELETE("/filters", s.resetFilters)
		apiRoute.PATCH("/filters/:field", s.patchFilter)

		apiRoute.GET("/search", s.search)
		apiRoute.POST("/search/select", s.selectHit)

		apiRoute.POST("/refresh", s.refresh)

		apiRoute.GET("/share", s.shareLink)
		apiRoute.GET("/share/qr.png", s.shareQR)
	}

	r.GET("/healthz", s.healthz)

	return r
}

func (s *Server) healthz(c *gin.Context) {
	if _, err := s.dash.Version(c.Request.Context()); shouldInterupt(err, c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "OK",
		"version":          s.cfg.Version,
		"throttledClients": s.limiter.clients(),
	})
}

// shouldInterupt answers with the error code matching err and reports
// whether the handler must stop.
func shouldInterupt(err error, c *gin.Context) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, dashboard.ErrUnknownFilter):
		abortWithEncoding(c, http.StatusBadRequest, errorUnknownFilter, err)
	case errors.Is(err, dashboard.ErrInvalidViewport):
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidViewport, err)
	case errors.Is(err, dashboard.ErrInvalidCoordinate):
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidCoordinate, err)
	case errors.Is(err, dashboard.ErrNotLoaded):
		abortWithEncoding(c, http.StatusServiceUnavailable, errorNotLoaded, err)
	case errors.Is(err, dashboard.ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		abortWithEncoding(c, http.StatusServiceUnavailable, errorUnavailable, err)
	default:
		log.Error(err)
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
	}
	return true
}

func abortWithEncoding(c *gin.Context, code int, obj ErrorResponse, errs ...error) {
	for _, err := range errs {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(code, obj)
}
