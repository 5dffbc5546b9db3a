// Package api exposes the tracker over HTTP: authenticated driver endpoints,
// public passenger endpoints and websocket live streams.
package api

import (
	"log"
	"net/http"
	"time"

	"bustracker/internal/tracker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const defaultOrigin = "http://localhost:5173"

type Options struct {
	JWTSecret      []byte
	CORSOrigins    []string
	RequestTimeout time.Duration
}

type Handlers struct {
	t       *tracker.Tracker
	origins map[string]bool
}

func NewRouter(t *tracker.Tracker, opts Options) *gin.Engine {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{defaultOrigin}
	}
	h := &Handlers{t: t, origins: make(map[string]bool, len(origins))}
	for _, o := range origins {
		h.origins[o] = true
	}

	r := gin.New()
	r.Use(RequestID(), gin.Logger(), gin.Recovery(), cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if err := r.SetTrustedProxies(nil); err != nil {
		log.Printf("warning: failed to set trusted proxies: %v", err)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "path": c.Request.URL.Path})
	})
	r.GET("/", h.Health)
	r.GET("/health", h.Health)

	api := r.Group("/api")

	// Live streams are long-lived and stay out of the request timeout.
	api.GET("/sessions/:id/live", h.SessionLive)
	api.GET("/search/live", h.SearchLive)

	public := api.Group("", Timeout(opts.RequestTimeout))
	public.GET("/search", h.Search)
	public.GET("/stops/suggest", h.SuggestStops)
	public.GET("/sessions/:id", h.GetSession)

	auth := api.Group("", Timeout(opts.RequestTimeout), JWTAuth(opts.JWTSecret))
	{
		drivers := auth.Group("/drivers")
		drivers.GET("/profile", h.Profile)
		drivers.POST("/location", h.UpdateLocation)
		drivers.GET("/routes", h.DriverRoutes)

		auth.POST("/routes", h.CreateRoute)
		auth.DELETE("/routes/:id", h.DeleteRoute)

		auth.POST("/buses", h.RegisterBus)
		auth.PUT("/buses/:id/route", h.BindRoute)
		auth.POST("/buses/:id/session", h.StartSession)

		auth.POST("/sessions/:id/arrivals", h.MarkArrival)
		auth.POST("/sessions/:id/end", h.EndSession)
	}

	return r
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "Bus Tracker API Server",
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
