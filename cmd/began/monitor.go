package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorgonia/began"
)

type statuser interface {
	Status() began.Status
}

func monitorRoutes(s statuser, stream http.Handler) http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodHead}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), cors.New(corsConfig))

	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "BEGAN is training") })
	r.GET("/status", func(c *gin.Context) { c.JSON(http.StatusOK, s.Status()) })
	r.GET("/stream", gin.WrapH(stream))
	return r
}

// serveMonitor serves the monitor routes on addr until ctx is done or the
// returned function is called.
func serveMonitor(ctx context.Context, addr string, s statuser, stream http.Handler) (stop func()) {
	srv := &http.Server{
		Addr:    addr,
		Handler: monitorRoutes(s, stream),
	}
	go func() {
		log.Printf("Monitor on http://%v/stream", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("monitor: %v", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	return func() { close(done) }
}
