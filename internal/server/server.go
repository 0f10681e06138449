// Package server exposes the user actions over a local HTTP API, so a
// browser bookmarklet or script can trigger them the way the popup buttons
// did.
package server

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"stockbrief/internal/action"
	"stockbrief/internal/cache"
	"stockbrief/internal/config"
	"stockbrief/internal/deliver"
	"stockbrief/internal/logging"
	"stockbrief/internal/stock"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Server serves the action API.
type Server struct {
	cfg    config.ServerConfig
	svc    *action.Service
	engine *gin.Engine
}

// Response is the JSON envelope returned by every route.
type Response struct {
	Success       bool               `json:"success"`
	Kind          action.Kind        `json:"kind,omitempty"`
	Message       string             `json:"message,omitempty"`
	Data          any                `json:"data,omitempty"`
	Error         string             `json:"error,omitempty"`
	MissingFields []string           `json:"missingFields,omitempty"`
	Partial       *stock.StockRecord `json:"partial,omitempty"`
}

type urlRequest struct {
	URL string `json:"url" binding:"required"`
}

type preferenceRequest struct {
	Key   string `json:"key" binding:"required"`
	Value *bool  `json:"value" binding:"required"`
}

// New creates a server. debug switches gin to debug mode.
func New(cfg config.ServerConfig, svc *action.Service, debug bool) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, svc: svc, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLog())

	// Only local pages may call the API from a browser.
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") || origin == "https://groww.in" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.getHealth)

	s.engine.POST("/extract", s.postExtract)
	s.engine.POST("/analyze", s.postAnalyze)
	s.engine.POST("/deliver", s.postDeliver)
	s.engine.GET("/info", s.getInfo)

	s.engine.GET("/record", s.getRecord)
	s.engine.DELETE("/record", s.deleteRecord)
	s.engine.GET("/preview", s.getPreview)

	s.engine.GET("/preferences", s.getPreferences)
	s.engine.PUT("/preferences", s.putPreference)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Server("Listening on %s", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logging.Server("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			logging.ServerError("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
			return
		}
		logging.Server("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
	}
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Message: "ok"})
}

func (s *Server) postExtract(c *gin.Context) {
	var req urlRequest
	if !bindJSON(c, &req) {
		return
	}
	st := s.svc.Extract(c.Request.Context(), req.URL)
	respond(c, st, st.Record)
}

func (s *Server) postAnalyze(c *gin.Context) {
	var req urlRequest
	if !bindJSON(c, &req) {
		return
	}
	st := s.svc.Analyze(c.Request.Context(), req.URL)
	respond(c, st, st.Outcome)
}

func (s *Server) postDeliver(c *gin.Context) {
	st := s.svc.DeliverPending(c.Request.Context())
	respond(c, st, st.Outcome)
}

func (s *Server) getInfo(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, Response{Error: "url query parameter is required"})
		return
	}
	st := s.svc.BasicInfo(c.Request.Context(), url)
	respond(c, st, st.Info)
}

func (s *Server) getRecord(c *gin.Context) {
	st := s.svc.Stored(c.Request.Context())
	respond(c, st, st.Record)
}

func (s *Server) deleteRecord(c *gin.Context) {
	st := s.svc.Clear(c.Request.Context())
	respond(c, st, nil)
}

func (s *Server) getPreview(c *gin.Context) {
	st := s.svc.Preview(c.Request.Context())
	if st.Kind == action.KindSuccess && c.Query("format") == "text" {
		c.String(http.StatusOK, st.Preview)
		return
	}
	respond(c, st, st.Preview)
}

func (s *Server) getPreferences(c *gin.Context) {
	st := s.svc.Preferences(c.Request.Context())
	respond(c, st, st.Preferences)
}

func (s *Server) putPreference(c *gin.Context) {
	var req preferenceRequest
	if !bindJSON(c, &req) {
		return
	}
	st := s.svc.SetPreference(c.Request.Context(), req.Key, *req.Value)
	respond(c, st, st.Preferences)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request: " + err.Error()})
		return false
	}
	return true
}

// respond writes st with data as the payload. Empty payloads are omitted.
func respond(c *gin.Context, st action.Status, data any) {
	resp := Response{
		Success: st.OK(),
		Kind:    st.Kind,
		Message: st.Message,
	}
	if st.OK() {
		if !isEmpty(data) {
			resp.Data = data
		}
	} else {
		resp.Error = st.Message
		resp.MissingFields = st.Missing
		resp.Partial = st.Partial
	}
	c.JSON(httpStatus(st), resp)
}

// isEmpty reports whether data carries no payload, including typed nil
// pointers wrapped in the interface.
func isEmpty(data any) bool {
	if data == nil {
		return true
	}
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		return v.IsNil()
	case reflect.String:
		return v.Len() == 0
	}
	return false
}

func httpStatus(st action.Status) int {
	if st.OK() {
		return http.StatusOK
	}
	var failed *stock.ExtractionFailure
	switch {
	case errors.Is(st.Err, action.ErrNotStockPage):
		return http.StatusBadRequest
	case errors.As(st.Err, &failed):
		return http.StatusUnprocessableEntity
	case errors.Is(st.Err, deliver.ErrDeliveryTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(st.Err, cache.ErrUnknownPreference):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
