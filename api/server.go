// Package api exposes the billing engine over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xraph/cloudbill"
	"github.com/xraph/cloudbill/report"
)

// Server holds the HTTP handlers.
type Server struct {
	engine  *cloudbill.Engine
	reports *report.Renderer
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithReports sets the renderer used for PDF analysis reports.
func WithReports(r *report.Renderer) Option {
	return func(s *Server) { s.reports = r }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server around engine.
func NewServer(engine *cloudbill.Engine, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		reports: report.New(report.DefaultCompany),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with every route mounted under basePath.
func (s *Server) Router(basePath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), ErrorHandlingMiddleware())
	s.RegisterRoutes(r.Group(normalizeBasePath(basePath)))
	return r
}

// RegisterRoutes mounts the handlers on g.
func (s *Server) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/health", s.Health)

	g.POST("/configuracion", s.LoadConfiguration)
	g.POST("/consumo", s.LoadConsumptions)
	g.POST("/inicializar", s.Reset)
	g.GET("/inicializar", s.Reset)
	g.GET("/consultar", s.Query)

	g.POST("/facturar", s.GenerateInvoices)
	g.GET("/facturas", s.ListInvoices)
	g.GET("/facturas/:number", s.GetInvoice)
	g.GET("/facturas/:number/pdf", s.InvoicePDF)
	g.GET("/analisis", s.AnalyzeSales)

	legacy := g.Group("/api")
	legacy.POST("/crearConfiguracion", s.LoadConfiguration)
	legacy.POST("/consumos", s.LoadConsumptions)
	legacy.GET("/consultarDatos", s.Query)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		}
		if err := c.Errors.Last(); err != nil {
			attrs = append(attrs, "error", err.Err)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("request failed", attrs...)
			return
		}
		s.logger.Debug("request", attrs...)
	}
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return "/"
	}
	return "/" + strings.Trim(p, "/")
}
