// Package web serves the ticket checking pages and a small JSON API over the draw store.
package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	lottery "github.com/kydenul/lottery-checker"
	"github.com/kydenul/lottery-checker/ocr"
)

//go:embed templates/*.html
var templateFS embed.FS

// HealthChecker reports the state of a dependency, e.g. the source circuit breaker
type HealthChecker interface {
	HealthCheck() map[string]any
}

// Options holds the server's collaborators. Store is required; the rest are optional.
type Options struct {
	Store   lottery.DrawStore
	Scanner *ocr.Scanner
	Syncer  *lottery.Synchronizer
	Breaker HealthChecker
	Config  *lottery.WebConfig
	Logger  lottery.Logger
}

// Server wires the handlers onto a gin engine
type Server struct {
	engine  *gin.Engine
	store   lottery.DrawStore
	checker *lottery.Checker
	scanner *ocr.Scanner
	syncer  *lottery.Synchronizer
	breaker HealthChecker
	config  *lottery.WebConfig
	logger  lottery.Logger
}

// New creates the server and registers its routes
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("web: store is required")
	}
	if opts.Config == nil {
		opts.Config = lottery.DefaultWebConfig()
	}
	if opts.Logger == nil {
		opts.Logger = lottery.NewSilentLogger()
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		engine:  gin.New(),
		store:   opts.Store,
		checker: lottery.NewChecker(opts.Store, opts.Logger),
		scanner: opts.Scanner,
		syncer:  opts.Syncer,
		breaker: opts.Breaker,
		config:  opts.Config,
		logger:  opts.Logger,
	}

	s.engine.MaxMultipartMemory = opts.Config.MaxUploadBytes
	s.engine.SetHTMLTemplate(tmpl)
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.RegisterRoutes(s.engine)
	return s, nil
}

// Handler returns the http.Handler to mount
func (s *Server) Handler() http.Handler { return s.engine }

// HTTPServer builds an http.Server bound to the configured address
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
}

// RegisterRoutes registers all the application routes.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/", s.ShowIndex)
	router.GET("/upload", s.redirectHome)
	router.POST("/upload", s.UploadTicket)
	router.GET("/manual", s.redirectHome)
	router.POST("/manual", s.ManualEntry)
	router.GET("/healthz", s.Health)

	api := router.Group("/api")
	api.GET("/draws/latest", s.LatestDraw)
	api.GET("/draws/:no", s.DrawByNumber)
	api.GET("/draws", s.DrawByDate)
	api.POST("/check", s.CheckNumbers)
	api.POST("/sync", s.TriggerSync)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) redirectHome(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/")
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, lottery.ErrDrawNotFound), errors.Is(err, lottery.ErrStoreEmpty):
		return http.StatusNotFound
	case errors.Is(err, lottery.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, lottery.ErrLockAcquisitionFailed):
		return http.StatusConflict
	case errors.Is(err, lottery.ErrSourceUnavailable),
		errors.Is(err, lottery.ErrTransientFetch),
		errors.Is(err, lottery.ErrCircuitBreakerOpen):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	body := gin.H{"error": lottery.UserMessage(err)}
	var le *lottery.LotteryError
	if errors.As(err, &le) {
		body["code"] = le.Code
	}
	c.AbortWithStatusJSON(status, body)
}

var templateFuncs = template.FuncMap{
	"pad": func(n int) string { return fmt.Sprintf("%02d", n) },
}
