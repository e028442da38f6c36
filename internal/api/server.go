// Package api serves the REST surface of habit-tks.
package api

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/habittks/habit-tks/internal/analytics"
	"github.com/habittks/habit-tks/internal/habit"
	"github.com/habittks/habit-tks/internal/health"
	"github.com/habittks/habit-tks/internal/metrics"
	"github.com/habittks/habit-tks/internal/progression"
	"github.com/habittks/habit-tks/internal/requestid"
	"github.com/habittks/habit-tks/internal/setup"
	"github.com/habittks/habit-tks/internal/user"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	ListenAddr  string
	CORSOrigins string
	RateLimit   RateLimitConfig
	// There is no authentication; every request acts as this user.
	MockUserID string
	// Internal error details are only returned in development.
	Development bool
	Version     string
}

// Services are the use cases the handlers call.
type Services struct {
	Habits      *habit.Service
	Users       *user.Service
	Setup       *setup.Service
	Progression *progression.Engine
	Analytics   *analytics.Service
}

// Server is the REST API Fiber application.
type Server struct {
	app       *fiber.App
	svc       Services
	checker   *health.Checker
	metrics   *metrics.Metrics
	limiter   *rateLimiter
	logger    zerolog.Logger
	config    ServerConfig
	startTime time.Time
}

// NewServer creates and configures the API server.
func NewServer(cfg ServerConfig, svc Services, checker *health.Checker, m *metrics.Metrics, logger zerolog.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8090"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		svc:       svc,
		checker:   checker,
		metrics:   m,
		logger:    logger.With().Str("component", "api").Logger(),
		config:    cfg,
		startTime: time.Now(),
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Development,
	}))
	s.app.Use(requestid.Middleware())

	if s.config.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: s.config.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, " + requestid.Header,
			AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
		}))
	}

	if s.config.RateLimit.RPS > 0 {
		s.limiter = newRateLimiter(s.config.RateLimit)
		s.app.Use(s.limiter.middleware())
	}

	s.app.Use(s.observe)
}

// observe records request metrics and writes the access log. Errors are
// rendered here so the recorded status is the one the client sees.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	if err := c.Next(); err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	status := c.Response().StatusCode()
	route := c.Route().Path
	elapsed := time.Since(start)
	s.metrics.RecordRequest(c.Method(), route, strconv.Itoa(status), elapsed.Seconds())

	if isProbe(c.Path()) {
		return nil
	}
	s.logger.Info().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("latency", elapsed).
		Str("ip", c.IP()).
		Str("request_id", requestid.FromCtx(c)).
		Msg("api request")
	return nil
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.liveness)
	s.app.Get("/readyz", s.readiness)

	api := s.app.Group("/api")
	api.Get("/health", s.healthDetail)

	habits := api.Group("/habits")
	habits.Get("/", s.listHabits)
	habits.Post("/", s.createHabit)
	habits.Get("/:id", s.getHabit)
	habits.Put("/:id", s.updateHabit)
	habits.Delete("/:id", s.deleteHabit)
	habits.Post("/:id/complete", s.completeHabit)
	habits.Post("/:id/skip", s.skipHabit)
	habits.Get("/:id/completions", s.listCompletions)

	users := api.Group("/users")
	users.Post("/", s.createUser)
	users.Get("/me", s.me)
	users.Get("/me/stats", s.myStats)
	users.Put("/me/settings", s.updateSettings)
	users.Delete("/me", s.deleteMe)

	st := api.Group("/setup")
	st.Post("/demo-user", s.setupDemoUser)
	st.Post("/account", s.setupAccount)
	st.Post("/reset", s.resetAccount)
	st.Post("/unlock/:tier", s.unlockTier)

	prog := api.Group("/progression")
	prog.Get("/rules", s.listRules)
	prog.Post("/rules", s.addRule)
	prog.Get("/history", s.history)

	an := api.Group("/analytics")
	an.Get("/summary", s.analyticsSummary)
	an.Get("/habits/:id", s.habitAnalytics)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("API server starting")
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("API server shutting down")
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// userID is the account every request acts for.
func (s *Server) userID(*fiber.Ctx) string {
	return s.config.MockUserID
}

// errorHandler renders errors that escaped a handler, including Fiber's own
// routing errors.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return problemResponse(c, fe.Code, problemType(fe.Code), statusTitle(fe.Code), fe.Message)
	}
	return s.fail(c, err)
}

// Liveness handles GET /healthz.
func (s *Server) liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (s *Server) readiness(c *fiber.Ctx) error {
	if s.checker != nil && !s.checker.IsReady(c.UserContext()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// HealthDetailResponse is the response for GET /api/health.
type HealthDetailResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
}

func (s *Server) healthDetail(c *fiber.Ctx) error {
	resp := HealthDetailResponse{
		Status:  "ok",
		Checks:  map[string]string{},
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Version: s.config.Version,
	}
	if s.checker != nil {
		for name, st := range s.checker.RunAll(c.UserContext()) {
			resp.Checks[name] = string(st)
			if st != health.StatusOK {
				resp.Status = "degraded"
			}
		}
	}
	return c.JSON(resp)
}
