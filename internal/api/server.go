package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"classhub/internal/identity"
	"classhub/internal/metrics"
	"classhub/internal/session"
	"classhub/internal/video"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

// Identity is the account surface the API exposes
type Identity interface {
	SignUp(ctx context.Context, req identity.SignUpRequest) (*identity.Session, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*identity.Session, error)
}

// Classes is the lifecycle controller
type Classes interface {
	interfaces.AccessChecker

	CreateClass(ctx context.Context, mentorID string, req session.CreateClassRequest) (*types.ClassSession, error)
	GetClass(ctx context.Context, classID string) (*types.ClassSession, error)
	Start(ctx context.Context, classID, actorID string) (*session.Outcome, error)
	End(ctx context.Context, classID, actorID string) (*session.Outcome, error)
	Cancel(ctx context.Context, classID, actorID string) (*session.Outcome, error)
	Enroll(ctx context.Context, userID, classID string) (*types.Enrollment, error)
	Unenroll(ctx context.Context, userID, classID string) error

	MentorClasses(ctx context.Context, mentorID string) ([]*types.ClassSession, error)
	ExploreClasses(ctx context.Context, query string) ([]*types.ClassSession, error)
	EnrolledClasses(ctx context.Context, userID string) ([]*types.EnrolledClass, error)
	Dashboard(ctx context.Context, userID string) ([]*types.ClassSession, error)
	Threads(ctx context.Context, userID string) ([]types.Thread, error)
	Participants(ctx context.Context, mentorID, classID string) ([]*types.Participant, error)

	Flags(class *types.ClassSession) session.Flags
}

// Registry reports live socket counts
type Registry interface {
	ViewerCount(classID string) int
	GetStats() map[string]int
}

// HealthChecker verifies the store
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the components the HTTP surface delegates to
type Deps struct {
	Identity  Identity
	Classes   Classes
	Sender    interfaces.MessageSender
	History   interfaces.HistoryLoader
	Registry  Registry
	Health    HealthChecker
	Rooms     *video.Rooms
	WebSocket http.Handler
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	deps     Deps
	validate *validator.Validate
	router   chi.Router
	logger   *zap.Logger
	metrics  *metrics.Metrics
	started  time.Time
}

// NewServer wires routes over deps. m may be nil.
func NewServer(deps Deps, logger *zap.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:     deps,
		validate: validator.New(),
		router:   chi.NewRouter(),
		logger:   logger,
		metrics:  m,
		started:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with role guards
// applied per route group
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID, middleware.Recoverer, s.corsMiddleware)

	if s.deps.WebSocket != nil {
		r.Handle("/ws", s.deps.WebSocket)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.metricsMiddleware, s.jsonMiddleware)

		r.Get("/health", s.healthCheck)

		r.Route("/api", func(r chi.Router) {
			r.Post("/auth/signup", s.handleSignUp)
			r.Post("/auth/signin", s.handleSignIn)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)

				r.Post("/auth/signout", s.handleSignOut)
				r.Get("/auth/me", s.handleMe)

				r.Get("/threads", s.handleThreads)
				r.Get("/classes/explore", s.handleExplore)
				r.Get("/classes/dashboard", s.handleDashboard)

				r.With(s.requireMentor).Post("/classes", s.handleCreateClass)
				r.With(s.requireMentor).Get("/classes/mine", s.handleMentorClasses)
				r.With(s.requireParticipant).Get("/classes/enrolled", s.handleEnrolledClasses)

				r.Route("/classes/{classID}", func(r chi.Router) {
					r.Get("/", s.handleGetClass)
					r.Get("/session", s.handleSessionView)
					r.Get("/messages", s.handleHistory)
					r.Post("/messages", s.handleSend)

					r.With(s.requireMentor).Post("/start", s.handleStart)
					r.With(s.requireMentor).Post("/end", s.handleEnd)
					r.With(s.requireMentor).Post("/cancel", s.handleCancel)
					r.With(s.requireMentor).Get("/participants", s.handleParticipants)

					r.With(s.requireParticipant).Post("/enroll", s.handleEnroll)
					r.With(s.requireParticipant).Delete("/enroll", s.handleUnenroll)
				})
			})
		})
	})
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if s.deps.Health != nil {
		if err := s.deps.Health.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			dbStatus = "error: " + err.Error()
		}
	}

	connections := map[string]int{}
	if s.deps.Registry != nil {
		connections = s.deps.Registry.GetStats()
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: connections,
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	})
}

// decode reads a JSON body into v and validates its struct tags
func (s *Server) decode(r *http.Request, w http.ResponseWriter, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return ErrInvalidBody
	}
	if err := s.validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins; the bearer token is the credential
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records requests by route pattern, not raw path
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, route, status, time.Since(start))
	})
}
