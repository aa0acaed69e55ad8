package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"deepreport/internal/config"
	"deepreport/internal/events"
	"deepreport/internal/log"
	"deepreport/internal/metrics"
	"deepreport/internal/services/admin"
	"deepreport/internal/services/reports"
	"deepreport/internal/services/scheduler"
	"deepreport/internal/validation"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	maxUploadSize           = 32 << 20
)

// GoogleAuth is the per-user Google sign-in flow.
type GoogleAuth interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, userID, code string) error
	IsSignedIn(ctx context.Context, userID string) (bool, error)
	SignOut(ctx context.Context, userID string) error
}

// JobScheduler manages the maintenance jobs.
type JobScheduler interface {
	ListJobs() ([]scheduler.JobListResponse, error)
	UpsertJob(req scheduler.UpsertJobRequest) (string, error)
	DeleteJob(jobID string) error
	RunJob(jobID string) error
}

// Subscriber streams broker events.
type Subscriber interface {
	Subscribe(prefix string) (<-chan events.Event, func())
}

// Deps are the services behind the API. Google and Scheduler may be nil.
type Deps struct {
	Reports       *reports.Service
	Admin         *admin.Service
	Google        GoogleAuth
	Scheduler     JobScheduler
	Events        Subscriber
	Authenticator Authenticator
	Metrics       *metrics.Middleware
}

type Server struct {
	cfg      *config.Config
	deps     Deps
	state    *stateSigner
	validate *validator.Validate
	log      *zap.SugaredLogger
}

func New(cfg *config.Config, deps Deps) (*Server, error) {
	state, err := newStateSigner(cfg.Service.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMiddleware("api_server")
	}
	if deps.Authenticator == nil {
		return nil, errors.New("an authenticator is required")
	}
	return &Server{
		cfg:      cfg,
		deps:     deps,
		state:    state,
		validate: validation.New(),
		log:      zap.S().Named("api_server"),
	}, nil
}

// Router builds the full HTTP handler.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(
		s.deps.Metrics.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Service.AllowedOrigins,
			AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		chiMiddleware.RequestID,
		log.Logger(zap.L(), "router"),
		chiMiddleware.Recoverer,
	)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/google/callback", s.googleCallback)

		r.With(queryToken, s.deps.Authenticator.Authenticator).Get("/events", s.streamEvents)

		r.Group(func(r chi.Router) {
			r.Use(s.deps.Authenticator.Authenticator)

			r.Get("/me", s.me)

			r.Route("/reports", func(r chi.Router) {
				r.Get("/", s.listReports)
				r.Post("/", s.createReport)
				r.Get("/stats", s.reportStats)
				r.Get("/types", s.availableTypes)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getReport)
					r.Post("/files", s.uploadFile)
					r.Post("/research", s.startResearch)
					r.Post("/track", s.trackReport)
					r.Post("/cancel", s.cancelResearch)
					r.Get("/progress", s.reportProgress)
					r.Post("/document", s.generateDocument)
					r.Put("/document-url", s.setDocumentURL)
				})
			})

			r.Route("/google", func(r chi.Router) {
				r.Get("/auth-url", s.googleAuthURL)
				r.Get("/status", s.googleStatus)
				r.Post("/signout", s.googleSignOut)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)

				r.Get("/users", s.listUsers)
				r.Post("/users", s.createUser)
				r.Put("/users/{id}", s.updateUser)
				r.Delete("/users/{id}", s.deleteUser)
				r.Put("/users/{id}/role", s.setRole)

				r.Get("/report-types", s.listReportTypes)
				r.Post("/report-types", s.createReportType)
				r.Put("/report-types/{id}", s.updateReportType)
				r.Delete("/report-types/{id}", s.deleteReportType)
				r.Post("/report-types/{id}/toggle", s.toggleReportType)
				r.Put("/report-types/{id}/assign", s.assignReportType)

				r.Get("/jobs", s.listJobs)
				r.Post("/jobs", s.upsertJob)
				r.Delete("/jobs/{id}", s.deleteJob)
				r.Post("/jobs/{id}/run", s.runJob)
			})
		})
	})

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, listener net.Listener) error {
	srv := http.Server{Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		s.log.Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		s.log.Info("api server terminated")
	}()

	s.log.Infof("Listening on %s...", listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := UserFromContext(r.Context()); !ok || !user.IsAdmin() {
			renderError(w, r, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decode reads a JSON body. Services validate their own requests.
func decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// check validates a request that goes to a service without its own validation.
func (s *Server) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, validation.Describe(err))
	}
	return nil
}
