package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/printdesk-backend/api/controllers"
	"github.com/angelmondragon/printdesk-backend/api/middleware"
	"github.com/angelmondragon/printdesk-backend/internal/agents"
	"github.com/angelmondragon/printdesk-backend/internal/assignment"
	"github.com/angelmondragon/printdesk-backend/internal/attendance"
	"github.com/angelmondragon/printdesk-backend/pkg/config"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/printdesk-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers. Nil pingers are
// skipped by the readiness check and a nil idempotency store disables replay.
type Deps struct {
	DB            controllers.Pinger
	Redis         controllers.Pinger
	Idempotency   pkgredis.IdempotencyStore
	Assignments   assignment.Service
	Agents        agents.Service
	Attendance    attendance.Service
	HTTPMetrics   *metrics.HTTPMetrics
	MetricsHandle http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})
	if deps.MetricsHandle != nil {
		r.Handle("/metrics", deps.MetricsHandle)
	}

	enforce := cfg.FeatureFlags.RequireAuth
	staff := middleware.RequireRole(enforce, logg, enums.MemberRoleAdmin, enums.MemberRoleDispatcher)
	anyone := middleware.RequireRole(enforce, logg, enums.MemberRoleAdmin, enums.MemberRoleDispatcher, enums.MemberRoleAgent)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, enforce, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		// action handlers apply their own per-action scoping
		r.With(anyone).Get("/assignments", controllers.AssignmentActions(deps.Assignments, deps.Agents, logg))
		r.With(anyone).Post("/assignments", controllers.AssignmentActions(deps.Assignments, deps.Agents, logg))
		r.With(anyone).Get("/attendance", controllers.AttendanceActions(deps.Attendance, logg))
		r.With(anyone).Post("/attendance", controllers.AttendanceActions(deps.Attendance, logg))

		r.Route("/agents", func(r chi.Router) {
			r.With(staff).Get("/available", controllers.AvailableAgents(deps.Agents, logg))
			r.With(anyone).Post("/{agentId}/location", controllers.AgentLocation(deps.Agents, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(anyone).Get("/", controllers.OrdersWithDetails(deps.Assignments, logg))
			r.With(staff).Post("/{orderId}/assign", controllers.AssignOrder(deps.Assignments, logg))
			r.With(anyone).Post("/{orderId}/assignment-status", controllers.UpdateAssignmentStatus(deps.Assignments, logg))
			r.With(staff).Get("/{orderId}/candidates", controllers.OrderCandidates(deps.Assignments, logg))
		})
	})

	return r
}
