package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/infra/config"
	"github.com/arklim/payroll-access/internal/transport/http/handlers"
	"github.com/arklim/payroll-access/internal/transport/http/middleware"
	"github.com/arklim/payroll-access/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth      *usecase.AuthService
	Roles     *usecase.RoleService
	Passwords *usecase.PasswordPolicyService
	Lockout   *usecase.LockoutGuard
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Verifier    port.IdentityVerifier
	Events      port.SecurityEventSink
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.CORSOrigins))
	r.Use(deps.Metrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Services.Auth == nil || deps.Verifier == nil {
		return r
	}

	auth := deps.Services.Auth
	authMiddleware := middleware.RequireAuth(deps.Verifier, deps.Events)
	requirePermission := func(permission string) gin.HandlerFunc {
		return middleware.RequirePermission(auth, deps.Events, permission)
	}

	api := r.Group("/api/v1")
	{
		handlers.NewAuthHandler(auth).RegisterRoutes(api.Group("/auth"))

		permissionHandler := handlers.NewPermissionHandler(auth)
		me := api.Group("/me", authMiddleware)
		me.GET("/permissions", permissionHandler.MyPermissions)
		api.GET("/permissions/check", authMiddleware, permissionHandler.Check)

		users := api.Group("/users", authMiddleware)

		if deps.Services.Passwords != nil {
			passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords)
			passwordHandler.RegisterSelfRoutes(me, buildPasswordChangeMiddlewares(deps)...)
			users.POST("/:id/password", requirePermission(domain.PermUsersUpdate), passwordHandler.ResetPassword)
		}

		if deps.Services.Roles != nil {
			roleHandler := handlers.NewRoleHandler(deps.Services.Roles)
			roles := api.Group("/roles", authMiddleware)
			roles.GET("", requirePermission(domain.PermRolesRead), roleHandler.ListRoles)
			roles.DELETE("/:roleID", requirePermission(domain.PermRolesDelete), roleHandler.DeleteRole)

			users.GET("/:id/roles", requirePermission(domain.PermRolesRead), roleHandler.GetUserRoles)
			users.PUT("/:id/roles", requirePermission(domain.PermRolesAssign), roleHandler.ReplaceUserRoles)
			users.POST("/:id/roles", requirePermission(domain.PermRolesAssign), roleHandler.AssignRole)
			users.DELETE("/:id/roles/:roleID", requirePermission(domain.PermRolesAssign), roleHandler.RemoveRole)
		}

		if deps.Services.Lockout != nil {
			userHandler := handlers.NewUserHandler(deps.Services.Lockout, auth)
			users.GET("/:id/lockout", requirePermission(domain.PermUsersRead), userHandler.LockoutStatus)
			users.POST("/:id/unlock", requirePermission(domain.PermUsersUnlock), userHandler.Unlock)
		}
	}

	return r
}

func buildPasswordChangeMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	rule := middleware.RateLimitRule{
		RateLimitRule: usecase.RateLimitRule{
			Name:   "password_change_user",
			Limit:  deps.Config.RateLimit.PasswordChangeMaxAttempts,
			Window: deps.Config.RateLimit.PasswordChangeWindow,
		},
		Identifier: middleware.PrincipalIdentifier(),
	}
	if !rule.Enabled() {
		return nil
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
