package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bazaarverse/numrent/internal/config"
	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/pkg/middleware"
)

// Router bundles everything needed to build the HTTP surface.
type Router struct {
	Auth    *AuthHandler
	Numbers *NumberHandler
	Users   *UserHandler
	Admin   *AdminHandler
}

// Setup builds the gin engine with all route groups. Catalog reads and the
// number lifecycle need a valid token; the admin group additionally requires
// the admin role.
func (r *Router) Setup(cfg *config.Config, auth *middleware.AuthMiddleware) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		engine.Use(limiter.Middleware())
	}

	engine.GET("/health", r.Numbers.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := engine.Group("/auth")
	{
		authGroup.POST("/login", r.Auth.Login)
		authGroup.POST("/logout", r.Auth.Logout)
		authGroup.GET("/check", auth.Authenticate(), r.Auth.Check)
	}

	api := engine.Group("/api", auth.Authenticate())
	{
		api.GET("/servers", r.Numbers.Servers)
		api.GET("/countries", r.Numbers.Countries)
		api.GET("/services", r.Numbers.Services)
		api.GET("/prices", r.Numbers.Prices)
		api.POST("/buy-number", r.Numbers.BuyNumber)
		api.GET("/sms-status/:activationId", r.Numbers.SMSStatus)
		api.POST("/cancel-number/:activationId", r.Numbers.CancelNumber)
		api.GET("/active-numbers", r.Numbers.ActiveNumbers)
	}

	user := engine.Group("/user/api", auth.Authenticate())
	{
		user.GET("/dashboard-data", r.Users.DashboardData)
		user.GET("/history", r.Users.History)
	}

	admin := engine.Group("/admin/api", auth.Authenticate(), auth.RequireRole(models.RoleAdmin))
	{
		admin.GET("/dashboard-data", r.Admin.DashboardData)
		admin.GET("/users", r.Admin.ListUsers)
		admin.POST("/users", r.Admin.CreateUser)
		admin.GET("/users/:id", r.Admin.GetUser)
		admin.PUT("/users/:id", r.Admin.UpdateUser)
		admin.DELETE("/users/:id", r.Admin.DeleteUser)
		admin.POST("/sweep", r.Admin.Sweep)
	}

	return engine
}
