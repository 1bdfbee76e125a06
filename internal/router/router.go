package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veriloglab/judge-backend/internal/config"
	"github.com/veriloglab/judge-backend/internal/handler"
	"github.com/veriloglab/judge-backend/internal/middleware"
	"github.com/veriloglab/judge-backend/internal/response"
	"github.com/veriloglab/judge-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Health     *handler.HealthHandler
	Submission *handler.SubmissionHandler
	Simulation *handler.SimulationHandler
	Contest    *handler.ContestHandler
	WS         *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// judgeLimiter guards the endpoints that start a simulator.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	gatherer prometheus.Gatherer,
	judgeLimiter *middleware.RateLimiter,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.GinMode != gin.TestMode {
		router.Use(gin.Logger())
	}

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	// ─── Operations ────────────────────────────────────────────────────
	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")

	// ─── 1. Public Reads ───────────────────────────────────────────────
	public := api.Group("")
	public.Use(middleware.CacheControl(2))
	{
		public.GET("/contests", handlers.Contest.ListContests)
		public.GET("/contests/:id", handlers.Contest.GetContest)
		public.GET("/contests/:id/leaderboard", handlers.Contest.Leaderboard)
		public.GET("/leaderboard", handlers.Contest.GlobalLeaderboard)
	}

	// ─── 2. Judging (Rate Limited) ─────────────────────────────────────
	api.POST("/simulations/run",
		middleware.OptionalJWT(authService),
		judgeLimiter.Middleware(),
		handlers.Simulation.Run,
	)

	// ─── 3. Learner Group (JWT) ────────────────────────────────────────
	learner := api.Group("")
	learner.Use(middleware.RequireJWT(authService), middleware.NoStore())
	{
		learner.POST("/submissions",
			judgeLimiter.Middleware(),
			handlers.Submission.Submit,
		)
		learner.GET("/submissions/user/:user_id",
			middleware.RequireSelfOrAdmin("user_id"),
			handlers.Submission.History,
		)
		learner.POST("/contests/:id/register",
			middleware.RequireRole(service.RoleLearner),
			handlers.Contest.Register,
		)
		learner.GET("/contests/:id/me", handlers.Contest.Me)
	}

	// ─── 4. Admin Group (JWT + Role) ───────────────────────────────────
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdminJWT(authService), middleware.NoStore())
	{
		admin.PUT("/submissions/:id/review", handlers.Submission.Review)
		admin.POST("/contests", handlers.Contest.CreateContest)
	}

	// ─── 5. Live Updates ───────────────────────────────────────────────
	router.GET("/ws/v1/live", handlers.WS.Live)

	return router
}
