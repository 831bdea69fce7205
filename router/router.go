package router

import (
	"PanShare/internal/handler"
	"PanShare/internal/metrics"
	"PanShare/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InitRouter builds API routes. limiter throttles the public share routes
// per client IP and may be nil. corsOrigins empty allows any origin.
func InitRouter(h *handler.Handler, tokens *utils.TokenIssuer, limiter *utils.IPRateLimiter, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), utils.RequestLogger(), metrics.Middleware(), utils.CORSMiddleware(corsOrigins))

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("/s/:token")
	if limiter != nil {
		public.Use(limiter.Middleware())
	}
	{
		public.GET("", h.ShareInfo)
		public.GET("/download", h.ShareDownload)
		public.POST("/download", h.ShareDownload)
		public.GET("/preview", h.SharePreview)
	}

	api := r.Group("/api")
	{
		api.POST("/register", h.Register)
		api.GET("/activate", h.Activate)
		api.POST("/login", h.Login)

		auth := api.Group("")
		auth.Use(utils.AuthMiddleware(tokens))

		user := auth.Group("/user")
		{
			user.GET("/me", h.Me)
			user.POST("/password", h.ChangePassword)
		}

		file := auth.Group("/file")
		{
			file.POST("/upload", h.UploadFile)
			file.GET("/list", h.ListFiles)
			file.GET("/recycle", h.ListRecycleFiles)
			file.GET("/:id", h.GetFile)
			file.GET("/:id/download", h.DownloadFile)
			file.GET("/:id/url", h.FileURL)
			file.POST("/:id/rename", h.RenameFile)
			file.DELETE("/:id", h.RecycleFile)
			file.POST("/:id/restore", h.RestoreFile)
			file.DELETE("/:id/purge", h.PurgeFile)
			file.GET("/:id/permissions", h.ListPermissions)
			file.POST("/:id/permissions", h.GrantPermission)
			file.DELETE("/:id/permissions/:permID", h.RevokePermission)
		}

		share := auth.Group("/share")
		{
			share.POST("", h.CreateShare)
			share.GET("", h.ListShares)
			share.GET("/:id", h.GetShare)
			share.PATCH("/:id", h.UpdateShare)
			share.DELETE("/:id", h.DeleteShare)
		}

		admin := auth.Group("/admin")
		admin.Use(utils.AdminMiddleware())
		{
			admin.GET("/users", h.AdminListUsers)
			admin.POST("/users", h.AdminCreateUser)
			admin.POST("/users/:id/role", h.AdminSetRole)
			admin.POST("/users/:id/active", h.AdminSetActive)
			admin.GET("/files", h.AdminListFiles)
			admin.GET("/logs", h.AdminListLogs)
			admin.GET("/stats", h.AdminStats)
			admin.GET("/shares/expired", h.AdminExpiredShares)
			admin.POST("/shares/sweep", h.AdminSweep)
		}
	}
	return r
}
