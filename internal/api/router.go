package api

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	_ "github.com/d60-Lab/microblog/docs"
	"github.com/d60-Lab/microblog/internal/api/handler"
	"github.com/d60-Lab/microblog/internal/api/middleware"
	"github.com/d60-Lab/microblog/internal/auth"
	"github.com/d60-Lab/microblog/internal/service"
)

type RouterConfig struct {
	ServiceName string
	RPS         float64
	Burst       int
}

// NewRouter 注册全部路由
func NewRouter(cfg RouterConfig, h *handler.Handler, tokens *auth.TokenService, users service.UserService, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "microblog"
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.Logger(log),
		gzip.Gzip(gzip.DefaultCompression),
		middleware.NewRateLimiter(cfg.RPS, cfg.Burst).Middleware(),
	)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		a := v1.Group("/auth")
		a.POST("/register", h.Register)
		a.POST("/login", h.Login)
		a.POST("/reset-token", h.RequestReset)
		a.POST("/reset", h.ResetPassword)

		v1.GET("/explore", h.Explore)
		v1.GET("/search", h.Search)
		v1.GET("/users/:username", h.GetUser)
		v1.GET("/users/:username/posts", h.UserPosts)
		v1.GET("/relations/:user_id/following", h.ListFollowing)
		v1.GET("/relations/:user_id/followers", h.ListFollowers)

		authed := v1.Group("", middleware.Auth(tokens), middleware.LastSeen(users, log))
		authed.GET("/feed", h.Feed)
		authed.POST("/posts", h.CreatePost)
		authed.PUT("/posts/:id", h.UpdatePost)
		authed.DELETE("/posts/:id", h.DeletePost)
		authed.PUT("/users/me", h.UpdateMe)
		authed.POST("/relations/follow", h.Follow)
		authed.POST("/relations/unfollow", h.Unfollow)
	}
	return r
}
