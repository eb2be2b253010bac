package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pytutor/pytutor/internal/common"
	"github.com/pytutor/pytutor/internal/config"
	"github.com/pytutor/pytutor/internal/httpapi/handlers"
	"github.com/pytutor/pytutor/internal/httpapi/middleware"
	"github.com/pytutor/pytutor/internal/store/rabbitmq"
	"github.com/pytutor/pytutor/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, pub *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, rds, pub)

	r.GET("/ping", h.Ping)

	// users + auth
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUserByID)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// Tutor (JWT required)
	authGroup.POST("/tutor/threads", h.CreateThread)
	authGroup.GET("/tutor/threads/:thread_id/messages", h.ListThreadMessages)
	authGroup.GET("/tutor/jobs/:job_id", h.GetTurnJob)

	turnLimit := middleware.TurnRateLimit(
		rds,
		cfg.TurnRateLimit,
		time.Duration(cfg.TurnRateWindowSecs)*time.Second,
		func(c *gin.Context) string { return c.Param("thread_id") },
	)
	authGroup.POST("/tutor/threads/:thread_id/turns", turnLimit, h.SendTurn)
	authGroup.POST("/tutor/threads/:thread_id/turns/async", turnLimit, h.SendTurnAsync)

	return r
}
