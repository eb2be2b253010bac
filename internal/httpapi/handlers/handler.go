package handlers

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/pytutor/pytutor/internal/ai"
	"github.com/pytutor/pytutor/internal/config"
	"github.com/pytutor/pytutor/internal/store/rabbitmq"
	"github.com/pytutor/pytutor/internal/store/redisstore"
	"github.com/pytutor/pytutor/internal/tutor"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Redis    *redisstore.Store
	TutorSvc *tutor.Service
	Rabbit   *rabbitmq.Publisher
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, pub *rabbitmq.Publisher) *Handler {
	repo := tutor.NewRepo(db)

	// Provider registry (threads carry provider+model; resolved per turn)
	reg := ai.NewRegistry()
	reg.Register("groq", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.GroqModel
		}
		return ai.NewGroqProvider(cfg.GroqBaseURL, cfg.GroqAPIKey, m), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	svc := tutor.NewService(repo, reg)
	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Redis:    rds,
		TutorSvc: svc,
		Rabbit:   pub,
	}
}
