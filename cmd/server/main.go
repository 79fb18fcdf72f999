package main

import (
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/insuratrack/insuratrack/internal/config"
	"github.com/insuratrack/insuratrack/internal/database"
	"github.com/insuratrack/insuratrack/internal/handler"
	"github.com/insuratrack/insuratrack/internal/middleware"
	"github.com/insuratrack/insuratrack/internal/queue"
	"github.com/insuratrack/insuratrack/internal/repository"
	"github.com/insuratrack/insuratrack/internal/router"
	"github.com/insuratrack/insuratrack/internal/service"
	"github.com/insuratrack/insuratrack/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.Env)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	agents := repository.NewAgentRepo(db)
	customers := repository.NewCustomerRepo(db)
	links := repository.NewLinkRepo(db)
	policies := repository.NewPolicyRepo(db)
	history := repository.NewHistoryRepo(db)
	messages := repository.NewMessageRepo(db)

	publisher := service.NewEventPublisher(log)
	mailer := service.NewMailer(config.LoadMail())

	h := router.Handlers{
		Auth:     handler.NewAuthHandler(cfg, db, users, agents, customers, resetMailer(mailer), log),
		Agent:    handler.NewAgentHandler(agents, customers, links, policies),
		Customer: handler.NewCustomerHandler(cfg, db, users, agents, customers, links, policies),
		Policy:   handler.NewPolicyHandler(policies, agents, customers, history, publisher, log),
		Message:  handler.NewMessageHandler(messages, agents, customers, links),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLog(log))

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable, rate limiting and response cache disabled")
	}
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	e.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	router.Register(e, h, cfg.JWTSecret)

	go queue.StartRenewalConsumer(log)

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
	if err := e.Start(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// resetMailer keeps the nil check honest: a nil *service.Mailer must stay
// a nil interface so the handler can fall back to logging.
func resetMailer(m *service.Mailer) handler.ResetMailer {
	if m == nil {
		return nil
	}
	return m
}
