package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/kalentivan/tg/internal/auth"
	"github.com/kalentivan/tg/internal/config"
	"github.com/kalentivan/tg/internal/database"
	"github.com/kalentivan/tg/internal/gateway"
	"github.com/kalentivan/tg/internal/handler"
	"github.com/kalentivan/tg/internal/queue"
	"github.com/kalentivan/tg/internal/repository"
	"github.com/kalentivan/tg/internal/router"
	"github.com/kalentivan/tg/internal/service"
	"github.com/kalentivan/tg/internal/ws"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	chats := repository.NewChatRepo(db)
	messages := repository.NewMessageRepo(db)

	codec := auth.NewCodec(cfg.JWTSecret)
	sessions := service.NewSessionService(
		repository.NewAuthStore(db, users, tokens),
		codec,
		time.Duration(cfg.AccessTTLSec)*time.Second,
		time.Duration(cfg.RefreshTTLSec)*time.Second,
		cfg.BcryptCost,
	)

	chatStore := repository.NewChatStore(chats, messages)
	registry := ws.NewRegistry()
	receipts := ws.NewReceiptEngine(chatStore, registry)
	gw := gateway.New(sessions, chatStore, registry, receipts, &queue.Publisher{})

	rdb := config.NewRedisClient()
	rl := config.LoadRateLimitConfig()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(sessions, users, tokens), codec, rl, rdb)
	router.RegisterUsers(e, handler.NewUserHandler(users), codec)
	router.RegisterChats(e, handler.NewChatHandler(db, chats, users, messages), gw, codec)

	go queue.StartMessageConsumer()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
