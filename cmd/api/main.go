package main

import (
	"flag"
	"fmt"
	"log"

	"chat-server/internal/cache"
	"chat-server/internal/chat"
	"chat-server/internal/config"
	"chat-server/internal/crypto"
	"chat-server/internal/database"
	"chat-server/internal/http/handlers"
	"chat-server/internal/http/middleware"
	"chat-server/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	genkey := flag.Bool("genkey", false, "print a fresh message encryption key and exit")
	flag.Parse()

	if *genkey {
		key, err := crypto.GenerateKey()
		if err != nil {
			log.Fatal("generate key:", err)
		}
		fmt.Println(key)
		return
	}

	_ = godotenv.Load()

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	// The message key is loaded once at startup; a server that cannot
	// decrypt its own store must not come up.
	cipher, err := crypto.NewFromKeyFile(cfg.SecretKeyFile)
	if err != nil {
		log.Fatal("load message key:", err)
	}

	db, err := database.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("failed connect db:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed migrate:", err)
	}

	if cfg.SeedDemoData {
		if err := database.Seed(db, cipher); err != nil {
			log.Fatal("failed seed:", err)
		}
	}

	var members cache.Cache = cache.NewMemory()
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal("failed connect redis:", err)
		}
		members = redisCache
	}

	registry := chat.NewRegistry(db, chat.SystemClock)
	msgLog := chat.NewMessageLog(db, chat.SystemClock)
	service := chat.NewService(registry, msgLog, cipher, members)

	hub := ws.NewHub(service)

	r := gin.Default()

	authH := &handlers.AuthHandler{DB: db, JWTSecret: cfg.JWTSecret, Now: chat.SystemClock}
	r.POST("/api/v1/auth/register", authH.Register)
	r.POST("/api/v1/auth/login", authH.Login)

	wsH := &handlers.WSHandler{
		Hub:                  hub,
		JWTSecret:            cfg.JWTSecret,
		WSInsecureSkipVerify: cfg.WSInsecureSkipVerify,
	}
	r.GET("/ws", wsH.Handle)

	authed := r.Group("/api/v1")
	authed.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	usersH := &handlers.UsersHandler{DB: db}
	authed.GET("/users", usersH.List)
	authed.PUT("/me/timezone", usersH.UpdateTimezone)

	chatH := &handlers.ChatHandler{Service: service, Hub: hub}
	authed.POST("/conversations", chatH.CreateConversation)
	authed.GET("/conversations", chatH.ListConversations)
	authed.GET("/conversations/:id", chatH.GetConversation)
	authed.POST("/conversations/:id/messages", chatH.SendMessage)
	authed.POST("/conversations/:id/participants", chatH.AddParticipant)
	authed.PUT("/conversations/:id/name", chatH.RenameConversation)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Println("listening on", addr)
	log.Fatal(r.Run(addr))
}
