package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collaborative-ide/auth"
	"collaborative-ide/internal/collab"
	"collaborative-ide/internal/config"
	"collaborative-ide/internal/db"
	"collaborative-ide/internal/gateway"
	"collaborative-ide/internal/logger"
	"collaborative-ide/internal/middleware"
	"collaborative-ide/internal/project"
	"collaborative-ide/internal/protocol"
	"collaborative-ide/internal/room"
	"collaborative-ide/internal/storage"
	"collaborative-ide/internal/terminal"
	"collaborative-ide/internal/user"
	"collaborative-ide/internal/watch"
	"collaborative-ide/internal/worker"
	"collaborative-ide/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log := logger.New(cfg.Environment, cfg.LogLevel)

	// Connect to database
	database, err := db.Connect(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error connecting to db")
	}
	defer db.Close(database, log)

	if err := db.Migrate(database); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Database schema migrated successfully")

	if cfg.Environment == "development" {
		if err := db.SeedData(context.Background(), database, log); err != nil {
			log.Error().Err(err).Msg("seeding failed")
		}
	}

	redisClient := redis.Connect(context.Background(), cfg.RedisAddress, log)
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := redis.NewCache(redisClient)

	// A nil BlobStore keeps every file inline.
	var blobs storage.BlobStore
	if cfg.Storage.Enabled() {
		store, err := storage.NewS3Store(context.Background(), cfg.Storage)
		if err != nil {
			log.Fatal().Err(err).Msg("object storage setup failed")
		}
		blobs = store
		log.Info().Str("bucket", cfg.Storage.Bucket).Msg("Large files go to object storage")
	}

	workerPool := worker.NewWorkerPool(cfg.WorkerCount, 100, log)

	// Relay namespaces, each with its own rooms
	gwOpts := gateway.DefaultOptions()
	gwOpts.SendQueue = cfg.SendQueue
	if cfg.Environment != "development" {
		gwOpts.AllowedOrigins = []string{cfg.FrontendAddress}
	}
	gw := gateway.New(gwOpts, log)

	// Initialize services and handlers
	tokens := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL, cfg.RefreshTokenTTL)
	userService := user.NewService(user.NewRepository(database))
	projectService := project.NewService(
		project.NewRepository(database),
		userService,
		cache,
		blobs,
		workerPool,
		gw,
		project.Options{
			WorkspaceRoot: cfg.WorkspaceRoot,
			Threshold:     cfg.Storage.Threshold,
			AccessTTL:     cfg.AccessCacheTTL,
			ListTTL:       time.Minute,
		},
		log,
	)
	userHandler := user.NewHandler(userService, tokens, cfg.Environment == "production")
	projectHandler := project.NewHandler(projectService)

	watchRelay := watch.NewRelay(
		cfg.WorkspaceRoot,
		room.NewRegistry(),
		gw,
		watch.NewFSObserverFactory(cfg.WatchStability, log),
		log,
	)
	terminals := terminal.NewBridge(cfg.WorkspaceRoot, terminal.PTYSpawner{}, log)
	gw.Register(collab.NewRelay(room.NewRegistry(), gw, log))
	gw.Register(watchRelay)
	gw.Register(terminals)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.ErrorHandler(log))

	// cors setting; credentials carry the refresh cookie, so origins stay explicit
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if cfg.Environment == "development" {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsConfig.AllowOrigins = []string{cfg.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"sessions":  gw.SessionCount(),
			"terminals": terminals.Running(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// User routes
	router.POST("/register", userHandler.Register)
	router.POST("/login", userHandler.Login)
	router.POST("/refresh", userHandler.RefreshToken)

	authed := router.Group("/", middleware.Auth(tokens, userService))
	authed.DELETE("/logout", userHandler.Logout)
	authed.GET("/profile", userHandler.GetProfile)
	authed.DELETE("/profile", userHandler.DeleteProfile)
	authed.GET("/users", userHandler.SearchUsers)

	// Project routes
	authed.POST("/projects", projectHandler.CreateProject)
	authed.GET("/projects", projectHandler.ShowUserProjects)

	projects := authed.Group("/projects/:projectId", middleware.ProjectAccess(projectService))
	projects.GET("", projectHandler.ShowProject)
	projects.PUT("", projectHandler.UpdateProject)
	projects.DELETE("", projectHandler.DeleteProject)

	projects.GET("/files", projectHandler.ListFiles)
	projects.POST("/files", projectHandler.CreateFile)
	projects.POST("/files/batch", projectHandler.CreateFiles)
	projects.GET("/files/:fileId", projectHandler.ShowFile)
	projects.PUT("/files/:fileId", projectHandler.UpdateFile)
	projects.DELETE("/files/:fileId", projectHandler.DeleteFile)

	projects.GET("/folders", projectHandler.ListFolders)
	projects.POST("/folders", projectHandler.CreateFolder)
	projects.POST("/folders/batch", projectHandler.CreateFolders)

	projects.GET("/collaborators", projectHandler.ShowCollaborators)
	projects.POST("/collaborators", projectHandler.AddCollaborator)
	projects.PUT("/collaborators", projectHandler.ChangeCollaboratorRole)
	projects.DELETE("/collaborators/:userId", projectHandler.RemoveCollaborator)

	// Websocket namespaces; the upgrade only happens for callers with access
	ws := router.Group("/ws", middleware.Auth(tokens, userService), middleware.ProjectAccess(projectService))
	for _, name := range []string{protocol.NamespaceSync, protocol.NamespaceWatch, protocol.NamespaceTerminal} {
		ws.GET("/"+name, gw.Handler(name))
	}

	// Server configuration
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not covered by server.Shutdown.
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if err := gw.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Gateway shutdown error")
	}
	watchRelay.Close()
	terminals.Close()
	if err := workerPool.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Worker shutdown error")
	}

	log.Info().Msg("Server shutdown complete")
}
