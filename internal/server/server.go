package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/config"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/service"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/store"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/telemetry"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	PostService  *service.PostService
	ImageService *service.ImageService
	AuthService  *service.AuthService
	DueTicker    *service.DueTicker
	StatsUpdater *service.StatsUpdater

	startedAt time.Time
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	var (
		db      *gorm.DB
		history *service.GormHistory
		err     error
	)
	if cfg.Database.Enabled {
		db, err = service.NewDatabase(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		history = service.NewGormHistory(db, logger)
	}

	var objects service.ObjectGetter
	if cfg.Images.S3Region != "" {
		client, err := service.NewS3Client(ctx, cfg.Images)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 client: %w", err)
		}
		objects = client
	}

	fileStore := store.NewFileStore(cfg.Store.Path, logger)

	var recorder service.HistoryRecorder
	if history != nil {
		recorder = history
	}
	postService := service.NewPostService(fileStore, recorder, cfg.Store.Location(), logger)
	imageService := service.NewImageService(cfg.Store.ProjectRoot, cfg.Images.MaxWidth, objects, logger)
	authService := service.NewAuthService(logger, cfg.Auth.TOTPSecret)

	srv := New(cfg, logger, postService, imageService, authService)
	srv.DB = db
	srv.DueTicker = service.NewDueTicker(&cfg.Scheduler, logger, postService)
	srv.StatsUpdater = service.NewStatsUpdater(postService, history, logger, cfg.Scheduler.StatsInterval)
	return srv, nil
}

// New builds the router around already constructed services.
func New(cfg *config.Config, logger *zap.Logger, posts *service.PostService, images *service.ImageService, auth *service.AuthService) *Server {
	gin.SetMode(cfg.Server.Mode)

	srv := &Server{
		Config:       cfg,
		Router:       gin.New(),
		Logger:       logger,
		PostService:  posts,
		ImageService: images,
		AuthService:  auth,
		startedAt:    time.Now(),
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	s.Router.Use(RequestID())
	s.Router.Use(RequestLogger(s.Logger))
	s.Router.Use(Recovery(s.Logger))
	s.Router.Use(CORS())
}

func (s *Server) setupRoutes() {
	s.Router.GET("/metrics", gin.WrapH(telemetry.Handler()))

	api := s.Router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/image", s.handleImage)

		posts := api.Group("/scheduled-posts")
		{
			posts.GET("", s.handleListPosts)
			posts.GET("/pending", s.handlePendingPosts)
			posts.GET("/:id/history", s.handlePostHistory)
			posts.PATCH("/:id", s.AuthService.RequireCode(), s.handleUpdatePost)
			posts.DELETE("/:id", s.AuthService.RequireCode(), s.handleDeletePost)
		}
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s.DueTicker != nil {
		if err := s.DueTicker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start due ticker: %w", err)
		}
	}
	if s.StatsUpdater != nil {
		s.StatsUpdater.Start(ctx)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting publish server",
		zap.String("addr", addr),
		zap.String("store", s.Config.Store.Path))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background loops first
	if s.DueTicker != nil {
		s.DueTicker.Stop()
	}
	if s.StatsUpdater != nil {
		s.StatsUpdater.Stop()
	}

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
