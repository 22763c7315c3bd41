package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/config"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/messaging"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/server"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/telemetry"
)

// ControlServer is the local API the popup used: every route is one message
// on the coordinator's bus.
type ControlServer struct {
	cfg    config.ControlConfig
	bus    messaging.Sender
	logger *zap.Logger
	Router *gin.Engine
	server *http.Server
}

func NewControlServer(cfg config.ControlConfig, bus messaging.Sender, logger *zap.Logger) *ControlServer {
	s := &ControlServer{
		cfg:    cfg,
		bus:    bus,
		logger: logger,
		Router: gin.New(),
	}

	s.Router.Use(server.RequestID())
	s.Router.Use(server.RequestLogger(logger))
	s.Router.Use(server.Recovery(logger))
	s.Router.Use(server.CORS())

	s.Router.GET("/metrics", gin.WrapH(telemetry.Handler()))
	api := s.Router.Group("/api")
	{
		api.GET("/status", s.relay(messaging.ActionGetStatus))
		api.GET("/posts", s.relay(messaging.ActionGetScheduledPosts))
		api.POST("/check", s.relay(messaging.ActionForceCheck))
		api.POST("/posts/:id/publish", s.relay(messaging.ActionManualPublish))
		api.POST("/posts/:id/schedule", s.relay(messaging.ActionScheduleToLinkedIn))
	}
	return s
}

func (s *ControlServer) relay(action messaging.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := s.bus.Call(c.Request.Context(), messaging.Message{Action: action, PostID: c.Param("id")})
		if err != nil {
			s.logger.Error("Control request failed", zap.String("action", string(action)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		switch action {
		case messaging.ActionGetStatus:
			c.JSON(http.StatusOK, gin.H{
				"isConnected":    resp.Connected,
				"scheduledCount": resp.ScheduledCount,
				"linkedInTabId":  nullable(resp.TabID),
				"lastCheck":      nullable(resp.LastCheck),
			})
		case messaging.ActionGetScheduledPosts:
			c.JSON(http.StatusOK, gin.H{"posts": resp.Posts, "isConnected": resp.Connected})
		default:
			status := http.StatusOK
			if !resp.Success {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, resp)
		}
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *ControlServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{Addr: addr, Handler: s.Router}

	s.logger.Info("Starting control API", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

func (s *ControlServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
