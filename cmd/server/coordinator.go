package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/browser/chrome"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/client"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/coordinator"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/messaging"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Publish due posts through Chrome",
	Long:  `Polls the publish server, drives LinkedIn in Chrome for every due post and serves the local control API.`,
	RunE:  runCoordinator,
}

func runCoordinator(*cobra.Command, []string) error {
	cfg, appLogger, err := setup()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	gin.SetMode(cfg.Server.Mode)
	appLogger.Info("Starting Veille coordinator", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := messaging.NewEndpoint("coordinator", appLogger)

	browser, err := chrome.New(ctx, cfg.Browser, cfg.Automation, bus, appLogger.Named("browser"))
	if err != nil {
		return err
	}
	defer browser.Close()

	cache, err := coordinator.NewCache(cfg.Coordinator.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}

	api := client.New(cfg.Coordinator.APIURL, cfg.Coordinator.RequestTimeout, cfg.Auth.TOTPSecret)
	coord := coordinator.New(cfg.Coordinator, api, browser, cache, bus, cfg.Store.Location(), appLogger)
	coord.Start(ctx)

	control := coordinator.NewControlServer(cfg.Coordinator.Control, bus, appLogger.Named("control"))
	go func() {
		if err := control.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Control API failed", zap.Error(err))
			cancel()
		}
	}()

	waitForShutdown(ctx, appLogger)

	coord.Stop()
	if err := control.Shutdown(context.Background()); err != nil {
		appLogger.Error("Control API forced to shutdown", zap.Error(err))
	}
	cancel()
	bus.Wait()

	appLogger.Info("Coordinator exited")
	return nil
}
