package main

import (
	"os"
	"os/signal"
	"syscall"

	"switchboard/internal/bootstrap"
	"switchboard/pkg/logger"
)

func main() {
	container := bootstrap.NewContainer()
	container.MustInit()
	defer logger.Sync()

	if err := container.Start(); err != nil {
		container.Log.Fatalf("failed to start: %v", err)
	}

	container.Log.Info("System initialized successfully")

	waitForShutdown(container)
}

// waitForShutdown blocks until a signal arrives or a component cancels the
// root context, then performs graceful shutdown
func waitForShutdown(c *bootstrap.Container) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		c.Log.Infow("Shutting down...", "signal", sig.String())
	case <-c.Context.Done():
		c.Log.Warn("Component failure, shutting down...")
	}

	c.Shutdown()
}
