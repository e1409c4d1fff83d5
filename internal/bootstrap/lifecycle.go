package bootstrap

import (
	"context"
	"sync"
	"time"

	"switchboard/pkg/logger"
)

// Lifecycle manages graceful startup and shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 60 * time.Second,
	}
}

// Shutdown performs coordinated cleanup of all components in the correct order:
// 1. No new requests accepted
// 2. Background loops cancelled
// 3. Queued usage records written before their sinks go away
// 4. Kafka consumer unblocked before waiting for goroutines
// 5. Producer closed after every writer is done
// 6. Logs and errors flushed
// 7. Database connections last
func (l *Lifecycle) Shutdown(c *Container) {
	log := c.Log

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop HTTP Server
	// ========================================
	log.Info("[1/8] Stopping HTTP server...")
	if c.Application.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, c.Config.HTTP.ShutdownTimeout)
		defer httpCancel()

		if err := c.Application.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		} else {
			log.Info("✓ HTTP server stopped")
		}
	}

	// ========================================
	// Step 2: Cancel background context
	// ========================================
	log.Info("[2/8] Cancelling background loops...")
	c.Cancel()

	// ========================================
	// Step 3: Drain usage recorder
	// ========================================
	log.Info("[3/8] Draining usage recorder...")
	if c.Services.Recorder != nil {
		recCtx, recCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer recCancel()

		if err := c.Services.Recorder.Stop(recCtx); err != nil {
			log.Errorw("Usage recorder did not drain", "error", err)
		}
	}

	// ========================================
	// Step 4: Close catalog watcher and Kafka consumer
	// ========================================
	log.Info("[4/8] Closing watchers and consumers...")
	if c.Catalog.Watcher != nil {
		if err := c.Catalog.Watcher.Close(); err != nil {
			log.Errorw("Failed to close catalog watcher", "error", err)
		}
	}
	if c.Background.UsageKafkaConsumer != nil {
		if err := c.Background.UsageKafkaConsumer.Close(); err != nil {
			log.Errorw("Failed to close usage consumer", "error", err)
		}
	}

	// ========================================
	// Step 5: Wait for goroutines
	// ========================================
	log.Info("[5/8] Waiting for goroutines...")
	l.waitForGoroutines(c.WG, 30*time.Second, log)

	// ========================================
	// Step 6: Close Kafka producer and the direct usage store
	// ========================================
	log.Info("[6/8] Closing producer and usage store...")
	if c.Adapters.KafkaProducer != nil {
		if err := c.Adapters.KafkaProducer.Close(); err != nil {
			log.Errorw("Failed to close Kafka producer", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}
	if c.Repos.Usage != nil && c.Background.UsageConsumer == nil {
		// With Kafka the consumer owns the store and stops it itself.
		if err := c.Repos.Usage.Stop(shutdownCtx); err != nil {
			log.Errorw("Failed to flush usage store", "error", err)
		}
	}

	// ========================================
	// Step 7: Flush error tracker and logs
	// ========================================
	log.Info("[7/8] Flushing error tracker and logs...")
	if c.ErrorTracker != nil {
		flushCtx, flushCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		defer flushCancel()
		if err := c.ErrorTracker.Flush(flushCtx); err != nil {
			log.Errorw("Failed to flush error tracker", "error", err)
		}
	}
	_ = logger.Sync()

	// ========================================
	// Step 8: Close databases
	// ========================================
	log.Info("[8/8] Closing database connections...")
	l.closeDatabases(c, log)

	log.Info("✓ Graceful shutdown complete")
}

func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnf("Timed out after %s waiting for goroutines", timeout)
	}
}

func (l *Lifecycle) closeDatabases(c *Container, log *logger.Logger) {
	if c.CH != nil {
		if err := c.CH.Close(); err != nil {
			log.Errorw("Failed to close ClickHouse", "error", err)
		} else {
			log.Info("✓ ClickHouse closed")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Errorw("Failed to close Redis", "error", err)
		} else {
			log.Info("✓ Redis closed")
		}
	}
}
