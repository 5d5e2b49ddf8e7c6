package controller

import (
	"context"
	"fmt"
)

// AddShutdownHook registers a function to be called during graceful shutdown.
// Hooks are executed in the order they were added.
func (c *Controller) AddShutdownHook(hook ShutdownHook) {
	c.shutdownHooks = append(c.shutdownHooks, hook)
}

// SetLogFlushFunc sets the function used to flush pending log writes.
// This is called with a timeout during shutdown to ensure logs are persisted.
func (c *Controller) SetLogFlushFunc(fn func() error) {
	c.logFlushFn = fn
}

// gracefulShutdown performs a controlled shutdown sequence:
// 1. Run registered shutdown hooks, which close the journal, OCR engine and
// Secret Manager clients built by New
// 2. Clear credentials from memory
// 3. Flush pending log writes (with timeout)
func (c *Controller) gracefulShutdown() {
	c.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		c.runShutdownHooks(ctx)
		c.clearSensitiveData()

		c.logger.Info("Graceful shutdown complete")
		c.flushLogs(ctx)
	})
}

// flushLogs ensures all pending log writes are sent before shutdown.
// It uses a timeout to prevent blocking indefinitely on log flush.
func (c *Controller) flushLogs(ctx context.Context) {
	if c.logFlushFn == nil {
		return
	}

	flushCtx, cancel := context.WithTimeout(ctx, LogFlushTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.logFlushFn()
	}()

	select {
	case err := <-done:
		if err != nil {
			c.logger.WithError(err).Warn("log flush completed with error")
		}
	case <-flushCtx.Done():
		c.logger.Warn("log flush timed out, some logs may be lost")
	}
}

// closeHook closes a client as a shutdown hook.
func closeHook(nc namedCloser) ShutdownHook {
	return func(context.Context) error {
		if err := nc.c.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", nc.name, err)
		}
		return nil
	}
}

// runShutdownHooks executes all registered shutdown hooks in order.
// Each hook receives the shutdown context and should respect cancellation.
func (c *Controller) runShutdownHooks(ctx context.Context) {
	if len(c.shutdownHooks) == 0 {
		return
	}

	c.logger.Infof("Running %d shutdown hooks", len(c.shutdownHooks))

	for i, hook := range c.shutdownHooks {
		select {
		case <-ctx.Done():
			c.logger.Warnf("shutdown timeout reached, skipping remaining %d hooks", len(c.shutdownHooks)-i)
			return
		default:
		}

		if err := hook(ctx); err != nil {
			c.logger.WithError(err).Warnf("shutdown hook %d failed", i+1)
		}
	}
}

// clearSensitiveData drops the in-memory credentials. Whatever had to be kept
// is already on disk by now.
func (c *Controller) clearSensitiveData() {
	id := c.session.Device()
	id.RefreshToken = ""
	id.AccessToken = ""
	id.TamperExitToken = ""
}
