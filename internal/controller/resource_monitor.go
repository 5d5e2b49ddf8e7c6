package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// MemoryWarningPct is the memory usage percentage that triggers a warning log.
	MemoryWarningPct = 80

	// MemoryCriticalPct is the memory usage percentage that triggers an error log.
	MemoryCriticalPct = 90
)

// thresholdNone represents no threshold crossed.
const thresholdNone = 0

// thresholdUnavailable means memory statistics cannot be read on this host.
const thresholdUnavailable = -1

// startResourceMonitor periodically checks memory usage and logs when a
// threshold is crossed. OCR on large screens is the main consumer. It exits
// when ctx is cancelled.
func (c *Controller) startResourceMonitor(ctx context.Context) {
	lastThreshold := c.checkMemory(ctx, thresholdNone)
	if lastThreshold == thresholdUnavailable {
		return
	}

	ticker := time.NewTicker(c.resourceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lastThreshold = c.checkMemory(ctx, lastThreshold)
			if lastThreshold == thresholdUnavailable {
				return
			}
		}
	}
}

// checkMemory reads memory statistics and logs if a threshold is crossed.
// Returns the current threshold level for tracking state between calls.
func (c *Controller) checkMemory(ctx context.Context, lastThreshold int) int {
	vm, err := c.memStat(ctx)
	if err != nil {
		c.logger.WithError(err).Info("Resource monitor: memory statistics unavailable, disabling")
		return thresholdUnavailable
	}
	if vm.Total == 0 {
		return lastThreshold
	}

	usedPct := int(vm.UsedPercent)
	currentThreshold := thresholdNone
	if usedPct >= MemoryCriticalPct {
		currentThreshold = MemoryCriticalPct
	} else if usedPct >= MemoryWarningPct {
		currentThreshold = MemoryWarningPct
	}

	// Only log on threshold crossings to avoid spam
	if currentThreshold != lastThreshold {
		entry := c.logger.WithFields(logrus.Fields{
			"used_pct":     usedPct,
			"available_mb": vm.Available / (1024 * 1024),
			"total_mb":     vm.Total / (1024 * 1024),
		})
		switch {
		case currentThreshold == MemoryCriticalPct:
			entry.Error("Memory usage CRITICAL")
		case currentThreshold == MemoryWarningPct:
			entry.Warn("Memory usage HIGH")
		case currentThreshold == thresholdNone && lastThreshold > thresholdNone:
			entry.Info("Memory usage recovered")
		}
	}

	return currentThreshold
}
