package controller

import (
	"context"
	"fmt"

	"github.com/ac-freeman/open-accountability/internal/cloud/gcp"
	"github.com/ac-freeman/open-accountability/internal/config"
	applog "github.com/ac-freeman/open-accountability/internal/logging"
	"github.com/ac-freeman/open-accountability/internal/version"
)

// NewLogger builds the process logger from cfg. When a Cloud Logging project
// is configured, entries are also shipped there under the same run ID.
func NewLogger(ctx context.Context, cfg *config.Config) (*applog.Logger, error) {
	logger, err := applog.New(applog.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Component:  cfg.Service.Name,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Logging.CloudProject != "" {
		hook, err := gcp.NewCloudHook(ctx, cfg.Logging.CloudProject, cfg.Logging.LogID, map[string]string{
			"component": cfg.Service.Name,
			"run_id":    logger.RunID,
			"version":   version.Short(),
		})
		if err != nil {
			_ = logger.Close()
			return nil, fmt.Errorf("cloud logging: %w", err)
		}
		logger.AddSink(hook)
	}

	logger.WithField("version", version.Short()).Info(version.Info())
	return logger, nil
}
