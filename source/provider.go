package source

import (
	"context"
	"fmt"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/logger"
	"github.com/olegkotsar/ftpreconcile/model"
)

// SourceProvider offers the files to publish.
type SourceProvider interface {
	// List returns every file of the source, keys relative to its root.
	List(ctx context.Context) ([]model.SourceFile, error)
	// Open makes the content of key available as a local file. cleanup must
	// be called once the file is no longer needed.
	Open(ctx context.Context, key string) (localPath string, cleanup func(), err error)
}

func CreateSource(cfg *config.SourceConfig, log logger.Logger) (SourceProvider, error) {
	cfg.Common.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source configuration: %w", err)
	}

	switch cfg.SourceType {
	case config.SourceTypeLocal:
		return NewLocalSource(cfg.Local, log), nil
	case config.SourceTypeS3:
		return NewS3Source(cfg.S3, &cfg.Common, log)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.SourceType)
	}
}
