package artifact

import (
	"fmt"

	"github.com/newthinker/quantbench/internal/config"
)

// New creates a Store from configuration.
func New(cfg config.ArtifactConfig) (Store, error) {
	switch cfg.Type {
	case "", "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown artifact storage type: %s", cfg.Type)
	}
}
