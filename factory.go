package browserstate

import (
	"context"
	"github.com/minus-twelve/browserstate/storage"
	"github.com/minus-twelve/browserstate/types"
	"go.uber.org/zap"
)

const (
	BackendObjectStore = "object_store"
	BackendRedis       = "redis"
	BackendLocal       = "local"
)

// SelectBackend reports which backend cfg resolves to: an object store wins
// over Redis, which wins over the local filesystem.
func SelectBackend(cfg types.Config) string {
	switch {
	case cfg.ObjectStore.Enabled():
		return BackendObjectStore
	case cfg.Redis.Enabled():
		return BackendRedis
	default:
		return BackendLocal
	}
}

// CreateStore builds exactly one backend from cfg. Settings for lower
// precedence backends are ignored.
func CreateStore(ctx context.Context, cfg types.Config, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	backend := SelectBackend(cfg)
	if backend != BackendLocal && cfg.Local.Path != "" {
		log.Debug("ignoring local storage config", zap.String("backend", backend))
	}

	switch backend {
	case BackendObjectStore:
		if cfg.Redis.Enabled() {
			log.Debug("ignoring redis config", zap.String("backend", backend))
		}
		client, err := storage.NewMinioClient(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		return storage.NewObjectStore(client, cfg.ObjectStore, log), nil
	case BackendRedis:
		store, err := storage.NewRedisStore(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := storage.NewLocalStore(cfg.Local, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
