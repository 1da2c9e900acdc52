package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/minus-twelve/browserstate/internal/archive"
	"github.com/minus-twelve/browserstate/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"os"
	"sort"
	"strings"
	"time"
)

const metadataSuffix = "metadata"

// RedisStore keeps each session as one archive blob under
// {prefix}:{user}:{session}. Blobs written by other implementations may be
// raw tar.gz or base64 zip; both are read regardless of the configured format.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	format   archive.Format
	ttl      time.Duration
	tempRoot string
	log      *zap.Logger
}

func NewRedisStore(ctx context.Context, cfg types.RedisConfig, log *zap.Logger) (*RedisStore, error) {
	if err := normalizeRedisConfig(&cfg); err != nil {
		return nil, err
	}

	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: redis url: %w", types.ErrValidation, err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, backendErr("ping redis", err)
	}

	return newRedisStore(client, cfg, log), nil
}

// NewRedisStoreWithClient wraps an existing client. No command is sent.
func NewRedisStoreWithClient(client *redis.Client, cfg types.RedisConfig, log *zap.Logger) (*RedisStore, error) {
	if err := normalizeRedisConfig(&cfg); err != nil {
		return nil, err
	}
	return newRedisStore(client, cfg, log), nil
}

func normalizeRedisConfig(cfg *types.RedisConfig) error {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if strings.Contains(cfg.Prefix, Delimiter) {
		return fmt.Errorf("%w: key prefix %q must not contain %q", types.ErrValidation, cfg.Prefix, Delimiter)
	}
	if cfg.Format == "" {
		cfg.Format = string(archive.FormatZip)
	}
	if _, err := archive.ParseFormat(cfg.Format); err != nil {
		return err
	}
	return nil
}

func newRedisStore(client *redis.Client, cfg types.RedisConfig, log *zap.Logger) *RedisStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStore{
		client:   client,
		prefix:   cfg.Prefix,
		format:   archive.Format(cfg.Format),
		ttl:      cfg.TTL,
		tempRoot: tempRoot(cfg.TempDir),
		log:      log.With(zap.String("store", "redis")),
	}
}

func (r *RedisStore) key(userID, sessionID string) string {
	return strings.Join([]string{r.prefix, userID, sessionID}, Delimiter)
}

func (r *RedisStore) metadataKey(userID, sessionID string) string {
	return r.key(userID, sessionID) + Delimiter + metadataSuffix
}

func (r *RedisStore) Download(ctx context.Context, userID, sessionID string) (string, error) {
	if err := validateIDs(userID, sessionID); err != nil {
		return "", err
	}

	key := r.key(userID, sessionID)
	data, err := r.client.Get(ctx, key).Bytes()
	missing := errors.Is(err, redis.Nil)
	if err != nil && !missing {
		return "", backendErr("get "+key, err)
	}

	if missing {
		return workingCopy(r.tempRoot, userID, sessionID)
	}

	r.logMetadata(ctx, userID, sessionID)

	format, payload, err := archive.Decode(data)
	if err != nil {
		r.log.Error("cannot decode stored session",
			zap.String("user_id", userID), zap.String("session_id", sessionID), zap.Error(err))
		return "", fmt.Errorf("session %s: %w", sessionID, err)
	}
	r.log.Debug("detected session format",
		zap.String("session_id", sessionID), zap.String("format", string(format)))

	target, err := workingCopy(r.tempRoot, userID, sessionID)
	if err != nil {
		return "", err
	}
	if err := archive.Unpack(payload, format, target); err != nil {
		os.RemoveAll(target)
		r.log.Error("cannot extract stored session",
			zap.String("user_id", userID), zap.String("session_id", sessionID), zap.Error(err))
		return "", fmt.Errorf("session %s: %w", sessionID, err)
	}
	return target, nil
}

func (r *RedisStore) logMetadata(ctx context.Context, userID, sessionID string) {
	raw, err := r.client.Get(ctx, r.metadataKey(userID, sessionID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("cannot read session metadata", zap.String("session_id", sessionID), zap.Error(err))
		}
		return
	}

	var meta types.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		r.log.Warn("malformed session metadata", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	r.log.Debug("session metadata",
		zap.String("session_id", sessionID),
		zap.Int64("timestamp", meta.Timestamp),
		zap.String("version", meta.Version))
}

func (r *RedisStore) Upload(ctx context.Context, userID, sessionID, localPath string) error {
	if err := validateIDs(userID, sessionID); err != nil {
		return err
	}

	data, err := archive.Pack(localPath, r.format)
	if err != nil {
		return err
	}

	key := r.key(userID, sessionID)
	if r.format == archive.FormatTarGz {
		// raw tar.gz carries no metadata; drop any left by an earlier zip upload
		pipe := r.client.TxPipeline()
		pipe.Set(ctx, key, data, r.ttl)
		pipe.Del(ctx, r.metadataKey(userID, sessionID))
		if _, err := pipe.Exec(ctx); err != nil {
			return backendErr("set "+key, err)
		}
		return nil
	}

	if err := r.client.Set(ctx, key, base64.StdEncoding.EncodeToString(data), r.ttl).Err(); err != nil {
		return backendErr("set "+key, err)
	}
	if err := r.writeMetadata(ctx, userID, sessionID, localPath); err != nil {
		r.log.Warn("session stored without metadata",
			zap.String("user_id", userID), zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil
}

func (r *RedisStore) writeMetadata(ctx context.Context, userID, sessionID, localPath string) error {
	count, err := archive.FileCount(localPath)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(types.Metadata{
		Timestamp: time.Now().UnixMilli(),
		Version:   types.MetadataVersion,
		FileCount: &count,
	})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.metadataKey(userID, sessionID), payload, r.ttl).Err()
}

// ListSessions scans {prefix}:{user}:* and keeps only three-part keys, which
// leaves out the metadata side keys.
func (r *RedisStore) ListSessions(ctx context.Context, userID string) ([]string, error) {
	if err := ValidateID("user_id", userID); err != nil {
		return nil, err
	}

	pattern := strings.Join([]string{escapeGlob(r.prefix), escapeGlob(userID), "*"}, Delimiter)
	seen := make(map[string]struct{})

	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		parts := strings.Split(iter.Val(), Delimiter)
		if len(parts) != 3 || parts[0] != r.prefix || parts[1] != userID {
			continue
		}
		seen[parts[2]] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, backendErr("scan "+pattern, err)
	}

	sessions := make([]string, 0, len(seen))
	for id := range seen {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if err := validateIDs(userID, sessionID); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.key(userID, sessionID), r.metadataKey(userID, sessionID)).Err(); err != nil {
		return backendErr("delete session", err)
	}
	return nil
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
