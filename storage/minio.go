package storage

import (
	"context"
	"fmt"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minus-twelve/browserstate/types"
	"io"
)

const defaultEndpoint = "s3.amazonaws.com"

// MinioClient implements ObjectClient for any S3 compatible endpoint,
// including GCS interoperability mode (storage.googleapis.com).
type MinioClient struct {
	client *minio.Client
	bucket string
}

func NewMinioClient(ctx context.Context, cfg types.ObjectStoreConfig) (*MinioClient, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: object store bucket must not be empty", types.ErrValidation)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	creds := credentials.NewEnvAWS()
	if cfg.AccessKeyID != "" {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: object store client: %w", types.ErrValidation, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, backendErr("check bucket", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: bucket %q does not exist", types.ErrBackend, cfg.Bucket)
	}

	return &MinioClient{client: client, bucket: cfg.Bucket}, nil
}

func (c *MinioClient) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := c.client.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (c *MinioClient) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	return c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
}

func (c *MinioClient) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (c *MinioClient) DeleteObject(ctx context.Context, key string) error {
	return c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
}
