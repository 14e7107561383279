package storage

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver keeps a durable copy of an assembled recording and returns the
// URL it can be fetched from.
type Archiver interface {
	Archive(ctx context.Context, sessionID, path string) (string, error)
}

// MinioOptions configures NewMinioArchiver.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type minioArchiver struct {
	client   *minio.Client
	bucket   string
	endpoint string
	useSSL   bool
}

// NewMinioArchiver connects to MinIO (or any S3 compatible endpoint) and
// makes sure the bucket exists.
func NewMinioArchiver(ctx context.Context, opts MinioOptions) (Archiver, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &minioArchiver{
		client:   client,
		bucket:   opts.Bucket,
		endpoint: opts.Endpoint,
		useSSL:   opts.UseSSL,
	}, nil
}

func (a *minioArchiver) Archive(ctx context.Context, sessionID, path string) (string, error) {
	ext := filepath.Ext(path)
	key := fmt.Sprintf("recordings/%s/%d-%s%s", time.Now().UTC().Format("2006/01/02"), time.Now().Unix(), sessionID, ext)

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := a.client.FPutObject(ctx, a.bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"session-id":  sessionID,
			"uploaded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload recording to MinIO: %w", err)
	}
	return a.objectURL(key), nil
}

func (a *minioArchiver) objectURL(key string) string {
	scheme := "http"
	if a.useSSL {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: a.endpoint, Path: "/" + a.bucket + "/" + key}
	return u.String()
}
