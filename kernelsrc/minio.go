package kernelsrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/gogpu/dispatch"
)

// MinIOStore reads kernel sources from S3-compatible object storage.
type MinIOStore struct {
	client *minio.Client
}

// NewMinIOStore creates a store from the storage configuration. Endpoint
// and credentials are required.
func NewMinIOStore(cfg dispatch.StorageConfig) (*MinIOStore, error) {
	if err := validateStorage(cfg); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinIOStore{client: client}, nil
}

// Open implements ObjectStore. The object is stat'ed first so that a
// missing key fails here rather than on the first read.
func (s *MinIOStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("stat object %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

func validateStorage(cfg dispatch.StorageConfig) error {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("storage endpoint is required")
	}
	if strings.Contains(cfg.Endpoint, "://") {
		return fmt.Errorf("storage endpoint must not include scheme: %q", cfg.Endpoint)
	}
	if strings.TrimSpace(cfg.AccessKey) == "" {
		return errors.New("storage access key is required")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return errors.New("storage secret key is required")
	}
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
