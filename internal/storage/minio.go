package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const defaultRegion = "us-east-1"

var ErrNotConfigured = errors.New("object storage is not configured")

type Opts func(c *config)

type config struct {
	endpoint   string
	bucket     string
	accessKey  string
	secretKey  string
	region     string
	publicBase string
	useSSL     bool
}

func WithEndpoint(endpoint string) Opts {
	return func(c *config) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) Opts {
	return func(c *config) {
		c.bucket = bucket
	}
}

func WithAccessKey(accessKey string) Opts {
	return func(c *config) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) Opts {
	return func(c *config) {
		c.secretKey = secretKey
	}
}

func WithSSL(useSSL bool) Opts {
	return func(c *config) {
		c.useSSL = useSSL
	}
}

func WithPublicBase(base string) Opts {
	return func(c *config) {
		c.publicBase = strings.TrimRight(base, "/")
	}
}

// Object describes an uploaded file.
type Object struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Client stores uploaded report documents in an S3-compatible bucket.
type Client struct {
	cfg    *config
	client *minio.Client
}

func NewClient(opts ...Opts) (*Client, error) {
	cfg := &config{region: defaultRegion}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.endpoint == "" || cfg.bucket == "" {
		return nil, ErrNotConfigured
	}

	mc, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.accessKey, cfg.secretKey, ""),
		Secure:       cfg.useSSL,
		Region:       cfg.region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	if cfg.publicBase == "" {
		scheme := "http"
		if cfg.useSSL {
			scheme = "https"
		}
		cfg.publicBase = scheme + "://" + cfg.endpoint
	}

	return &Client{cfg: cfg, client: mc}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.cfg.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", c.cfg.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.cfg.bucket, minio.MakeBucketOptions{Region: c.cfg.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.cfg.bucket, err)
	}
	zap.S().Named("storage").Infow("bucket created", "bucket", c.cfg.bucket)
	return nil
}

// Upload writes the object at path. size may be -1 when unknown.
func (c *Client) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (*Object, error) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return nil, errors.New("object path is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := c.client.PutObject(ctx, c.cfg.bucket, path, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", path, err)
	}

	zap.S().Named("storage").Debugw("object uploaded", "bucket", c.cfg.bucket, "path", path, "size", info.Size)
	return &Object{Path: path, Size: info.Size}, nil
}

// PublicURL returns the address the research backend can fetch the object from.
func (c *Client) PublicURL(path string) string {
	u, err := url.JoinPath(c.cfg.publicBase, c.cfg.bucket, strings.TrimLeft(path, "/"))
	if err != nil {
		return c.cfg.publicBase + "/" + c.cfg.bucket + "/" + strings.TrimLeft(path, "/")
	}
	return u
}
