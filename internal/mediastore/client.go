// Package mediastore talks to the remote media store: durable byte storage
// plus on-demand transformation resolved lazily through delivery URLs.
package mediastore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dvmax/mediaforge/internal/id"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint        string
	AccountName     string
	AccessKey       string
	AccessSecret    string
	Bucket          string
	UseSSL          bool
	DeliveryBaseURL string
}

// RemoteObject is the remote store's receipt for one stored original.
type RemoteObject struct {
	PublicID string
	Bytes    int64
}

type Client struct {
	minio  *minio.Client
	http   *http.Client
	bucket string
	urls   URLBuilder
}

func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.AccessSecret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create media store client: %w", err)
	}

	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	base := strings.TrimSpace(cfg.DeliveryBaseURL)
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.AccountName)
	}

	return &Client{
		minio:  mc,
		http:   &http.Client{Timeout: 30 * time.Second},
		bucket: cfg.Bucket,
		urls:   URLBuilder{Base: base},
	}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) URLs() URLBuilder {
	return c.urls
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := c.minio.BucketExists(ctx, c.bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}

	return nil
}

// Upload stores one original and returns the remote-assigned public ID.
// The caller bounds the call with a context deadline; classification of a
// deadline hit is the caller's job.
func (c *Client) Upload(ctx context.Context, kind string, data []byte, contentType string) (RemoteObject, error) {
	publicID := fmt.Sprintf("%s-uploads/%s", kind, id.New())

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := c.minio.PutObject(
		ctx,
		c.bucket,
		publicID,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return RemoteObject{}, fmt.Errorf("put object %s: %w", publicID, err)
	}

	return RemoteObject{PublicID: publicID, Bytes: info.Size}, nil
}

func (c *Client) ObjectExists(ctx context.Context, publicID string) (bool, error) {
	_, err := c.minio.StatObject(ctx, c.bucket, publicID, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject" {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", publicID, err)
}

// ProbeDerivedSize issues a HEAD against a derived-asset URL. The first
// request is what makes the remote store compute the derivation, so this
// doubles as a warm-up.
func (c *Client) ProbeDerivedSize(ctx context.Context, derivedURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, derivedURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build derived probe request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe derived asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("probe derived asset: status=%d", resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("probe derived asset: missing content length")
	}
	return resp.ContentLength, nil
}
