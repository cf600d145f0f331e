package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/angelmondragon/duka-backend/pkg/config"
	"github.com/angelmondragon/duka-backend/pkg/logger"
)

const (
	pingTimeout      = 5 * time.Second
	defaultPublicURL = "https://storage.googleapis.com"
)

// Client stores generated order documents in a single bucket.
type Client struct {
	objects      *storage.ObjectsService
	bucket       string
	publicBase   string
	cacheControl string
	logg         *logger.Logger
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Uploader stores generated objects and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, object string, data []byte, contentType string) (string, error)
}

// NewClient builds a JSON API client and checks that the bucket is listable.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	svc, err := storage.NewService(ctx, clientOptions(cfg, gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating storage service: %w", err)
	}
	client := newClient(svc, cfg, logg)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", client.bucket), "gcs client initialized")
	}
	return client, nil
}

func newClient(svc *storage.Service, cfg config.GCSConfig, logg *logger.Logger) *Client {
	publicBase := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if publicBase == "" {
		publicBase = defaultPublicURL
	}
	return &Client{
		objects:      svc.Objects,
		bucket:       strings.TrimSpace(cfg.BucketName),
		publicBase:   publicBase,
		cacheControl: cfg.CacheControl,
		logg:         logg,
	}
}

// clientOptions targets a custom endpoint without auth when one is set.
// Otherwise it prefers inline credentials, then a credentials file, then
// Application Default Credentials.
func clientOptions(cfg config.GCSConfig, gcp config.GCPConfig) []option.ClientOption {
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		return []option.ClientOption{
			option.WithEndpoint(strings.TrimRight(endpoint, "/") + "/storage/v1/"),
			option.WithoutAuthentication(),
		}
	}
	opts := []option.ClientOption{option.WithScopes(storage.DevstorageReadWriteScope)}
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

func (c *Client) Close() error {
	return nil
}

// Ping lists at most one object, which needs storage.objects.list.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.objects == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	_, err := c.objects.List(c.bucket).MaxResults(1).Fields("items/name").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gcs object check failed: %w", err)
	}
	return nil
}

// Upload writes data to object with a multipart upload and returns the
// object's public URL.
func (c *Client) Upload(ctx context.Context, object string, data []byte, contentType string) (string, error) {
	if c == nil || c.objects == nil {
		return "", errors.New("gcs client not initialized")
	}
	object = strings.TrimLeft(strings.TrimSpace(object), "/")
	if object == "" {
		return "", errors.New("gcs object name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	meta := &storage.Object{
		Name:         object,
		ContentType:  contentType,
		CacheControl: c.cacheControl,
	}
	_, err := c.objects.Insert(c.bucket, meta).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("gcs upload %s: %w", object, err)
	}
	if c.logg != nil {
		c.logg.Debug(c.logg.WithFields(ctx, map[string]any{
			"object": object,
			"bytes":  len(data),
		}), "gcs object uploaded")
	}
	return c.ObjectURL(object), nil
}

// ObjectURL is the public URL of object in the bucket.
func (c *Client) ObjectURL(object string) string {
	segments := strings.Split(strings.TrimLeft(object, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/%s/%s", c.publicBase, c.bucket, strings.Join(segments, "/"))
}
