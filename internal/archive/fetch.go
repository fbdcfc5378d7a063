package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/wroldwiedbwe/hprofkit/pkg/config"
	apperrors "github.com/wroldwiedbwe/hprofkit/pkg/errors"
)

// Fetcher retrieves a remote .hprof object to a local path before hprof.Open
// is ever called on it. It is adapted from internal/storage/cos.go's
// COSStorage, narrowed to the one operation the archiver needs: the
// archiver is a read-only consumer of both the dump format and the object
// store, and must never upload or mutate a remote object.
type Fetcher struct {
	client *cos.Client
	bucket string
}

// NewFetcher builds a Fetcher from cfg. cfg.Type must be "cos"; a "local"
// storage config has nothing to fetch and NewFetcher returns an error if
// asked to build one (callers should skip fetching entirely for local
// paths — see Archiver.Run).
func NewFetcher(cfg *config.StorageConfig) (*Fetcher, error) {
	if cfg.Type != "cos" {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, fmt.Sprintf("fetcher requires storage type \"cos\", got %q", cfg.Type), nil)
	}
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "bucket and region are required for COS storage", nil)
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "credentials are required for COS storage", nil)
	}

	domain := cfg.Domain
	if domain == "" {
		domain = "myqcloud.com"
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to parse bucket URL", err)
	}
	serviceURL, err := url.Parse(fmt.Sprintf("%s://cos.%s.%s", scheme, cfg.Region, domain))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to parse service URL", err)
	}

	client := cos.NewClient(&cos.BaseURL{
		BucketURL:  bucketURL,
		ServiceURL: serviceURL,
	}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})

	return &Fetcher{client: client, bucket: cfg.Bucket}, nil
}

// FetchToFile downloads key to localPath, creating its parent directory if
// needed. It returns only an error; callers pass a temp file path built
// with os.CreateTemp or similar.
func (f *Fetcher) FetchToFile(ctx context.Context, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return apperrors.Wrap(apperrors.CodeDownloadError, "failed to create destination directory", err)
	}
	if _, err := f.client.Object.GetToFile(ctx, key, localPath, nil); err != nil {
		return apperrors.Wrap(apperrors.CodeDownloadError, fmt.Sprintf("failed to fetch %q from COS", key), err)
	}
	return nil
}

// Exists reports whether key is present in the bucket, without downloading
// it. Archiver.Run does not call it: an unknown key surfaces as a
// FetchToFile error.
func (f *Fetcher) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := f.client.Object.IsExist(ctx, key)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeDownloadError, fmt.Sprintf("failed to check existence of %q", key), err)
	}
	return ok, nil
}
