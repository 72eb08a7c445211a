package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"reqgraph/backend/pkg/logger"
)

// Opener reads ingestion inputs from local paths or s3://bucket/key URIs.
type Opener struct {
	region   string
	endpoint string

	once   sync.Once
	client *s3.Client
	err    error
	logger *zap.Logger
}

// NewOpener creates an opener. Region and endpoint apply to s3 URIs only;
// an empty endpoint uses AWS, anything else (for example MinIO) is
// addressed path-style.
func NewOpener(region, endpoint string) *Opener {
	return &Opener{region: region, endpoint: endpoint, logger: logger.Get()}
}

// IsS3 reports whether uri names an S3 object.
func IsS3(uri string) bool {
	return strings.HasPrefix(uri, "s3://")
}

// ParseS3 splits s3://bucket/key.
func ParseS3(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %s", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri needs a bucket and a key: %s", uri)
	}
	return bucket, key, nil
}

// Name returns the base name of a path or URI.
func Name(uri string) string {
	if IsS3(uri) {
		return path.Base(uri)
	}
	return filepath.Base(uri)
}

// ErrNotPermitted is returned by Confine for inputs a remote caller may not
// read.
var ErrNotPermitted = errors.New("input not permitted")

// Confine checks an input named by a remote caller. S3 URIs pass unchanged.
// Local paths must resolve, after symlinks, to a file under root; relative
// paths are taken relative to root. An empty root refuses every local path.
// The returned path is the one to open.
func Confine(root, uri string) (string, error) {
	if IsS3(uri) {
		return uri, nil
	}
	if strings.Contains(uri, "://") {
		return "", fmt.Errorf("%w: unsupported scheme in %s", ErrNotPermitted, uri)
	}
	if root == "" {
		return "", fmt.Errorf("%w: local paths are disabled (set INGEST_ROOT)", ErrNotPermitted)
	}

	base, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve ingest root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(base); err == nil {
		base = real
	}
	p := uri
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	p = filepath.Clean(p)
	if real, err := filepath.EvalSymlinks(p); err == nil {
		p = real
	}

	rel, err := filepath.Rel(base, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the ingest root", ErrNotPermitted, uri)
	}
	return p, nil
}

// Open returns a reader for uri.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if !IsS3(uri) {
		f, err := os.Open(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", uri, err)
		}
		return f, nil
	}

	bucket, key, err := ParseS3(uri)
	if err != nil {
		return nil, err
	}
	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", uri, err)
	}
	o.logger.Debug("Opened S3 object", zap.String("bucket", bucket), zap.String("key", key))
	return out.Body, nil
}

// ReadFile reads uri fully.
func (o *Opener) ReadFile(ctx context.Context, uri string) ([]byte, error) {
	rc, err := o.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return data, nil
}

// Expand turns a local directory into the sorted regular files below it
// whose extension is in exts (all files when exts is empty). Files and s3
// URIs are returned unchanged.
func Expand(uri string, exts ...string) ([]string, error) {
	if IsS3(uri) {
		return []string{uri}, nil
	}
	info, err := os.Stat(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", uri, err)
	}
	if !info.IsDir() {
		return []string{uri}, nil
	}

	var files []string
	err = filepath.WalkDir(uri, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !matchExt(p, exts) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", uri, err)
	}
	sort.Strings(files)
	return files, nil
}

func matchExt(p string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func (o *Opener) s3Client(ctx context.Context) (*s3.Client, error) {
	o.once.Do(func() {
		opts := []func(*awsconfig.LoadOptions) error{}
		if o.region != "" {
			opts = append(opts, awsconfig.WithRegion(o.region))
		}
		if o.endpoint != "" {
			opts = append(opts, awsconfig.WithBaseEndpoint(o.endpoint))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			o.err = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		o.client = s3.NewFromConfig(cfg, func(so *s3.Options) {
			so.UsePathStyle = o.endpoint != ""
		})
	})
	return o.client, o.err
}
