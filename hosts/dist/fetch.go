package dist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/panda3d/panda3d-sub012/hosts"
	"github.com/panda3d/panda3d-sub012/installer"
)

// fetcher opens objects of a host tree by slash separated relative path.
type fetcher interface {
	// open returns the object and its size, -1 if unknown. A missing
	// object yields hosts.ErrNotFound.
	open(ctx context.Context, rt http.RoundTripper, rel string) (io.ReadCloser, int64, error)
}

func newFetcher(ref string, timeout time.Duration) (fetcher, error) {
	scheme := hosts.Scheme(ref)
	switch scheme {
	case "http", "https":
		u, err := url.Parse(ref)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid host %q", ref)
		}
		return &httpFetcher{base: u, timeout: timeout}, nil
	case "file":
		root := ref
		if strings.HasPrefix(ref, "file://") {
			u, err := url.Parse(ref)
			if err != nil {
				return nil, fmt.Errorf("invalid host %q: %w", ref, err)
			}
			root = u.Path
		}
		if root == "" {
			return nil, fmt.Errorf("invalid host %q: empty path", ref)
		}
		return &fileFetcher{root: filepath.Clean(root)}, nil
	case "s3":
		u, err := url.Parse(ref)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid host %q: need s3://bucket[/prefix]", ref)
		}
		return &s3Fetcher{bucket: u.Host, prefix: strings.Trim(u.Path, "/"), timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("dist host %s: scheme %q: %w", ref, scheme, installer.ErrUnknownHost)
	}
}

func checkRel(rel string) error {
	if !fs.ValidPath(rel) || rel == "." {
		return fmt.Errorf("invalid object path %q", rel)
	}
	return nil
}

type httpFetcher struct {
	base    *url.URL
	timeout time.Duration
}

func (f *httpFetcher) open(ctx context.Context, rt http.RoundTripper, rel string) (io.ReadCloser, int64, error) {
	if err := checkRel(rel); err != nil {
		return nil, 0, err
	}
	target := f.base.JoinPath(rel).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create HTTP request: %w", err)
	}
	client := &http.Client{Transport: rt, Timeout: f.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP GET %s: %w", target, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, resp.ContentLength, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("HTTP GET %s: %w", target, hosts.ErrNotFound)
	default:
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("HTTP GET %s: status %s", target, resp.Status)
	}
}

type fileFetcher struct {
	root string
}

func (f *fileFetcher) open(_ context.Context, _ http.RoundTripper, rel string) (io.ReadCloser, int64, error) {
	if err := checkRel(rel); err != nil {
		return nil, 0, err
	}
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	file, err := os.Open(p) //nolint:gosec // rel checked above
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, fmt.Errorf("open %s: %w", p, hosts.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", p, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", p, err)
	}
	return file, info.Size(), nil
}

// S3API is the part of *s3.Client used by the S3 fetcher.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type s3Fetcher struct {
	bucket  string
	prefix  string
	timeout time.Duration

	once   sync.Once
	client S3API
	err    error
}

// api builds the client from the default AWS config chain on first use.
func (f *s3Fetcher) api(ctx context.Context) (S3API, error) {
	f.once.Do(func() {
		if f.client != nil {
			return
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			f.err = fmt.Errorf("load AWS config: %w", err)
			return
		}
		f.client = s3.NewFromConfig(cfg)
	})
	return f.client, f.err
}

func (f *s3Fetcher) open(ctx context.Context, rt http.RoundTripper, rel string) (io.ReadCloser, int64, error) {
	if err := checkRel(rel); err != nil {
		return nil, 0, err
	}
	client, err := f.api(ctx)
	if err != nil {
		return nil, 0, err
	}
	key := path.Join(f.prefix, rel)
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	}, func(o *s3.Options) {
		if rt != nil {
			o.HTTPClient = &http.Client{Transport: rt, Timeout: f.timeout}
		}
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, 0, fmt.Errorf("s3://%s/%s: %w", f.bucket, key, hosts.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("s3://%s/%s: %w", f.bucket, key, err)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = aws.ToInt64(out.ContentLength)
	}
	return out.Body, size, nil
}

func isS3NotFound(err error) bool {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}
