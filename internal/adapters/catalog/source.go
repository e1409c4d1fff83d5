package catalog

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"switchboard/internal/domain/catalog"
	"switchboard/pkg/errors"
)

// maxCatalogBytes bounds a catalog document; models.dev is a few MB.
const maxCatalogBytes = 64 << 20

// Source fetches a catalog snapshot.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (catalog.Snapshot, error)
}

// HTTPSource downloads a models.dev style api.json.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a source for url. A nil client gets a 30s timeout.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{url: url, client: client}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Fetch(ctx context.Context) (catalog.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build catalog request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &errors.TransportError{Provider: "catalog", Model: s.Name(), Err: errors.Wrapf(err, "fetch catalog %s", s.url)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errors.TransportError{Provider: "catalog", Model: s.Name(), StatusCode: resp.StatusCode, Err: errors.Newf("catalog %s returned %s", s.url, resp.Status)}
	}

	return decode(resp.Body)
}

// FileSource reads a catalog document from disk.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string { return "file" }

// Path is the watched file.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Fetch(ctx context.Context) (catalog.Snapshot, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog %s", s.path)
	}
	defer f.Close()
	return decode(f)
}

// ObjectGetter is the slice of the S3 API the catalog needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a catalog document from an S3 compatible bucket.
type S3Source struct {
	client ObjectGetter
	bucket string
	key    string
}

// NewS3Source wraps an existing client.
func NewS3Source(client ObjectGetter, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

// NewS3SourceFromEnv builds an S3 client from the default AWS credential
// chain. A non-empty endpoint selects path-style addressing for MinIO and
// similar services.
func NewS3SourceFromEnv(ctx context.Context, region, endpoint, bucket, key string) (*S3Source, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3Source(client, bucket, key), nil
}

func (s *S3Source) Name() string { return "s3" }

func (s *S3Source) Fetch(ctx context.Context) (catalog.Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, &errors.TransportError{Provider: "catalog", Model: s.Name(), Err: errors.Wrapf(err, "get s3://%s/%s", s.bucket, s.key)}
	}
	defer out.Body.Close()
	return decode(out.Body)
}

func decode(r io.Reader) (catalog.Snapshot, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxCatalogBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	snap, err := catalog.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}
	if len(snap) == 0 {
		return nil, errors.New("catalog is empty")
	}
	return snap, nil
}
