package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"fileset/internal/config"
	"fileset/internal/console"
)

// ErrDigestMismatch is returned by Fetch when a downloaded archive does not
// match its published digest.
var ErrDigestMismatch = errors.New("archive digest mismatch")

// objectAPI is the subset of *s3.Client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// RemoteStore publishes artifact archives, with their digest sidecars, to an
// S3 compatible bucket.
type RemoteStore struct {
	client        objectAPI
	Bucket        string
	HashAlgorithm string
}

// NewRemoteStore connects to the bucket described by cfg.
func NewRemoteStore(ctx context.Context, cfg config.S3, hashAlgorithm string) (*RemoteStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("remote store bucket missing in configuration (FILESET_S3_BUCKET)")
	}

	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if console.Debug {
		options = append(options, awsconfig.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newRemoteStore(client, cfg.Bucket, hashAlgorithm), nil
}

func newRemoteStore(client objectAPI, bucket, hashAlgorithm string) *RemoteStore {
	if hashAlgorithm == "" {
		hashAlgorithm = DefaultHashAlgorithm
	}
	return &RemoteStore{client: client, Bucket: bucket, HashAlgorithm: hashAlgorithm}
}

// SidecarSuffix is appended to an archive name to name its digest file,
// e.g. ".sha256sum".
func (r *RemoteStore) SidecarSuffix() string {
	return "." + strings.ToLower(r.HashAlgorithm) + "sum"
}

// Push uploads archivePath as key. A local sidecar next to the archive is
// uploaded as well; without one, a digest is computed and published.
func (r *RemoteStore) Push(ctx context.Context, archivePath, key string) error {
	if err := r.putFile(ctx, key, archivePath, "application/x-xz"); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	sidecar := archivePath + r.SidecarSuffix()
	if _, err := os.Stat(sidecar); err != nil {
		digest, err := HashFile(archivePath, r.HashAlgorithm)
		if err != nil {
			return err
		}
		body := strings.NewReader(digest + "\n")
		_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(r.Bucket),
			Key:           aws.String(key + r.SidecarSuffix()),
			Body:          body,
			ContentLength: aws.Int64(body.Size()),
			ContentType:   aws.String("text/plain"),
		})
		if err != nil {
			return fmt.Errorf("upload digest for %s: %w", key, err)
		}
		return nil
	}
	if err := r.putFile(ctx, key+r.SidecarSuffix(), sidecar, "text/plain"); err != nil {
		return fmt.Errorf("upload digest for %s: %w", key, err)
	}
	return nil
}

func (r *RemoteStore) putFile(ctx context.Context, key, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return err
	}
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
	})
	return err
}

// Fetch downloads key to dest. When the bucket holds a digest sidecar the
// download is verified before it is moved into place.
func (r *RemoteStore) Fetch(ctx context.Context, key, dest string) error {
	want, err := r.fetchDigest(ctx, key)
	if err != nil {
		return err
	}

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	h, err := NewHash(r.HashAlgorithm)
	if err != nil {
		tmp.Close()
		return err
	}
	var size int64 = -1
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	bar := console.NewProgress(size, key)
	_, err = io.Copy(io.MultiWriter(tmp, h, progressWriter{bar}), out.Body)
	bar.Finish()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}

	if want != "" {
		got := fmt.Sprintf("%x", h.Sum(nil))
		if got != want {
			return fmt.Errorf("%w: %s: expected %s, got %s", ErrDigestMismatch, key, want, got)
		}
	}
	return os.Rename(tmpPath, dest)
}

// fetchDigest returns the published digest of key, or "" when none exists.
func (r *RemoteStore) fetchDigest(ctx context.Context, key string) (string, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(key + r.SidecarSuffix()),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", nil
		}
		return "", fmt.Errorf("download digest for %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// List returns the archive keys below prefix, leaving out digest sidecars.
func (r *RemoteStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, r.SidecarSuffix()) {
				continue
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

type progressWriter struct{ p *console.Progress }

func (w progressWriter) Write(b []byte) (int, error) {
	w.p.Add(len(b))
	return len(b), nil
}
