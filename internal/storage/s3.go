package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sakif/recipe-list/internal/model"
)

var _ FileStore = (*S3Store)(nil)

// S3Config locates the bucket. Endpoint is a host[:port] for MinIO or any
// other S3-compatible server; leave it empty for AWS itself.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Store keeps files in one bucket, keyed "<set>/<name>".
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	logger   *slog.Logger
}

// NewS3Store connects to the bucket, creating it when it does not exist yet.
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: S3 bucket name is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			scheme := "http"
			if cfg.UseSSL {
				scheme = "https"
			}
			o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", scheme, cfg.Endpoint))
			o.UsePathStyle = true
		}
	})

	s := &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		logger:   logger,
	}
	if err := s.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *S3Store) ensureBucket(ctx context.Context, region string) error {
	headCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(headCtx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	s.logger.Info("bucket not found, creating", slog.String("bucket", s.bucket))
	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("storage: creating bucket %s: %w", s.bucket, err)
	}

	waiter := s3.NewBucketExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}, 30*time.Second); err != nil {
		return fmt.Errorf("storage: waiting for bucket %s: %w", s.bucket, err)
	}
	return nil
}

func objectKey(set Set, name string) string {
	return string(set) + "/" + name
}

func (s *S3Store) Save(ctx context.Context, set Set, name string, r io.Reader) (string, error) {
	stored := StoredName(name)
	if err := s.put(ctx, set, stored, r); err != nil {
		return "", err
	}
	return stored, nil
}

func (s *S3Store) put(ctx context.Context, set Set, name string, r io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(set, name)),
		Body:   r,
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("storage: uploading %s: %w", objectKey(set, name), err)
	}
	return nil
}

// Copy is a server-side CopyObject; the bytes never pass through this process.
func (s *S3Store) Copy(ctx context.Context, name string, from, to Set) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	source := (&url.URL{Path: s.bucket + "/" + objectKey(from, name)}).EscapedPath()

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(objectKey(to, name)),
		CopySource: aws.String(source),
	})
	if err != nil {
		return "", fmt.Errorf("storage: copying %s to %s: %w", objectKey(from, name), to, err)
	}
	return name, nil
}

func (s *S3Store) Open(ctx context.Context, set Set, name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(set, name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("storage: getting %s: %w", objectKey(set, name), err)
	}
	return out.Body, nil
}

// EnsurePlaceholders uploads the stock placeholder into every set that lacks
// it, or an empty object when source cannot be read.
func (s *S3Store) EnsurePlaceholders(ctx context.Context, source string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		s.logger.Warn("placeholder image missing, uploading empty object",
			slog.String("source", source))
		data = nil
	}

	for _, set := range Sets {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectKey(set, model.PlaceholderFilename)),
		})
		if err == nil {
			continue
		}
		if err := s.put(ctx, set, model.PlaceholderFilename, bytes.NewReader(data)); err != nil {
			return err
		}
	}
	return nil
}
