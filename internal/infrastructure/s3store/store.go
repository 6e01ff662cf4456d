// Package s3store keeps resume attachments in an S3-compatible bucket.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Client is the subset of *s3.Client the store uses.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type ClientConfig struct {
	Region          string
	Endpoint        string // set for MinIO and other S3-compatible services
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient builds an S3 client. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

type Store struct {
	client     Client
	bucket     string
	prefix     string
	maxRetries uint64
	logger     *slog.Logger
	now        func() time.Time
}

func New(client Client, bucket, prefix string, logger *slog.Logger) *Store {
	return &Store{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		maxRetries: 2,
		logger:     logger.With("component", "s3store"),
		now:        time.Now,
	}
}

// key lays objects out by upload date so the bucket can be browsed by hand.
func (s *Store) key() string {
	return path.Join(s.prefix, s.now().UTC().Format("2006/01/02"), uuid.NewString())
}

func (s *Store) Store(ctx context.Context, candidateID string, data []byte, filename, mimeType string) (domain.Attachment, error) {
	key := s.key()

	err := s.retry(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(mimeType),
			Metadata:      map[string]string{"candidate-id": candidateID},
		})
		return err
	})
	if err != nil {
		return domain.Attachment{}, storageError("store", err)
	}

	s.logger.DebugContext(ctx, "attachment stored", "key", key, "candidate_id", candidateID, "size", len(data))
	return domain.Attachment{
		Key:      key,
		Filename: filename,
		MimeType: mimeType,
		Size:     int64(len(data)),
	}, nil
}

func (s *Store) Retrieve(ctx context.Context, handle domain.Attachment) (*domain.AttachmentContent, error) {
	var data []byte
	err := s.retry(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(handle.Key),
		})
		if err != nil {
			if isNotFound(err) {
				return backoff.Permanent(domain.ErrAttachmentNotFound)
			}
			return err
		}
		defer out.Body.Close()

		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrAttachmentNotFound) {
			return nil, domain.ErrAttachmentNotFound
		}
		return nil, storageError("retrieve", err)
	}

	return &domain.AttachmentContent{Data: data, Filename: handle.Filename, MimeType: handle.MimeType}, nil
}

// Delete relies on S3 treating deletes of missing keys as success.
func (s *Store) Delete(ctx context.Context, handle domain.Attachment) error {
	err := s.retry(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(handle.Key),
		})
		if err != nil && isNotFound(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return storageError("delete", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.StoredObject, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		in.Prefix = aws.String(s.prefix + "/")
	}

	var objects []domain.StoredObject
	p := s3.NewListObjectsV2Paginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, storageError("list", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, domain.StoredObject{
				Key:        aws.ToString(obj.Key),
				ModifiedAt: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

// retry re-runs op with exponential backoff. Context errors and
// backoff.Permanent errors stop it immediately.
func (s *Store) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		s.logger.WarnContext(ctx, "s3 call failed", "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, s.maxRetries), ctx))
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func storageError(op string, err error) error {
	return &domain.StorageError{
		Op:        op,
		Transient: errors.Is(err, context.DeadlineExceeded),
		Err:       err,
	}
}
