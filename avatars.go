package contacts

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AvatarStore persists profile pictures and returns a URL the client can
// fetch them from.
type AvatarStore interface {
	Upload(ctx context.Context, userID uuid.UUID, body io.Reader, contentType string) (string, error)
}

// S3Config holds object storage settings. Works against AWS or any
// S3 compatible endpoint such as MinIO.
type S3Config struct {
	Region       string
	Bucket       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	// URLTTL bounds the lifetime of presigned avatar URLs.
	URLTTL time.Duration
}

// S3AvatarStore stores avatars as objects and serves them through
// presigned GET URLs.
type S3AvatarStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	urlTTL  time.Duration
}

func NewS3AvatarStore(ctx context.Context, cfg S3Config) (*S3AvatarStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load object storage configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.BaseEndpoint != ""
	})

	urlTTL := cfg.URLTTL
	if urlTTL <= 0 {
		urlTTL = 24 * time.Hour
	}

	return &S3AvatarStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		urlTTL:  urlTTL,
	}, nil
}

// Upload writes the avatar object keyed by user id, replacing any previous
// one, and returns a presigned GET URL.
func (s *S3AvatarStore) Upload(ctx context.Context, userID uuid.UUID, body io.Reader, contentType string) (string, error) {
	key := avatarKey(userID)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "failed to store avatar object").
			WithMetadata(map[string]any{"key": key})
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = s.urlTTL
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "failed to presign avatar url").
			WithMetadata(map[string]any{"key": key})
	}

	return req.URL, nil
}

func avatarKey(userID uuid.UUID) string {
	return fmt.Sprintf("avatars/%s", userID)
}

var _ AvatarStore = (*S3AvatarStore)(nil)
