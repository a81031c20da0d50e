package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
	"github.com/sqltown/sqltown-server/config"
	"go.uber.org/zap"
)

// S3Service issues presigned upload URLs and performs direct S3 operations
type S3Service struct {
	client     *s3.S3
	uploader   *s3manager.Uploader
	bucket     string
	region     string
	prefix     string
	presignTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewS3Service creates an S3 service from configuration. When no static
// credentials are configured the SDK's default credential chain is used.
func NewS3Service(cfg config.S3Config, logger *zap.Logger) (*S3Service, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		// S3-compatible store in development (MinIO, localstack)
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	presignTTL := cfg.PresignExpiry
	if presignTTL == 0 {
		presignTTL = 5 * time.Minute
	}

	return &S3Service{
		client:     s3.New(sess),
		uploader:   s3manager.NewUploader(sess),
		bucket:     cfg.Bucket,
		region:     cfg.Region,
		prefix:     cfg.UploadPrefix,
		presignTTL: presignTTL,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// PresignUpload generates a presigned PUT URL for a client-side upload and
// the URL the object will be reachable at afterwards. The object key is
// prefixed and timestamped so repeated uploads of the same file name do
// not collide.
func (s *S3Service) PresignUpload(fileName, fileType string) (uploadURL, fileURL string, err error) {
	key := fmt.Sprintf("%s/%d-%s", s.prefix, s.now().UnixMilli(), fileName)

	req, _ := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(fileType),
	})

	uploadURL, err = req.Presign(s.presignTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to presign upload: %w", err)
	}

	s.logger.Debug("presigned upload URL generated",
		zap.String("key", key),
		zap.Duration("expires_in", s.presignTTL))

	return uploadURL, s.objectURL(key), nil
}

// Upload writes the body to S3 server-side, for clients that cannot PUT
// to a presigned URL directly. Returns the object's URL and key.
func (s *S3Service) Upload(ctx context.Context, fileName, contentType string, body io.Reader) (fileURL, key string, err error) {
	key = fmt.Sprintf("%s/%s-%s", s.prefix, uuid.New().String(), fileName)

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Info("object uploaded", zap.String("key", key))
	return s.objectURL(key), key, nil
}

// Delete removes an object from the bucket
func (s *S3Service) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	s.logger.Info("object deleted", zap.String("key", key))
	return nil
}

// Exists checks whether an object exists in the bucket
func (s *S3Service) Exists(ctx context.Context, key string) bool {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

// objectURL returns the public URL of an object
func (s *S3Service) objectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
