package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const (
	keyPrefix          = "media"
	defaultContentType = "application/octet-stream"
)

type Config struct {
	// S3 compatible endpoint, e.g. MinIO. Empty means AWS itself
	Endpoint string
	Region   string
	Bucket   string

	AccessKey string
	SecretKey string

	// Base URL objects are served from
	// Defaults to path-style endpoint URL of the bucket
	PublicURL string
}

// File to upload
// Body has to be seekable so the SDK can sign and retry the payload
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store keeps user media (avatars, cover images) in S3 bucket and hands out public URLs
type Store struct {
	client    objectAPI
	bucket    string
	publicURL string

	now func() time.Time
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("media bucket must not be empty")
	}
	if cfg.Region == "" {
		return nil, errors.New("media region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error while loading s3 config. Err: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		// S3 compatible stores don't always understand flexible checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		if cfg.Endpoint == "" {
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		} else {
			publicURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		}
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}, nil
}

// Upload puts the file under new unique key and returns its public URL
func (s *Store) Upload(ctx context.Context, f Upload) (string, error) {
	if f.Body == nil {
		return "", errors.New("nothing to upload")
	}

	ext := strings.ToLower(path.Ext(f.Filename))
	key := fmt.Sprintf("%s/%s/%s%s", keyPrefix, s.now().UTC().Format("2006/01/02"), uuid.NewString(), ext)

	contentType := f.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f.Body,
		ContentType: aws.String(contentType),
	}
	if f.Size > 0 {
		input.ContentLength = aws.Int64(f.Size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("error while uploading media. Err: %w", err)
	}

	return s.publicURL + "/" + key, nil
}

// Delete removes the object behind URL
// URLs not served by the store (empty, external, legacy) are ignored
func (s *Store) Delete(ctx context.Context, url string) error {
	key, ok := s.keyOf(url)
	if !ok {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("error while deleting media. Err: %w", err)
	}

	return nil
}

func (s *Store) keyOf(url string) (string, bool) {
	key, found := strings.CutPrefix(url, s.publicURL+"/")
	if !found || !strings.HasPrefix(key, keyPrefix+"/") {
		return "", false
	}
	return key, true
}
