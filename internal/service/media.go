package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"jazzfeed/internal/config"
	domain "jazzfeed/internal/model"
)

// PresignExpiry is how long a presigned upload URL stays valid.
const PresignExpiry = 15 * time.Minute

// MediaService hands out presigned URLs so clients upload post images straight to
// Cloudflare R2. The image bytes never pass through this service.
type MediaService struct {
	presigner *s3.PresignClient
	bucket    string
	publicURL string
}

// NewMediaService constructs an S3-compatible client for Cloudflare R2.
func NewMediaService(ctx context.Context, cfg *config.Config) (*MediaService, error) {
	if !cfg.MediaEnabled() {
		return nil, fmt.Errorf("missing Cloudflare R2 configuration")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for R2: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &MediaService{
		presigner: s3.NewPresignClient(s3Client),
		bucket:    cfg.R2BucketName,
		publicURL: strings.TrimSuffix(cfg.R2PublicURL, "/"),
	}, nil
}

// PublicBaseURL is the origin every uploaded image is served from.
func (s *MediaService) PublicBaseURL() string { return s.publicURL }

// PresignPostUpload validates the declared type and size and signs a PUT for a fresh
// key under the posts folder.
func (s *MediaService) PresignPostUpload(ctx context.Context, ownerUID string, req *domain.PresignPostUploadRequest) (*domain.PresignPostUploadResponse, error) {
	key, err := postMediaKey(ownerUID, req)
	if err != nil {
		return nil, err
	}

	signed, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(req.ContentType),
		ContentLength: aws.Int64(req.FileSize),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign r2 upload: %w", err)
	}

	return &domain.PresignPostUploadResponse{
		UploadURL:  signed.URL,
		PublicURL:  fmt.Sprintf("%s/%s", s.publicURL, key),
		Key:        key,
		ExpiresInS: int(PresignExpiry.Seconds()),
	}, nil
}

// postMediaKey checks the upload request and derives its object key.
func postMediaKey(ownerUID string, req *domain.PresignPostUploadRequest) (string, error) {
	contentType := req.ContentType
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	ext, ok := domain.ImageExtension(contentType)
	if !ok {
		return "", domain.ErrInvalidImageType
	}
	if req.FileSize <= 0 || req.FileSize > domain.MaxPostMediaSize {
		return "", domain.ErrFileTooLarge
	}
	req.ContentType = contentType
	return fmt.Sprintf("%s/%s/%s%s", domain.PostMediaFolder, ownerUID, uuid.NewString(), ext), nil
}
