package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/common"
	sc "github.com/dmitrijs2005/poapgate/internal/server/config"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

const artworkURLValidity = 15 * time.Minute

var artworkExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// ArtworkUpload is a presigned PUT for one artwork object. ImageURI is the
// public address of the object once uploaded; it is what mint-poap records.
type ArtworkUpload struct {
	Key         string    `json:"key"`
	UploadURL   string    `json:"upload_url"`
	ContentType string    `json:"content_type"`
	ImageURI    string    `json:"image_uri"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type ArtworkService struct {
	config *sc.Config
}

func NewArtworkService(config *sc.Config) *ArtworkService {
	return &ArtworkService{config: config}
}

// ArtworkStorageKey returns a fresh object key for an image of contentType.
func ArtworkStorageKey(contentType string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("poap/%d/%02d/%02d/%v%s", d.Year(), d.Month(), d.Day(), uuid.New(), artworkExtensions[contentType])
}

func (s *ArtworkService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// PresignUpload issues a presigned PUT URL for a new artwork image.
func (s *ArtworkService) PresignUpload(ctx context.Context, contentType string) (*ArtworkUpload, error) {
	if _, ok := artworkExtensions[contentType]; !ok {
		return nil, fmt.Errorf("%w: unsupported artwork type %q", common.ErrInvalidInput, contentType)
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket
	key := ArtworkStorageKey(contentType)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(artworkURLValidity))
	if err != nil {
		return nil, err
	}

	return &ArtworkUpload{
		Key:         key,
		UploadURL:   req.URL,
		ContentType: contentType,
		ImageURI:    s.PublicURL(key),
		ExpiresAt:   time.Now().Add(artworkURLValidity),
	}, nil
}

// PublicURL is the address clients load the object at key from.
func (s *ArtworkService) PublicURL(key string) string {
	base := strings.TrimRight(s.config.ArtworkPublicURL, "/")
	if base == "" {
		base = strings.TrimRight(s.config.S3BaseEndpoint, "/") + "/" + s.config.S3Bucket
	}
	return base + "/" + path.Clean(key)
}
