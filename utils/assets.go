package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"merch-loyalty-system/config"
)

// AssetStore uploads badge icons to R2-compatible object storage and hands
// back the CDN URL to persist on the badge.
type AssetStore struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
}

// NewAssetStore builds the S3 client against the account's R2 endpoint.
func NewAssetStore(ctx context.Context, cfg config.AssetsConfig) (*AssetStore, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	cdnBaseURL := cfg.CDNBaseURL
	if cdnBaseURL == "" {
		cdnBaseURL = endpoint
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("loading object storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &AssetStore{client: client, bucket: cfg.Bucket, cdnBaseURL: cdnBaseURL}, nil
}

// UploadBadgeIcon stores the icon under badges/<code> and returns its URL.
func (a *AssetStore) UploadBadgeIcon(ctx context.Context, badgeCode string, fileHeader *multipart.FileHeader) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("opening icon: %w", err)
	}
	defer file.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, file); err != nil {
		return "", fmt.Errorf("reading icon: %w", err)
	}

	key := fmt.Sprintf("badges/%s%s", badgeCode, extensionOf(fileHeader.Filename))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        buf,
		ContentType: aws.String(fileHeader.Header.Get("Content-Type")),
	})
	if err != nil {
		return "", fmt.Errorf("uploading icon: %w", err)
	}
	return fmt.Sprintf("%s/%s", a.cdnBaseURL, key), nil
}

func extensionOf(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		switch filename[i] {
		case '.':
			return filename[i:]
		case '/', '\\':
			return ""
		}
	}
	return ""
}
