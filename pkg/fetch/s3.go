package fetch

import (
	"context"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Downloader fetches bucket objects with configured credentials. It
// implements ObjectStore.
type S3Downloader struct {
	client *s3.Client
}

// NewS3Downloader builds a downloader from explicit credentials, or from the
// default AWS credential chain when accessKeyID is empty.
func NewS3Downloader(ctx context.Context, region, accessKeyID, secretAccessKey string) (*S3Downloader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Downloader{client: s3.NewFromConfig(cfg)}, nil
}

// Download streams an object into w and returns the byte count.
func (d *S3Downloader) Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	return n, nil
}
